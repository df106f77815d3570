package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// MissingCategoricalMessage is returned to clients that omit Protocol or Flags.
const MissingCategoricalMessage = "Please select both Protocol and Flags"

// ValidationError reports a payload the builder refuses before any coercion.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// CoercionError reports a field whose value cannot be converted to its
// declared numeric type.
type CoercionError struct {
	Key   string
	Kind  Kind
	Value any
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s: cannot convert %s to %s: %v", e.Key, describe(e.Value), e.Kind, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

var (
	errNotNumeric = errors.New("not a number")
	errNotFinite  = errors.New("value is not finite")
	errOutOfRange = errors.New("value out of range")
)

// Decode reads one JSON object from r and builds a Record from it.
func Decode(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Record{}, &ValidationError{Msg: "request body must be a JSON object: " + err.Error()}
	}
	if payload == nil {
		return Record{}, &ValidationError{Msg: "request body must be a JSON object"}
	}
	return Build(payload)
}

// Build maps a loosely-typed payload keyed by request keys onto a Record.
// Protocol and Flags must be non-empty strings. Numeric fields default to 0
// when absent. Unknown keys are ignored.
func Build(payload map[string]any) (Record, error) {
	var rec Record

	proto, okProto := nonEmptyString(payload[ProtocolColumn])
	flags, okFlags := nonEmptyString(payload[FlagsColumn])
	if !okProto || !okFlags {
		return Record{}, &ValidationError{Msg: MissingCategoricalMessage}
	}

	for i, f := range Fields {
		switch f.Kind {
		case Categorical:
			if f.Column == ProtocolColumn {
				rec.vals[i].Str = Canonical(proto)
			} else {
				rec.vals[i].Str = Canonical(flags)
			}
		case Integer:
			raw, ok := payload[f.Key]
			if !ok {
				continue
			}
			n, err := coerceInt(raw)
			if err != nil {
				return Record{}, &CoercionError{Key: f.Key, Kind: f.Kind, Value: raw, Err: err}
			}
			rec.vals[i].Num = float64(n)
		case Float:
			raw, ok := payload[f.Key]
			if !ok {
				continue
			}
			x, err := coerceFloat(raw)
			if err != nil {
				return Record{}, &CoercionError{Key: f.Key, Kind: f.Kind, Value: raw, Err: err}
			}
			rec.vals[i].Num = x
		}
	}
	return rec, nil
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func coerceFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		p, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		f = p
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		f = p
	default:
		return 0, errNotNumeric
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// coerceInt accepts integral strings only, but truncates numeric JSON values
// toward zero.
func coerceInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return truncate(f)
	case float64:
		return truncate(x)
	case float32:
		return truncate(float64(x))
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, errOutOfRange
			}
			return 0, errNotNumeric
		}
		return n, nil
	default:
		return 0, errNotNumeric
	}
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return 0, errOutOfRange
	}
	return int64(t), nil
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case json.Number:
		return x.String()
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%v", x)
	}
}
