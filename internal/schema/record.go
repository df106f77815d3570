package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value holds one record cell. Categorical fields use Str, numeric fields Num.
type Value struct {
	Str string
	Num float64
}

// Record is an ordered FeatureRecord. The zero value has every numeric field
// at 0 and both categorical fields empty.
type Record struct {
	vals [NumFields]Value
}

// Value returns the cell at position i in record order.
func (r Record) Value(i int) Value {
	return r.vals[i]
}

// String returns a categorical field by dataset column name.
func (r Record) String(column string) string {
	i, ok := columnIndex[column]
	if !ok {
		return ""
	}
	return r.vals[i].Str
}

// Float returns a numeric field by dataset column name.
func (r Record) Float(column string) float64 {
	i, ok := columnIndex[column]
	if !ok {
		return 0
	}
	return r.vals[i].Num
}

// Int returns an integer field by dataset column name.
func (r Record) Int(column string) int64 {
	return int64(r.Float(column))
}

// SetString sets a categorical field.
func (r *Record) SetString(column, v string) error {
	i, err := r.lookup(column, Categorical)
	if err != nil {
		return err
	}
	r.vals[i].Str = Canonical(v)
	return nil
}

// SetFloat sets a float field.
func (r *Record) SetFloat(column string, v float64) error {
	i, err := r.lookup(column, Float)
	if err != nil {
		return err
	}
	r.vals[i].Num = v
	return nil
}

// SetInt sets an integer field.
func (r *Record) SetInt(column string, v int64) error {
	i, err := r.lookup(column, Integer)
	if err != nil {
		return err
	}
	r.vals[i].Num = float64(v)
	return nil
}

func (r *Record) lookup(column string, want Kind) (int, error) {
	i, ok := columnIndex[column]
	if !ok {
		return 0, fmt.Errorf("schema: unknown column %q", column)
	}
	if Fields[i].Kind != want {
		return 0, fmt.Errorf("schema: column %q is %s, not %s", column, Fields[i].Kind, want)
	}
	return i, nil
}

// MarshalJSON encodes the record as an object keyed by request keys, in
// record order. Integer fields are written without a fractional part.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(f.Key)
		buf.Write(k)
		buf.WriteByte(':')
		v := r.vals[i]
		switch f.Kind {
		case Categorical:
			s, err := json.Marshal(v.Str)
			if err != nil {
				return nil, err
			}
			buf.Write(s)
		case Integer:
			buf.WriteString(strconv.FormatInt(int64(v.Num), 10))
		default:
			n, err := json.Marshal(v.Num)
			if err != nil {
				return nil, fmt.Errorf("schema: %s: %w", f.Key, err)
			}
			buf.Write(n)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a request-keyed object with the same rules as Build.
func (r *Record) UnmarshalJSON(data []byte) error {
	rec, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*r = rec
	return nil
}
