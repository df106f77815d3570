package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/crimson-sun/flowguard/internal/schema"
)

// Metadata lists the categorical values a client may choose from.
type Metadata struct {
	Protocols []string `json:"protocols"`
	Flags     []string `json:"flags"`
}

// ReadMetadata loads the file at path and returns its distinct Protocol and
// Flags values.
func ReadMetadata(path string) (Metadata, error) {
	t, err := Load(path)
	if err != nil {
		return Metadata{}, err
	}
	return t.Metadata()
}

// Metadata returns the distinct Protocol and Flags values in order of first
// appearance. Missing cells are skipped.
func (t *Table) Metadata() (Metadata, error) {
	protos, err := t.Categories(schema.ProtocolColumn)
	if err != nil {
		return Metadata{}, err
	}
	flags, err := t.Categories(schema.FlagsColumn)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Protocols: distinct(protos), Flags: distinct(flags)}, nil
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ColumnMean is the mean of one numeric column.
type ColumnMean struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
}

// ClassStats summarizes the rows belonging to one traffic class.
type ClassStats struct {
	AttackType  string       `json:"attack_type"`
	Rows        int          `json:"rows"`
	Means       []ColumnMean `json:"means"`
	TopProtocol string       `json:"top_protocol"`
	TopFlags    string       `json:"top_flags"`
}

const (
	attackTypeColumn = "Attack_Type"
	labelColumn      = "Label"
)

// ClassStats computes per-column means and the modal Protocol and Flags for
// rows whose Attack_Type equals attackType. Tables without an Attack_Type
// column fall back to Label == 0 for "Normal".
func (t *Table) ClassStats(attackType string) (ClassStats, error) {
	var sub *Table
	switch {
	case t.Has(attackTypeColumn):
		i := t.index[attackTypeColumn]
		sub = t.Filter(func(row []string) bool { return row[i] == attackType })
	case t.Has(labelColumn) && attackType == "Normal":
		i := t.index[labelColumn]
		sub = t.Filter(func(row []string) bool {
			v, err := strconv.ParseFloat(row[i], 64)
			return err == nil && v == 0
		})
	default:
		return ClassStats{}, fmt.Errorf("dataset: no %s column to select %q", attackTypeColumn, attackType)
	}
	if len(sub.Rows) == 0 {
		return ClassStats{}, fmt.Errorf("dataset: no rows for class %q", attackType)
	}

	cs := ClassStats{AttackType: attackType, Rows: len(sub.Rows)}
	for _, col := range sub.Header {
		if col == schema.ProtocolColumn || col == schema.FlagsColumn || !sub.IsNumeric(col) {
			continue
		}
		vals, err := sub.Floats(col)
		if err != nil {
			return ClassStats{}, err
		}
		vals = dropNaN(vals)
		if len(vals) == 0 {
			continue
		}
		cs.Means = append(cs.Means, ColumnMean{Column: col, Mean: stat.Mean(vals, nil)})
	}

	if sub.Has(schema.ProtocolColumn) {
		vals, _ := sub.Categories(schema.ProtocolColumn)
		cs.TopProtocol = mode(vals)
	}
	if sub.Has(schema.FlagsColumn) {
		vals, _ := sub.Categories(schema.FlagsColumn)
		cs.TopFlags = mode(vals)
	}
	return cs, nil
}

func dropNaN(vals []float64) []float64 {
	out := vals[:0]
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// mode returns the most frequent non-empty value; ties go to the smallest.
func mode(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
