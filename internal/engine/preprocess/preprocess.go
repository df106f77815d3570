// Package preprocess fits and applies the column transform that turns a flow
// record into the model's input vector: standard scaling of numeric columns,
// drop-first one-hot encoding of Protocol and Flags, and passthrough of
// anything else.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// DroppedColumns are removed from the reference table before fitting.
var DroppedColumns = []string{"Label", "Attack_Type", "Timestamp", "Source_IP", "Destination_IP"}

// CategoricalColumns are one-hot encoded, in this order.
var CategoricalColumns = []string{schema.ProtocolColumn, schema.FlagsColumn}

// ErrUnknownCategory is returned by Transform for a categorical value that
// was not present when the preprocessor was fitted.
var ErrUnknownCategory = errors.New("preprocess: unknown category")

type scaler struct {
	column string
	index  int // position in schema.Fields
	mean   float64
	scale  float64
}

type encoder struct {
	column     string
	index      int
	categories []string // sorted; categories[0] is dropped from the output
}

type passthrough struct {
	column string
	index  int
}

// Preprocessor is a fitted column transform. It is immutable after Fit and
// safe for concurrent use.
type Preprocessor struct {
	scalers      []scaler
	encoders     []encoder
	passthroughs []passthrough
	outputs      int
}

// Fit learns scaling statistics and category lists from the reference table.
// The table's feature columns, after dropping DroppedColumns, must match the
// record schema exactly.
func Fit(t *dataset.Table) (*Preprocessor, error) {
	drop := make(map[string]bool, len(DroppedColumns))
	for _, c := range DroppedColumns {
		if !t.Has(c) {
			return nil, fmt.Errorf("preprocess: reference table has no column %q to drop", c)
		}
		drop[c] = true
	}

	var features []string
	for _, c := range t.Header {
		if !drop[c] {
			features = append(features, c)
		}
	}
	if err := checkColumns(features); err != nil {
		return nil, err
	}

	cat := make(map[string]bool, len(CategoricalColumns))
	for _, c := range CategoricalColumns {
		cat[c] = true
	}

	p := &Preprocessor{}
	for _, c := range features {
		if cat[c] {
			continue
		}
		idx, _ := schema.ColumnIndex(c)
		if !t.IsNumeric(c) {
			p.passthroughs = append(p.passthroughs, passthrough{column: c, index: idx})
			continue
		}
		vals, err := t.Floats(c)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		mean, scale := fitScaler(vals)
		p.scalers = append(p.scalers, scaler{column: c, index: idx, mean: mean, scale: scale})
	}

	for _, c := range CategoricalColumns {
		cells, err := t.Categories(c)
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		cats := sortedDistinct(cells)
		if len(cats) == 0 {
			return nil, fmt.Errorf("preprocess: column %q has no categories", c)
		}
		idx, _ := schema.ColumnIndex(c)
		p.encoders = append(p.encoders, encoder{column: c, index: idx, categories: cats})
	}

	p.outputs = len(p.scalers) + len(p.passthroughs)
	for _, e := range p.encoders {
		p.outputs += len(e.categories) - 1
	}
	return p, nil
}

func checkColumns(features []string) error {
	want := schema.Columns()
	if len(features) == len(want) {
		match := true
		for i := range want {
			if features[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}
	return fmt.Errorf("preprocess: feature columns do not match record schema:\n  got:  %s\n  want: %s",
		strings.Join(features, ","), strings.Join(want, ","))
}

// fitScaler returns the mean and population standard deviation of the
// non-missing values. A zero or undefined deviation yields scale 1.
func fitScaler(vals []float64) (mean, scale float64) {
	clean := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0, 1
	}
	mean, std := stat.PopMeanStdDev(clean, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return mean, std
}

func sortedDistinct(cells []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range cells {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// NumOutputs is the width of a transformed row.
func (p *Preprocessor) NumOutputs() int { return p.outputs }

// Categories returns the fitted categories of a categorical column, including
// the dropped first one.
func (p *Preprocessor) Categories(column string) []string {
	for _, e := range p.encoders {
		if e.column == column {
			return append([]string(nil), e.categories...)
		}
	}
	return nil
}

// OutputNames labels each output column: scaled numerics by name, one-hot
// columns as "<column>_<category>", then passthrough columns.
func (p *Preprocessor) OutputNames() []string {
	names := make([]string, 0, p.outputs)
	for _, s := range p.scalers {
		names = append(names, s.column)
	}
	for _, e := range p.encoders {
		for _, c := range e.categories[1:] {
			names = append(names, e.column+"_"+c)
		}
	}
	for _, pt := range p.passthroughs {
		names = append(names, pt.column)
	}
	return names
}

// Transform maps records to a len(records) x NumOutputs matrix.
func (p *Preprocessor) Transform(records []schema.Record) (*mat.Dense, error) {
	if len(records) == 0 {
		return nil, errors.New("preprocess: no records")
	}
	out := mat.NewDense(len(records), p.outputs, nil)
	for r, rec := range records {
		if err := p.transformRow(rec, out.RawRowView(r)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Preprocessor) transformRow(rec schema.Record, row []float64) error {
	j := 0
	for _, s := range p.scalers {
		row[j] = (rec.Value(s.index).Num - s.mean) / s.scale
		j++
	}
	for _, e := range p.encoders {
		v := rec.Value(e.index).Str
		pos := sort.SearchStrings(e.categories, v)
		if pos == len(e.categories) || e.categories[pos] != v {
			return fmt.Errorf("%w %q in column %q", ErrUnknownCategory, v, e.column)
		}
		for k := 1; k < len(e.categories); k++ {
			if k == pos {
				row[j] = 1
			}
			j++
		}
	}
	for _, pt := range p.passthroughs {
		row[j] = rec.Value(pt.index).Num
		j++
	}
	return nil
}
