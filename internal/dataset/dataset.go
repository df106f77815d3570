// Package dataset reads the reference traffic table the preprocessor is
// fitted on and answers catalog queries against it.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/crimson-sun/flowguard/internal/schema"
)

// Table is a fully loaded CSV file. Cells are kept as raw strings; numeric
// interpretation happens per column on demand.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// Load reads a CSV file from disk.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return t, nil
}

// Read parses CSV with a header row.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Header: header, index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		t.Header[i] = h
		if _, dup := t.index[h]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		t.index[h] = i
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Has reports whether the table has the named column.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Column returns the raw cells of a column.
func (t *Table) Column(column string) ([]string, error) {
	i, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("dataset: no column %q", column)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Categories returns a column's cells normalized the same way request values
// are. Missing cells come back as "".
func (t *Table) Categories(column string) ([]string, error) {
	cells, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	for i, c := range cells {
		if IsMissing(c) {
			cells[i] = ""
			continue
		}
		cells[i] = schema.Canonical(c)
	}
	return cells, nil
}

// IsNumeric reports whether every non-missing cell in the column parses as a
// number. This mirrors how the table's column types were inferred when the
// model was trained.
func (t *Table) IsNumeric(column string) bool {
	i, ok := t.index[column]
	if !ok {
		return false
	}
	for _, row := range t.Rows {
		c := row[i]
		if IsMissing(c) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err != nil {
			return false
		}
	}
	return true
}

// Floats returns the column parsed as numbers, with NaN for missing cells.
func (t *Table) Floats(column string) ([]float64, error) {
	cells, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		if IsMissing(c) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("dataset: column %q row %d: %w", column, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// Filter returns a table holding only the rows for which keep returns true.
func (t *Table) Filter(keep func(row []string) bool) *Table {
	out := &Table{Header: t.Header, index: t.index}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

var missing = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true, "#N/A": true,
}

// IsMissing reports whether a cell is one of the recognized missing markers.
func IsMissing(cell string) bool {
	return missing[strings.TrimSpace(cell)]
}
