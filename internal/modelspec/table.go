package modelspec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Column is a single named column of observations. Numeric columns carry
// their values directly; factor columns carry 1-based codes into Levels.
type Column struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Levels []string  `json:"levels,omitempty"`
}

// IsFactor reports whether the column holds coded categorical levels.
func (c Column) IsFactor() bool {
	return c.Levels != nil
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    int      `json:"rows"`
}

// NewTable builds a table from columns, rejecting length mismatches and
// duplicate names.
func NewTable(cols ...Column) (*Table, error) {
	if len(cols) == 0 {
		return nil, specErrorf("data", "table has no columns")
	}
	n := len(cols[0].Values)
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c.Name == "" {
			return nil, specErrorf("data", "column with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return nil, specErrorf("data", "duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Values) != n {
			return nil, specErrorf("data", "column %q has %d rows, expected %d", c.Name, len(c.Values), n)
		}
	}
	return &Table{Columns: cols, Rows: n}, nil
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Select returns a new table trimmed to the named columns, in the requested
// order. Columns are shared, not copied; tables are read-only after build.
func (t *Table) Select(names []string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, specErrorf("data", "column %q not found", name)
		}
		cols = append(cols, c)
	}
	return NewTable(cols...)
}

// ReadCSV parses a CSV stream with a header row into a table. A column is
// treated as a factor when it is listed in factors or when any of its cells
// fails numeric parsing; factor levels are coded in order of first appearance.
func ReadCSV(r io.Reader, factors []string) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) < 2 {
		return nil, specErrorf("data", "csv needs a header row and at least one observation")
	}
	header := records[0]
	rows := records[1:]

	forced := make(map[string]bool, len(factors))
	for _, f := range factors {
		forced[f] = true
	}

	cols := make([]Column, len(header))
	for j, name := range header {
		raw := make([]string, len(rows))
		numeric := !forced[name]
		vals := make([]float64, len(rows))
		for i, row := range rows {
			if len(row) != len(header) {
				return nil, specErrorf("data", "row %d has %d fields, expected %d", i+1, len(row), len(header))
			}
			raw[i] = row[j]
			if numeric {
				v, perr := strconv.ParseFloat(row[j], 64)
				if perr != nil {
					numeric = false
				} else {
					vals[i] = v
				}
			}
		}
		if numeric {
			cols[j] = Column{Name: name, Values: vals}
			continue
		}
		levels := []string{}
		codes := make(map[string]int)
		fvals := make([]float64, len(raw))
		for i, cell := range raw {
			code, ok := codes[cell]
			if !ok {
				levels = append(levels, cell)
				code = len(levels)
				codes[cell] = code
			}
			fvals[i] = float64(code)
		}
		cols[j] = Column{Name: name, Values: fvals, Levels: levels}
	}
	return NewTable(cols...)
}

// asFactor returns the column coerced to a factor. Numeric columns become
// factors whose levels are the distinct formatted values in order of first
// appearance; factor columns are returned unchanged.
func asFactor(c Column) Column {
	if c.IsFactor() {
		return c
	}
	levels := []string{}
	codes := make(map[string]int)
	vals := make([]float64, len(c.Values))
	for i, v := range c.Values {
		key := strconv.FormatFloat(v, 'g', -1, 64)
		code, ok := codes[key]
		if !ok {
			levels = append(levels, key)
			code = len(levels)
			codes[key] = code
		}
		vals[i] = float64(code)
	}
	return Column{Name: c.Name, Values: vals, Levels: levels}
}
