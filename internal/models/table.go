package models

import (
	"fmt"
	"strconv"
)

// Table is the normalized tabular payload exchanged with providers and
// persisted by the cache. Cells are strings; numeric columns are parsed on
// demand. Column names are unique within a table.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// AddRow appends a row. The number of values must match the column count.
func (t *Table) AddRow(values ...string) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumns verifies every named column is present, reporting the first
// missing one.
func (t *Table) HasColumns(names ...string) error {
	for _, name := range names {
		if t.ColumnIndex(name) < 0 {
			return fmt.Errorf("missing column %q", name)
		}
	}
	return nil
}

// Column returns the values of the named column in row order.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("missing column %q", name)
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[idx])
	}
	return values, nil
}

// FloatColumn parses the named column as float64 values.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	raw, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// Select returns a new table containing only the named columns, in the
// given order. Row data is copied.
func (t *Table) Select(names ...string) (*Table, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
		indexes[i] = idx
	}
	out := NewTable(names...)
	for _, row := range t.Rows {
		selected := make([]string, len(indexes))
		for i, idx := range indexes {
			selected[i] = row[idx]
		}
		out.Rows = append(out.Rows, selected)
	}
	return out, nil
}

// Append concatenates the rows of other onto t. Column sets must match
// exactly.
func (t *Table) Append(other *Table) error {
	if len(other.Columns) != len(t.Columns) {
		return fmt.Errorf("column count mismatch: %d vs %d", len(t.Columns), len(other.Columns))
	}
	for i, c := range t.Columns {
		if other.Columns[i] != c {
			return fmt.Errorf("column mismatch at %d: %q vs %q", i, c, other.Columns[i])
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}
