package dataset

import (
	"errors"
	"fmt"
	"time"
)

// ErrParse reports input that could not be read as a delimited table.
var ErrParse = errors.New("parse failure")

// ErrColumnNotFound is returned when a named column does not exist.
var ErrColumnNotFound = errors.New("column not found")

// Kind is the semantic type inferred for a column.
type Kind string

const (
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindText     Kind = "text"
	KindBoolean  Kind = "boolean"
	KindDatetime Kind = "datetime"
)

// Numeric reports whether values of this kind take part in numeric statistics.
func (k Kind) Numeric() bool { return k == KindInteger || k == KindFloat }

// Column is one typed, named column. Every slice has one entry per row.
type Column struct {
	Name string
	Kind Kind

	raw     []string
	missing []bool
	ints    []int64
	floats  []float64
	bools   []bool
	times   []time.Time
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.raw) }

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// Raw returns the cell text exactly as read from the input.
func (c *Column) Raw(i int) string { return c.raw[i] }

// Missing returns the number of missing cells.
func (c *Column) Missing() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// Count returns the number of non-missing cells.
func (c *Column) Count() int { return c.Len() - c.Missing() }

// Value returns the typed value of row i: int64, float64, bool, time.Time,
// string, or nil when the cell is missing.
func (c *Column) Value(i int) any {
	if c.missing[i] {
		return nil
	}
	switch c.Kind {
	case KindInteger:
		return c.ints[i]
	case KindFloat:
		return c.floats[i]
	case KindBoolean:
		return c.bools[i]
	case KindDatetime:
		return c.times[i]
	default:
		return c.raw[i]
	}
}

// Float returns row i as a float64 for numeric columns.
func (c *Column) Float(i int) (float64, bool) {
	if c.missing[i] || !c.Kind.Numeric() {
		return 0, false
	}
	return c.floats[i], true
}

// Floats returns the non-missing values of a numeric column in row order.
func (c *Column) Floats() []float64 {
	if !c.Kind.Numeric() {
		return nil
	}
	out := make([]float64, 0, c.Len())
	for i, v := range c.floats {
		if !c.missing[i] {
			out = append(out, v)
		}
	}
	return out
}

// Text returns the trimmed cell text used for categorical grouping.
func (c *Column) Text(i int) (string, bool) {
	if c.missing[i] {
		return "", false
	}
	switch c.Kind {
	case KindBoolean:
		if c.bools[i] {
			return "True", true
		}
		return "False", true
	default:
		return trimCell(c.raw[i]), true
	}
}

// Dataset is an immutable table of equally sized columns.
type Dataset struct {
	name     string
	columns  []*Column
	index    map[string]int
	rows     int
	warnings []string
}

// Name returns the source name the dataset was parsed from.
func (d *Dataset) Name() string { return d.name }

// Rows returns the row count.
func (d *Dataset) Rows() int { return d.rows }

// Columns returns the columns in file order.
func (d *Dataset) Columns() []*Column { return d.columns }

// Warnings lists non-fatal notes produced while parsing.
func (d *Dataset) Warnings() []string { return d.warnings }

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (*Column, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return d.columns[i], nil
}

// NumericColumns returns integer and float columns in file order.
func (d *Dataset) NumericColumns() []*Column {
	var out []*Column
	for _, c := range d.columns {
		if c.Kind.Numeric() {
			out = append(out, c)
		}
	}
	return out
}

// CategoricalColumns returns text and boolean columns in file order.
func (d *Dataset) CategoricalColumns() []*Column {
	var out []*Column
	for _, c := range d.columns {
		if c.Kind == KindText || c.Kind == KindBoolean {
			out = append(out, c)
		}
	}
	return out
}

// Header returns the column names in file order.
func (d *Dataset) Header() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// Head returns up to n rows of raw cell text. Missing cells are empty.
func (d *Dataset) Head(n int) [][]string {
	if n > d.rows {
		n = d.rows
	}
	if n < 0 {
		n = 0
	}
	out := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(d.columns))
		for j, c := range d.columns {
			if !c.missing[r] {
				row[j] = c.raw[r]
			}
		}
		out[r] = row
	}
	return out
}
