package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDuplicateColumn is returned when a dataset would hold two columns with the same name
var ErrDuplicateColumn = errors.New("duplicate column")

// Dataset is an immutable rectangular table. Every row holds one cell per
// column; missing cells are Null. Methods that change the table return a
// new Dataset and leave the receiver untouched.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// NewDataset builds a dataset from column names and positional rows.
// Short rows are padded with Null, long rows are rejected.
func NewDataset(columns []string, rows [][]Value) (*Dataset, error) {
	index, err := buildIndex(columns)
	if err != nil {
		return nil, err
	}
	out := make([][]Value, len(rows))
	for i, r := range rows {
		if len(r) > len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(r), len(columns))
		}
		row := make([]Value, len(columns))
		copy(row, r)
		out[i] = row
	}
	return &Dataset{columns: append([]string(nil), columns...), index: index, rows: out}, nil
}

// FromRecords builds a dataset from keyed records. Keys missing from a
// record become Null; keys not listed in columns are ignored.
func FromRecords(columns []string, records []map[string]Value) (*Dataset, error) {
	index, err := buildIndex(columns)
	if err != nil {
		return nil, err
	}
	rows := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(columns))
		for name, v := range rec {
			if j, ok := index[name]; ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return &Dataset{columns: append([]string(nil), columns...), index: index, rows: rows}, nil
}

// Empty returns a dataset with the given columns and no rows
func Empty(columns ...string) *Dataset {
	ds, err := NewDataset(columns, nil)
	if err != nil {
		return &Dataset{index: map[string]int{}}
	}
	return ds
}

func buildIndex(columns []string) (map[string]int, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		index[c] = i
	}
	return index, nil
}

// Columns returns the column names in order
func (d *Dataset) Columns() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.columns...)
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Width returns the number of columns
func (d *Dataset) Width() int {
	if d == nil {
		return 0
	}
	return len(d.columns)
}

// HasColumn reports whether name is a column
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.ColumnIndex(name)
	return ok
}

// ColumnIndex returns the position of name
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	if d == nil {
		return 0, false
	}
	i, ok := d.index[name]
	return i, ok
}

// MissingColumns returns the names that are not columns of d, in the given order
func (d *Dataset) MissingColumns(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !d.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Cell returns the value at row i in column name, or Null
func (d *Dataset) Cell(i int, name string) Value {
	j, ok := d.ColumnIndex(name)
	if !ok || i < 0 || i >= d.Len() {
		return Null()
	}
	return d.rows[i][j]
}

// At returns the value at row i and column position j
func (d *Dataset) At(i, j int) Value {
	return d.rows[i][j]
}

// Row returns a copy of row i
func (d *Dataset) Row(i int) []Value {
	return append([]Value(nil), d.rows[i]...)
}

// Column returns a copy of the named column, or nil if absent
func (d *Dataset) Column(name string) []Value {
	j, ok := d.ColumnIndex(name)
	if !ok {
		return nil
	}
	out := make([]Value, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[j]
	}
	return out
}

// Record returns row i keyed by column name
func (d *Dataset) Record(i int) map[string]Value {
	rec := make(map[string]Value, len(d.columns))
	for j, c := range d.columns {
		rec[c] = d.rows[i][j]
	}
	return rec
}

// Records returns every row keyed by column name
func (d *Dataset) Records() []map[string]Value {
	out := make([]map[string]Value, d.Len())
	for i := range out {
		out[i] = d.Record(i)
	}
	return out
}

// Head returns the first n rows
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > d.Len() {
		n = d.Len()
	}
	return d.withRows(d.rows[:n])
}

// Slice returns rows [from, to)
func (d *Dataset) Slice(from, to int) *Dataset {
	if from < 0 {
		from = 0
	}
	if to > d.Len() {
		to = d.Len()
	}
	if from > to {
		from = to
	}
	return d.withRows(d.rows[from:to])
}

// Filter keeps the rows for which keep returns true
func (d *Dataset) Filter(keep func(i int) bool) *Dataset {
	rows := make([][]Value, 0, d.Len())
	for i, r := range d.rows {
		if keep(i) {
			rows = append(rows, r)
		}
	}
	return d.withRows(rows)
}

// Take returns the rows at the given positions, in that order
func (d *Dataset) Take(indices []int) *Dataset {
	rows := make([][]Value, 0, len(indices))
	for _, i := range indices {
		rows = append(rows, d.rows[i])
	}
	return d.withRows(rows)
}

// Select projects the named columns in the given order
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	if missing := d.MissingColumns(names...); len(missing) > 0 {
		return nil, fmt.Errorf("columns not found: %v", missing)
	}
	pos := make([]int, len(names))
	for k, n := range names {
		pos[k] = d.index[n]
	}
	rows := make([][]Value, d.Len())
	for i, r := range d.rows {
		row := make([]Value, len(names))
		for k, j := range pos {
			row[k] = r[j]
		}
		rows[i] = row
	}
	return NewDataset(names, rows)
}

// WithColumn replaces the named column, or appends it when absent.
// values shorter than the dataset are padded with Null.
func (d *Dataset) WithColumn(name string, values []Value) *Dataset {
	j, exists := d.ColumnIndex(name)
	columns := d.Columns()
	if !exists {
		columns = append(columns, name)
		j = len(columns) - 1
	}
	rows := make([][]Value, d.Len())
	for i, r := range d.rows {
		row := make([]Value, len(columns))
		copy(row, r)
		if i < len(values) {
			row[j] = values[i]
		} else {
			row[j] = Null()
		}
		rows[i] = row
	}
	index, _ := buildIndex(columns)
	return &Dataset{columns: columns, index: index, rows: rows}
}

// RenameColumns applies mapping to the column names. Names absent from
// the dataset are ignored. A rename that collides with another column fails.
func (d *Dataset) RenameColumns(mapping map[string]string) (*Dataset, error) {
	columns := d.Columns()
	for i, c := range columns {
		if to, ok := mapping[c]; ok {
			columns[i] = to
		}
	}
	index, err := buildIndex(columns)
	if err != nil {
		return nil, err
	}
	return &Dataset{columns: columns, index: index, rows: d.rows}, nil
}

// MapColumn returns a copy of d where fn has been applied to every cell of column name
func (d *Dataset) MapColumn(name string, fn func(Value) Value) (*Dataset, error) {
	col := d.Column(name)
	if col == nil && !d.HasColumn(name) {
		return nil, fmt.Errorf("column %q not found", name)
	}
	for i, v := range col {
		col[i] = fn(v)
	}
	return d.WithColumn(name, col), nil
}

func (d *Dataset) withRows(rows [][]Value) *Dataset {
	return &Dataset{columns: d.Columns(), index: d.index, rows: rows}
}

// MarshalJSON encodes the dataset as an array of objects whose keys follow column order
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < d.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range d.columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			cell, err := d.rows[i][j].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(cell)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Builder accumulates rows for a new dataset
type Builder struct {
	columns []string
	rows    [][]Value
}

// NewBuilder starts a dataset with the given columns
func NewBuilder(columns ...string) *Builder {
	return &Builder{columns: append([]string(nil), columns...)}
}

// Append adds one row. Missing trailing cells are Null.
func (b *Builder) Append(values ...Value) *Builder {
	row := make([]Value, len(b.columns))
	copy(row, values)
	b.rows = append(b.rows, row)
	return b
}

// Build returns the dataset
func (b *Builder) Build() (*Dataset, error) {
	return NewDataset(b.columns, b.rows)
}
