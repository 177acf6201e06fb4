// Package dataset holds the in-memory table model shared by every stage:
// ordered columns, positional rows and an optional geometry per row.
package dataset

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/rr-wellmatch/internal/geo"
)

// Kind is the storage class of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindBool:
		return "BOOLEAN"
	case KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Column is a named, typed attribute.
type Column struct {
	Name string
	Kind Kind
}

// Row is one record. Values align with Table.Columns; nil is a missing value.
type Row struct {
	Values []any
	Geom   geom.T
}

// Table is a loaded snapshot of a dataset. Geospatial tables carry a
// geometry per row in the spatial reference SRID (0 when unknown).
// Definition is the source's WKT or PROJ.4 text for SRID, when known.
type Table struct {
	Name       string
	Columns    []Column
	Rows       []Row
	SRID       int
	Definition string
	Geospatial bool
}

// MissingColumnsError reports required columns absent from a dataset.
type MissingColumnsError struct {
	Dataset string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("dataset %s is missing required columns: %s", e.Dataset, strings.Join(e.Columns, ", "))
}

// ErrMissingGeometry is returned when a geospatial operation meets a table
// loaded without geometries.
var ErrMissingGeometry = errors.New("table has no geometry")

// New creates an empty table with the given columns.
func New(name string, columns ...Column) *Table {
	return &Table{Name: name, Columns: columns}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnNames lists column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Require fails with a *MissingColumnsError naming every absent column.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Dataset: t.Name, Columns: missing}
	}
	return nil
}

// Value returns row i's value in column name, or nil if the column is absent.
func (t *Table) Value(i int, name string) any {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	return t.Rows[i].Values[idx]
}

// Text returns row i's value as a plain string. Missing values and absent
// columns yield "" and false.
func (t *Table) Text(i int, name string) (string, bool) {
	v := t.Value(i, name)
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return Format(v), true
}

// Append adds a row. values must align with the columns.
func (t *Table) Append(g geom.T, values ...any) {
	t.Rows = append(t.Rows, Row{Values: values, Geom: g})
}

// AddColumn appends a column whose value for row i is fn(i). The table is
// extended in place.
func (t *Table) AddColumn(col Column, fn func(i int) any) {
	t.Columns = append(slices.Clip(t.Columns), col)
	for i := range t.Rows {
		t.Rows[i].Values = append(slices.Clip(t.Rows[i].Values), fn(i))
	}
}

// SetColumn overwrites an existing column with fn(i) for every row, or adds
// it when absent.
func (t *Table) SetColumn(col Column, fn func(i int) any) {
	idx := t.ColumnIndex(col.Name)
	if idx < 0 {
		t.AddColumn(col, fn)
		return
	}
	t.Columns = slices.Clone(t.Columns)
	t.Columns[idx] = col
	for i := range t.Rows {
		vals := slices.Clone(t.Rows[i].Values)
		vals[idx] = fn(i)
		t.Rows[i].Values = vals
	}
}

// Filter returns a new table holding the rows for which keep is true.
// Row values are shared with the receiver.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.shell()
	for i, r := range t.Rows {
		if keep(i) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Pick returns a new table with the rows at the given positions, in order.
func (t *Table) Pick(rows []int) *Table {
	out := t.shell()
	out.Rows = make([]Row, 0, len(rows))
	for _, i := range rows {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out
}

// Select projects the table onto the named columns, in the given order.
// Geometry is kept.
func (t *Table) Select(columns ...string) (*Table, error) {
	if err := t.Require(columns...); err != nil {
		return nil, err
	}
	idx := make([]int, len(columns))
	out := &Table{Name: t.Name, SRID: t.SRID, Definition: t.Definition, Geospatial: t.Geospatial}
	for i, name := range columns {
		idx[i] = t.ColumnIndex(name)
		out.Columns = append(out.Columns, t.Columns[idx[i]])
	}
	out.Rows = make([]Row, len(t.Rows))
	for r, row := range t.Rows {
		vals := make([]any, len(idx))
		for i, j := range idx {
			vals[i] = row.Values[j]
		}
		out.Rows[r] = Row{Values: vals, Geom: row.Geom}
	}
	return out, nil
}

// Rename returns a shallow copy of the table with a new name.
func (t *Table) Rename(name string) *Table {
	out := *t
	out.Name = name
	return &out
}

// Reproject returns a copy of the table with every geometry converted to
// srid. Attribute values are shared.
func (t *Table) Reproject(srid int) (*Table, error) {
	if !t.Geospatial {
		return nil, fmt.Errorf("reproject %s: %w", t.Name, ErrMissingGeometry)
	}
	r, err := t.reprojector(srid)
	if err != nil {
		return nil, fmt.Errorf("reproject %s: %w", t.Name, err)
	}
	out := t.shell()
	out.SRID = r.Target()
	if !r.Identity() {
		out.Definition = r.Definition()
	}
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		g, err := r.Apply(row.Geom)
		if err != nil {
			return nil, fmt.Errorf("reproject %s row %d: %w", t.Name, i, err)
		}
		out.Rows[i] = Row{Values: row.Values, Geom: g}
	}
	return out, nil
}

// Concat stacks b under a. The result has the union of both column sets in
// first-seen order; a column missing from one input is nil in its rows.
// Both tables must share a spatial reference.
func Concat(name string, a, b *Table) (*Table, error) {
	if a.Geospatial != b.Geospatial {
		return nil, fmt.Errorf("concat %s and %s: mixed geospatial and flat tables", a.Name, b.Name)
	}
	if a.Geospatial && a.SRID != b.SRID {
		return nil, fmt.Errorf("concat %s (EPSG:%d) and %s (EPSG:%d): spatial references differ", a.Name, a.SRID, b.Name, b.SRID)
	}

	out := &Table{Name: name, SRID: a.SRID, Definition: a.Definition, Geospatial: a.Geospatial}
	out.Columns = append(out.Columns, a.Columns...)
	for _, c := range b.Columns {
		i := out.ColumnIndex(c.Name)
		if i < 0 {
			out.Columns = append(out.Columns, c)
			continue
		}
		if out.Columns[i].Kind != c.Kind {
			out.Columns[i].Kind = widen(out.Columns[i].Kind, c.Kind)
		}
	}

	out.Rows = make([]Row, 0, a.Len()+b.Len())
	for _, src := range []*Table{a, b} {
		pos := make([]int, len(out.Columns))
		for i, c := range out.Columns {
			pos[i] = src.ColumnIndex(c.Name)
		}
		for _, row := range src.Rows {
			vals := make([]any, len(out.Columns))
			for i, j := range pos {
				if j >= 0 {
					vals[i] = row.Values[j]
				}
			}
			out.Rows = append(out.Rows, Row{Values: vals, Geom: row.Geom})
		}
	}
	return out, nil
}

// widen picks a column kind that can hold values of both a and b.
func widen(a, b Kind) Kind {
	if (a == KindInteger && b == KindReal) || (a == KindReal && b == KindInteger) {
		return KindReal
	}
	return KindText
}

func (t *Table) shell() *Table {
	return &Table{
		Name:       t.Name,
		Columns:    t.Columns,
		SRID:       t.SRID,
		Definition: t.Definition,
		Geospatial: t.Geospatial,
	}
}

func (t *Table) reprojector(srid int) (*geo.Reprojector, error) {
	if t.SRID == srid {
		same := geo.CRS{SRID: srid}
		return geo.NewReprojector(same, same)
	}
	src, err := geo.Resolve(t.SRID, t.Definition)
	if err != nil {
		return nil, err
	}
	dst, err := geo.Lookup(srid)
	if err != nil {
		return nil, err
	}
	return geo.NewReprojector(src, dst)
}
