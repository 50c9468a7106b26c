package gendas

import "fmt"

// Row is an ordered mapping from column name to typed cell value, following
// a single Source's Schema (spec.md §3). Rows are constructed per-yield and
// are not retained by the view that produced them.
type Row struct {
	schema *Schema
	values []Value
}

// NewRow builds a Row directly from parsed values, in schema column order.
// Used by sources that don't go through Schema.ParseRow (e.g. a reference
// sequence source synthesizing a row per query).
func NewRow(schema *Schema, values []Value) Row {
	return Row{schema: schema, values: append([]Value(nil), values...)}
}

// Schema returns the Row's schema.
func (r Row) Schema() *Schema { return r.schema }

// Columns returns the row's column names, in schema order.
func (r Row) Columns() []string { return r.schema.Columns() }

// Get returns the value of column label. Referencing a column that isn't
// part of the schema is a programmer error (spec.md §7 SchemaError) and
// panics, matching the source language's KeyError-on-bad-column behavior.
func (r Row) Get(label string) Value {
	idx, ok := r.schema.ColumnIndex(label)
	if !ok {
		panic(fmt.Sprintf("gendas: row has no column %q", label))
	}
	return r.values[idx]
}

// Seq, Begin and End read the row's coordinate triple.
func (r Row) Seq() string   { return r.Get(r.schema.SeqCol()).String() }
func (r Row) Begin() int64  { return r.Get(r.schema.BeginCol()).Int64() }
func (r Row) End() int64    { return r.Get(r.schema.EndCol()).Int64() }
func (r Row) Segment() Segment {
	return Segment{Seq: r.Seq(), Begin: r.Begin(), End: r.End()}
}

// MergedRow is a mapping from source label to that source's Row, in
// left-to-right join order (spec.md §3, §5 "Within a merged row,
// left-to-right source composition order is preserved").
type MergedRow struct {
	labels []string
	rows   map[string]Row
}

// NewMergedRow builds an empty MergedRow.
func NewMergedRow() MergedRow {
	return MergedRow{rows: make(map[string]Row)}
}

// With returns a MergedRow extended with (label, row). The receiver is left
// untouched; merged rows are built incrementally as a join walks its
// sources, and sharing the backing map across in-flight rows would corrupt
// concurrently-iterated results.
func (m MergedRow) With(label string, row Row) MergedRow {
	out := MergedRow{
		labels: make([]string, len(m.labels), len(m.labels)+1),
		rows:   make(map[string]Row, len(m.rows)+1),
	}
	copy(out.labels, m.labels)
	for k, v := range m.rows {
		out.rows[k] = v
	}
	out.labels = append(out.labels, label)
	out.rows[label] = row
	return out
}

// Get returns the Row contributed by source label, and whether it is
// present.
func (m MergedRow) Get(label string) (Row, bool) {
	r, ok := m.rows[label]
	return r, ok
}

// MustGet returns the Row contributed by source label, panicking if absent
// (every participating source label is always present in a merged row,
// spec.md §3).
func (m MergedRow) MustGet(label string) Row {
	r, ok := m.rows[label]
	if !ok {
		panic(fmt.Sprintf("gendas: merged row has no source %q", label))
	}
	return r
}

// Labels returns the participating source labels in left-to-right join
// order.
func (m MergedRow) Labels() []string { return m.labels }
