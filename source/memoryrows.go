package source

import (
	"context"

	"github.com/jordeu/gendas"
)

// MemoryRows is a Source backed by a plain in-process []gendas.Row with no
// backing file, the Go analogue of original_source/gendas/sources.py's
// PandasSource (SPEC_FULL.md §7). Useful for tests and for small
// programmatically-built lookup tables passed straight to Engine.Register.
type MemoryRows struct {
	label  string
	schema *gendas.Schema
	rows   []gendas.Row
}

// NewMemoryRows builds a MemoryRows source. Rows must already follow
// schema.
func NewMemoryRows(label string, schema *gendas.Schema, rows []gendas.Row) *MemoryRows {
	return &MemoryRows{label: label, schema: schema, rows: rows}
}

func (m *MemoryRows) Label() string        { return m.label }
func (m *MemoryRows) Schema() *gendas.Schema { return m.schema }

// Iterate yields every row, honoring part if given (spec.md §4.1).
func (m *MemoryRows) Iterate(ctx context.Context, part *gendas.Partition) (gendas.RowIter, error) {
	if part == nil {
		return gendas.NewSliceRowIter(m.rows), nil
	}
	var out []gendas.Row
	for i, r := range m.rows {
		if i%part.P == part.K {
			out = append(out, r)
		}
	}
	return gendas.NewSliceRowIter(out), nil
}

// Query is not supported: PandasSource.query raises NotImplementedError in
// the original, since a plain row slice carries no coordinate index.
func (m *MemoryRows) Query(ctx context.Context, seq string, begin, end int64) (gendas.RowIter, error) {
	return nil, gendas.NotSupported("MemoryRows.Query")
}

// Intersect is not supported, for the same reason as Query.
func (m *MemoryRows) Intersect(ctx context.Context, seq string, begin, end int64) (gendas.SegmentIter, error) {
	return nil, gendas.NotSupported("MemoryRows.Intersect")
}

// Index is not supported: MemoryRows builds no group index at open time.
func (m *MemoryRows) Index(label string) (gendas.GroupIndex, error) {
	return nil, gendas.NotSupported("MemoryRows.Index")
}
