package gendas

import "context"

// Slice is a view of the engine restricted to a list of segments (spec.md
// §3 "Slice", §4.2 "Slice(engine, segments)"). It is built once per group
// during aggregation and lives for one aggregator invocation.
type Slice struct {
	engine   *Engine
	segments []Segment
}

// NewSlice builds a Slice over engine restricted to segments, in the order
// given (spec.md §3 "order preserved; duplicates permitted").
func NewSlice(engine *Engine, segments []Segment) *Slice {
	return &Slice{engine: engine, segments: segments}
}

// Segments returns the segments this slice is restricted to.
func (s *Slice) Segments() []Segment { return s.segments }

// Dataset returns a view of the named source, clipped to this slice's
// segments (spec.md §4.2 "SliceDataset(source, slice)").
func (s *Slice) Dataset(label string) (*SliceDataset, error) {
	src, err := s.engine.Source(label)
	if err != nil {
		return nil, err
	}
	return &SliceDataset{source: src, slice: s}, nil
}

// SliceDataset reads are the concatenation of source.Query(seq,b,e) across
// the slice's segments, in segment order, memoized on first pass (spec.md
// §4.2).
type SliceDataset struct {
	source Source
	slice  *Slice

	memoized bool
	rows     []Row
	err      error
}

func (sd *SliceDataset) Schema() *Schema      { return sd.source.Schema() }
func (sd *SliceDataset) rootSource() Source   { return sd.source }
func (sd *SliceDataset) viewEngine() *Engine  { return sd.slice.engine }

// Iterate ignores part: a slice-restricted read is already a small,
// bounded set of rows and is not partitioned further.
func (sd *SliceDataset) Iterate(ctx context.Context, part *Partition) (RowIter, error) {
	rows, err := sd.materialize(ctx)
	if err != nil {
		return nil, err
	}
	return NewSliceRowIter(rows), nil
}

func (sd *SliceDataset) Len(ctx context.Context) (int, error) {
	rows, err := sd.materialize(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Column projects a single field out of every row of this slice.
func (sd *SliceDataset) Column(label string) *Column {
	return &Column{parent: sd, label: label}
}

// Filter narrows this slice-restricted view.
func (sd *SliceDataset) Filter(pred func(Row) bool) *Filter {
	return &Filter{parent: sd, pred: pred}
}

func (sd *SliceDataset) materialize(ctx context.Context) ([]Row, error) {
	if sd.memoized {
		return sd.rows, sd.err
	}
	var rows []Row
	for _, seg := range sd.slice.segments {
		r, err := queryRows(ctx, sd.source, seg.Seq, seg.Begin, seg.End)
		if err != nil {
			sd.memoized = true
			sd.err = err
			return nil, err
		}
		rows = append(rows, r...)
	}
	sd.memoized = true
	sd.rows = rows
	return rows, nil
}
