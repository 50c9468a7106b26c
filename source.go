package gendas

import "context"

// Partition is a stride-based shard of a source's row stream: ordinal i is
// yielded iff i mod P == K (GLOSSARY "Partition (k, P)"). A nil *Partition
// means unpartitioned iteration.
type Partition struct {
	K, P int
}

// RowIter is a single-pass, forward-only iterator over Rows, shaped after
// grailbio/bio's encoding/bamprovider.Iterator (Scan/Record/Err/Close), the
// teacher's own convention for a lazy record stream.
type RowIter interface {
	// Scan advances the iterator and reports whether a Row is available.
	Scan() bool
	// Row returns the current row. Valid only after Scan returns true.
	Row() Row
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases any resources held by the iterator.
	Close() error
}

// SegmentIter is the analogous iterator for Source.Intersect.
type SegmentIter interface {
	Scan() bool
	Segment() Segment
	Err() error
	Close() error
}

// GroupEntry is one (value, segments) pair of a GroupIndex.
type GroupEntry struct {
	Value    Value
	Segments []Segment
}

// GroupIndex is the ordered `value -> segments` mapping built at source-open
// time for an indexed column (spec.md §3 "Group index"). Order reflects
// first-occurrence order in the source.
type GroupIndex []GroupEntry

// Source is the abstract read interface every backing store implements
// (spec.md §4.1). Implementations must be snapshot-restartable: a value
// copy handed to a worker goroutine is entitled to lazily reopen any file
// handle on first use (spec.md §9 open question 4).
type Source interface {
	// Label is the name this source was registered under in an Engine.
	Label() string
	// Schema describes the source's columns and coordinate mapping.
	Schema() *Schema

	// Iterate produces every row of the source in natural order. If part
	// is non-nil, only rows whose zero-based ordinal satisfies
	// ord mod part.P == part.K are yielded.
	Iterate(ctx context.Context, part *Partition) (RowIter, error)

	// Query yields every row whose [begin,end] overlaps the requested
	// region, under the source's own convention. No ordering is
	// guaranteed; duplicates must not be introduced.
	Query(ctx context.Context, seq string, begin, end int64) (RowIter, error)

	// Intersect yields normalized (seq, begin, end+1) segments for each row
	// overlapping the region: the half-open-for-external-callers
	// convention, one past the engine's own inclusive End (spec.md §4.1).
	Intersect(ctx context.Context, seq string, begin, end int64) (SegmentIter, error)

	// Index returns the group index built for column label. It fails with
	// an IndexMissing error if no such index was built at open time.
	Index(label string) (GroupIndex, error)
}

// sliceRowIter adapts a pre-materialized []Row to the RowIter interface.
// Several sources (intersect-free in-memory ones, Slice replay) have all
// their rows at hand already and don't need a true streaming iterator.
type sliceRowIter struct {
	rows []Row
	pos  int
}

// NewSliceRowIter wraps rows as a RowIter.
func NewSliceRowIter(rows []Row) RowIter {
	return &sliceRowIter{rows: rows, pos: -1}
}

func (s *sliceRowIter) Scan() bool {
	s.pos++
	return s.pos < len(s.rows)
}

func (s *sliceRowIter) Row() Row     { return s.rows[s.pos] }
func (s *sliceRowIter) Err() error   { return nil }
func (s *sliceRowIter) Close() error { return nil }

type sliceSegmentIter struct {
	segs []Segment
	pos  int
}

// NewSliceSegmentIter wraps segs as a SegmentIter.
func NewSliceSegmentIter(segs []Segment) SegmentIter {
	return &sliceSegmentIter{segs: segs, pos: -1}
}

func (s *sliceSegmentIter) Scan() bool {
	s.pos++
	return s.pos < len(s.segs)
}

func (s *sliceSegmentIter) Segment() Segment { return s.segs[s.pos] }
func (s *sliceSegmentIter) Err() error       { return nil }
func (s *sliceSegmentIter) Close() error     { return nil }

// NormalizedSegment returns row's segment widened by one at the End, the
// half-open-for-external-callers form every Source.Intersect must return
// (spec.md §4.1 "yield normalized (seq, begin, end+1) triples"), as opposed
// to the engine's own inclusive Row.Begin/Row.End convention.
func NormalizedSegment(row Row) Segment {
	seg := row.Segment()
	seg.End++
	return seg
}

// drainRows collects every row of it into a slice, closing it afterwards.
func drainRows(it RowIter) ([]Row, error) {
	defer it.Close()
	var rows []Row
	for it.Scan() {
		rows = append(rows, it.Row())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
