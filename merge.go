package gendas

import (
	"context"
	"fmt"

	"v.io/x/lib/vlog"
)

// MergedRowIter is the merge-side analogue of RowIter: a single-pass,
// forward-only iterator over MergedRows.
type MergedRowIter interface {
	Scan() bool
	Row() MergedRow
	Err() error
	Close() error
}

// MergeView is the closed set of merge-producing variants (spec.md §4.2:
// Merge, MultiMerge, MergeFilter). Unlike RowView, Len always fails —
// spec.md §4.2 "Merged views fail with UnsizedView if len is requested
// without iteration" — and spec.md's Non-goals explicitly exclude sizing a
// join without scanning.
type MergeView interface {
	Iterate(ctx context.Context, part *Partition) (MergedRowIter, error)
	Len(ctx context.Context) (int, error)
	// Sources returns every (label, source) pair participating in this
	// merge, left to right.
	Sources() []labeledSource
	// viewEngine returns the Engine the merge was built from.
	viewEngine() *Engine
}

type labeledSource struct {
	label  string
	source Source
}

// Flatten concatenates any number of slices into one, ported from
// original_source/gendas/utils.py's flatten(). MultiMerge uses it to
// splice a parent merge's source list into the child merge instead of
// nesting (spec.md §4.3 "N-source merge").
func Flatten[T any](lists ...[]T) []T {
	var out []T
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func findLabeledSource(sources []labeledSource, label string) (Source, bool) {
	for _, s := range sources {
		if s.label == label {
			return s.source, true
		}
	}
	return nil, false
}

// onEquality reports whether merged agrees, column by column, across every
// source that carries that column (spec.md §4.3 "on columns may live in
// any participating source; first schema that contains the name wins").
func onEquality(sources []labeledSource, on []string, merged MergedRow) bool {
	for _, col := range on {
		var want *Value
		for _, s := range sources {
			row, ok := merged.Get(s.label)
			if !ok || !row.Schema().Has(col) {
				continue
			}
			v := row.Get(col)
			if want == nil {
				want = &v
			} else if !want.Equal(v) {
				return false
			}
		}
	}
	return true
}

// mergedRowSpan computes the intersected interval of every row already
// present in merged (spec.md §4.3 "N-source merge" step 1): begin* is the
// max of every source's begin, end* the min of every source's end; the
// sequence is taken from any constituent row (they share one by
// construction).
func mergedRowSpan(merged MergedRow) (seq string, begin, end int64) {
	labels := merged.Labels()
	segs := make([]Segment, len(labels))
	for i, label := range labels {
		segs[i] = merged.MustGet(label).Segment()
	}
	span := IntersectAll(segs)
	return span.Seq, span.Begin, span.End
}

// Merge is the two-source interval-aware inner join (spec.md §4.3
// "Two-source merge"). left drives iteration order.
type Merge struct {
	left  *Dataset
	right *Dataset
	on    []string
}

func newMerge(left, right *Dataset, on []string) *Merge {
	return &Merge{left: left, right: right, on: on}
}

func (m *Merge) Sources() []labeledSource {
	return []labeledSource{
		{label: m.left.source.Label(), source: m.left.source},
		{label: m.right.source.Label(), source: m.right.source},
	}
}

func (m *Merge) viewEngine() *Engine { return m.left.engine }

// Len always fails: a merge's cardinality cannot be known without
// scanning (spec.md §1 Non-goals, §4.2, S6).
func (m *Merge) Len(ctx context.Context) (int, error) {
	return 0, E(UnsizedView, "len of a merge requires scanning; use Count")
}

// Filter narrows the merge to rows for which pred holds.
func (m *Merge) Filter(pred func(MergedRow) bool) *MergeFilter {
	return &MergeFilter{parent: m, pred: pred}
}

// Merge extends this join with another source, producing a MultiMerge
// (spec.md §4.3 "N-source merge").
func (m *Merge) Merge(right *Dataset, on []string) *MultiMerge {
	return &MultiMerge{parent: m, right: right, on: on}
}

// Column projects the nested row of one participating source out of every
// merged row (spec.md §4.2 "For a merged parent the label selects a
// nested source row").
func (m *Merge) Column(label string) *MergeColumnView {
	return &MergeColumnView{parent: m, label: label}
}

// Count scans the join sequentially and counts the merged rows produced.
func (m *Merge) Count(ctx context.Context) (int, error) { return countMerge(ctx, m) }

func (m *Merge) Iterate(ctx context.Context, part *Partition) (MergedRowIter, error) {
	leftIt, err := m.left.Iterate(ctx, part)
	if err != nil {
		return nil, err
	}
	return &mergeRowIter{
		leftLabel:  m.left.source.Label(),
		rightLabel: m.right.source.Label(),
		sources:    m.Sources(),
		on:         m.on,
		leftIt:     leftIt,
		ctx:        ctx,
		queryRight: func(ctx context.Context, seq string, begin, end int64) ([]Row, error) {
			return queryRows(ctx, m.right.source, seq, begin, end)
		},
	}, nil
}

// mergeRowIter drives the left iterator and, for each left row, fans out
// the (possibly several) matching right rows before advancing.
type mergeRowIter struct {
	leftLabel, rightLabel string
	sources               []labeledSource
	on                     []string
	leftIt                 RowIter
	queryRight             func(ctx context.Context, seq string, begin, end int64) ([]Row, error)

	ctx context.Context
	buf []MergedRow
	pos int
	cur MergedRow
	err error
}

func (it *mergeRowIter) Scan() bool {
	for {
		if it.pos < len(it.buf) {
			it.cur = it.buf[it.pos]
			it.pos++
			return true
		}
		if !it.leftIt.Scan() {
			it.err = it.leftIt.Err()
			return false
		}
		left := it.leftIt.Row()
		// §4.3 step 1: query the right source over the inclusive range
		// [Begin-1, End] of the (also inclusive) driver row, so a right row
		// ending one position before the driver row's Begin still matches
		// (SPEC_FULL.md §8.1 — the documented, permanent join convention).
		rightRows, err := it.queryRight(it.ctx, left.Seq(), left.Begin()-1, left.End())
		if err != nil {
			it.err = err
			return false
		}
		buf := it.buf[:0]
		for _, r := range rightRows {
			candidate := NewMergedRow().With(it.leftLabel, left).With(it.rightLabel, r)
			if onEquality(it.sources, it.on, candidate) {
				buf = append(buf, candidate)
			}
		}
		it.buf = buf
		it.pos = 0
	}
}

func (it *mergeRowIter) Row() MergedRow { return it.cur }
func (it *mergeRowIter) Err() error     { return it.err }
func (it *mergeRowIter) Close() error   { return it.leftIt.Close() }

// queryRows runs src.Query and drains it, logging and treating a query
// failure as an empty result (spec.md §7 "QueryFailure ... logged; treated
// as empty result; iteration continues").
func queryRows(ctx context.Context, src Source, seq string, begin, end int64) ([]Row, error) {
	it, err := src.Query(ctx, seq, begin, end)
	if err != nil {
		vlog.Errorf("gendas: query failed on source %q region %s:%d-%d: %v", src.Label(), seq, begin, end, err)
		return nil, nil
	}
	rows, err := drainRows(it)
	if err != nil {
		vlog.Errorf("gendas: query failed on source %q region %s:%d-%d: %v", src.Label(), seq, begin, end, err)
		return nil, nil
	}
	return rows, nil
}

// MultiMerge is the N-source extension of an existing merge (spec.md §4.3
// "N-source merge (MultiMerge wraps an existing Merge)").
type MultiMerge struct {
	parent MergeView
	right  *Dataset
	on     []string
}

func (mm *MultiMerge) Sources() []labeledSource {
	return Flatten(mm.parent.Sources(), []labeledSource{{label: mm.right.source.Label(), source: mm.right.source}})
}

func (mm *MultiMerge) viewEngine() *Engine { return mm.parent.viewEngine() }

func (mm *MultiMerge) Len(ctx context.Context) (int, error) {
	return 0, E(UnsizedView, "len of a merge requires scanning; use Count")
}

func (mm *MultiMerge) Filter(pred func(MergedRow) bool) *MergeFilter {
	return &MergeFilter{parent: mm, pred: pred}
}

func (mm *MultiMerge) Merge(right *Dataset, on []string) *MultiMerge {
	return &MultiMerge{parent: mm, right: right, on: on}
}

func (mm *MultiMerge) Column(label string) *MergeColumnView {
	return &MergeColumnView{parent: mm, label: label}
}

func (mm *MultiMerge) Count(ctx context.Context) (int, error) { return countMerge(ctx, mm) }

func (mm *MultiMerge) Iterate(ctx context.Context, part *Partition) (MergedRowIter, error) {
	parentIt, err := mm.parent.Iterate(ctx, part)
	if err != nil {
		return nil, err
	}
	return &multiMergeRowIter{
		rightLabel: mm.right.source.Label(),
		sources:    mm.Sources(),
		on:         mm.on,
		parentIt:   parentIt,
		ctx:        ctx,
		queryRight: func(ctx context.Context, seq string, begin, end int64) ([]Row, error) {
			return queryRows(ctx, mm.right.source, seq, begin, end)
		},
	}, nil
}

type multiMergeRowIter struct {
	rightLabel string
	sources    []labeledSource
	on         []string
	parentIt   MergedRowIter
	queryRight func(ctx context.Context, seq string, begin, end int64) ([]Row, error)

	ctx context.Context
	buf []MergedRow
	pos int
	cur MergedRow
	err error
}

func (it *multiMergeRowIter) Scan() bool {
	for {
		if it.pos < len(it.buf) {
			it.cur = it.buf[it.pos]
			it.pos++
			return true
		}
		if !it.parentIt.Scan() {
			it.err = it.parentIt.Err()
			return false
		}
		parentRow := it.parentIt.Row()
		seq, begin, end := mergedRowSpan(parentRow)
		// If the interval intersection is empty, still query: the right
		// source's query will yield nothing (spec.md §4.3 step 1).
		rightRows, err := it.queryRight(it.ctx, seq, begin-1, end)
		if err != nil {
			it.err = err
			return false
		}
		buf := it.buf[:0]
		for _, r := range rightRows {
			candidate := parentRow.With(it.rightLabel, r)
			if onEquality(it.sources, it.on, candidate) {
				buf = append(buf, candidate)
			}
		}
		it.buf = buf
		it.pos = 0
	}
}

func (it *multiMergeRowIter) Row() MergedRow { return it.cur }
func (it *multiMergeRowIter) Err() error     { return it.err }
func (it *multiMergeRowIter) Close() error   { return it.parentIt.Close() }

// MergeFilter narrows a MergeView to rows for which pred holds (spec.md
// §4.2).
type MergeFilter struct {
	parent MergeView
	pred   func(MergedRow) bool
}

func (f *MergeFilter) Sources() []labeledSource { return f.parent.Sources() }

func (f *MergeFilter) viewEngine() *Engine { return f.parent.viewEngine() }

func (f *MergeFilter) Len(ctx context.Context) (int, error) {
	return 0, E(UnsizedView, "len of a merge requires scanning; use Count")
}

func (f *MergeFilter) Merge(right *Dataset, on []string) *MultiMerge {
	return &MultiMerge{parent: f, right: right, on: on}
}

func (f *MergeFilter) Filter(pred func(MergedRow) bool) *MergeFilter {
	return &MergeFilter{parent: f, pred: pred}
}

func (f *MergeFilter) Column(label string) *MergeColumnView {
	return &MergeColumnView{parent: f, label: label}
}

func (f *MergeFilter) Count(ctx context.Context) (int, error) { return countMerge(ctx, f) }

func (f *MergeFilter) Iterate(ctx context.Context, part *Partition) (MergedRowIter, error) {
	parentIt, err := f.parent.Iterate(ctx, part)
	if err != nil {
		return nil, err
	}
	return &mergeFilterRowIter{parent: parentIt, pred: f.pred}, nil
}

type mergeFilterRowIter struct {
	parent MergedRowIter
	pred   func(MergedRow) bool
	cur    MergedRow
}

func (it *mergeFilterRowIter) Scan() bool {
	for it.parent.Scan() {
		r := it.parent.Row()
		if it.pred(r) {
			it.cur = r
			return true
		}
	}
	return false
}

func (it *mergeFilterRowIter) Row() MergedRow { return it.cur }
func (it *mergeFilterRowIter) Err() error     { return it.parent.Err() }
func (it *mergeFilterRowIter) Close() error   { return it.parent.Close() }

// MergeColumnView projects one participating source's nested row out of
// every merged row (spec.md §4.2 "MergeColumnView(merge, label)"). Unlike
// Column, it yields Rows, not Values, so it implements RowView itself and
// can be filtered, projected or grouped-by exactly like a plain Dataset.
type MergeColumnView struct {
	parent MergeView
	label  string
}

func (c *MergeColumnView) source() (Source, error) {
	src, ok := findLabeledSource(c.parent.Sources(), c.label)
	if !ok {
		return nil, E(SchemaError, fmt.Sprintf("no such source in merge: %q", c.label))
	}
	return src, nil
}

func (c *MergeColumnView) Schema() *Schema {
	src, err := c.source()
	if err != nil {
		panic(err)
	}
	return src.Schema()
}

func (c *MergeColumnView) rootSource() Source {
	src, err := c.source()
	if err != nil {
		panic(err)
	}
	return src
}

func (c *MergeColumnView) viewEngine() *Engine { return c.parent.viewEngine() }

// Len delegates straight to the merge (SPEC_FULL.md §8.2 open question 2:
// a column view of a merge never scans on its own to produce a count).
func (c *MergeColumnView) Len(ctx context.Context) (int, error) { return c.parent.Len(ctx) }

func (c *MergeColumnView) Iterate(ctx context.Context, part *Partition) (RowIter, error) {
	it, err := c.parent.Iterate(ctx, part)
	if err != nil {
		return nil, err
	}
	return &mergeColumnRowIter{parent: it, label: c.label}, nil
}

// Column further projects a single field out of the nested row.
func (c *MergeColumnView) Column(label string) *Column {
	return &Column{parent: c, label: label}
}

// Filter narrows this nested-row view.
func (c *MergeColumnView) Filter(pred func(Row) bool) *Filter {
	return &Filter{parent: c, pred: pred}
}

type mergeColumnRowIter struct {
	parent MergedRowIter
	label  string
}

func (it *mergeColumnRowIter) Scan() bool { return it.parent.Scan() }
func (it *mergeColumnRowIter) Row() Row   { return it.parent.Row().MustGet(it.label) }
func (it *mergeColumnRowIter) Err() error { return it.parent.Err() }
func (it *mergeColumnRowIter) Close() error { return it.parent.Close() }

// countMerge scans v once, counting the merged rows it produces. Unlike
// Len, this is always legal: the spec only forbids sizing a merge
// *without* scanning.
func countMerge(ctx context.Context, v MergeView) (int, error) {
	it, err := v.Iterate(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for it.Scan() {
		n++
	}
	return n, it.Err()
}
