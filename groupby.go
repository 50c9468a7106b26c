package gendas

import (
	"context"
	"encoding/binary"
	"math"

	farm "github.com/dgryski/go-farm"
)

// Result is the output row of an aggregation: a plain label -> value
// mapping, since an aggregated row's field set (C.label plus whatever an
// aggregator produces) has no single backing Schema the way a Source row
// does (spec.md §4.4).
type Result map[string]Value

// FieldAggregator computes one output field's value over a group's slice
// (spec.md §4.4 "a mapping output-field -> aggregator(slice) -> value").
type FieldAggregator func(ctx context.Context, slice *Slice) (Value, error)

// RowAggregator builds a whole result row from a group's slice and a seed
// row that already carries C.label (spec.md §4.4 "a single row-building
// aggregator(slice, seed-row) -> row").
type RowAggregator func(ctx context.Context, slice *Slice, seed Result) (Result, error)

// GroupBy consumes a grouping column whose dataset's source carries a
// group index on that column (spec.md §4.4).
type GroupBy struct {
	engine *Engine
	column *Column
	// Args holds extra keyword arguments as a plain map. It is only stored
	// on the GroupBy: the aggregate methods do not pass it to
	// FieldAggregator or RowAggregator calls, whose signatures carry no
	// argument map.
	Args map[string]interface{}
}

// NewGroupBy builds a GroupBy over the grouping column. engine is needed
// to size the parallel aggregator's chunking.
func NewGroupBy(engine *Engine, column *Column) *GroupBy {
	return &GroupBy{engine: engine, column: column}
}

// group is one retained (label, segments) pair after narrowing to the
// values reachable through the view chain (spec.md §4.4 steps 1-3).
type group struct {
	value    Value
	segments []Segment
}

// regions obtains the full index, narrows it to the labels actually
// reachable through the column's current view chain, and preserves index
// order (spec.md §4.4 steps 1-3).
func (g *GroupBy) regions(ctx context.Context) ([]group, error) {
	src := g.column.parent.rootSource()
	index, err := src.Index(g.column.label)
	if err != nil {
		return nil, err
	}

	labels := make(map[uint64]struct{})
	it, err := g.column.Iterate(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Scan() {
		labels[valueHashKey(it.Value())] = struct{}{}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	var groups []group
	for _, entry := range index {
		if _, ok := labels[valueHashKey(entry.Value)]; ok {
			groups = append(groups, group{value: entry.Value, segments: entry.Segments})
		}
	}
	return groups, nil
}

// valueHashKey hashes a Value's canonical byte encoding with farm's Hash64
// (SPEC_FULL.md §3 domain-stack wiring: "hashes indexed-column values into
// the labels membership set so membership testing doesn't require the
// cell's dynamic Value to be comparable in a map key position beyond its
// hash").
func valueHashKey(v Value) uint64 {
	var buf [9]byte
	buf[0] = byte(v.Kind())
	switch v.Kind() {
	case KindString:
		return farm.Hash64([]byte(v.String()))
	case KindInt64:
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Int64()))
	case KindFloat64:
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.Float64()))
	}
	return farm.Hash64(buf[:])
}

func (g *GroupBy) runFields(ctx context.Context, slice *Slice, value Value, fields map[string]FieldAggregator) (Result, error) {
	result := make(Result, len(fields)+1)
	result[g.column.label] = value
	for field, agg := range fields {
		v, err := agg(ctx, slice)
		if err != nil {
			return nil, err
		}
		result[field] = v
	}
	return result, nil
}

func (g *GroupBy) runRow(ctx context.Context, slice *Slice, value Value, agg RowAggregator) (Result, error) {
	seed := Result{g.column.label: value}
	return agg(ctx, slice, seed)
}

// AggregateFieldsSequential runs the field-map aggregator over every
// retained group, in index order, without the worker pool (spec.md §4.4
// "A sequential variant ... performs steps 1-3 and 5 without the pool;
// results are in index order").
func (g *GroupBy) AggregateFieldsSequential(ctx context.Context, fields map[string]FieldAggregator, yield func(Result) bool) error {
	groups, err := g.regions(ctx)
	if err != nil {
		return err
	}
	for _, grp := range groups {
		slice := NewSlice(g.engine, grp.segments)
		result, err := g.runFields(ctx, slice, grp.value, fields)
		if err != nil {
			return err
		}
		if !yield(result) {
			return nil
		}
	}
	return nil
}

// AggregateRowSequential is the row-builder analogue of
// AggregateFieldsSequential.
func (g *GroupBy) AggregateRowSequential(ctx context.Context, agg RowAggregator, yield func(Result) bool) error {
	groups, err := g.regions(ctx)
	if err != nil {
		return err
	}
	for _, grp := range groups {
		slice := NewSlice(g.engine, grp.segments)
		result, err := g.runRow(ctx, slice, grp.value, agg)
		if err != nil {
			return err
		}
		if !yield(result) {
			return nil
		}
	}
	return nil
}

// AggregateFields partitions the retained groups into
// engine.chunkCount() chunks and runs the field-map aggregator across the
// worker pool, streaming results unordered across chunks (spec.md §4.4
// steps 4-6).
func (g *GroupBy) AggregateFields(ctx context.Context, fields map[string]FieldAggregator, yield func(Result) bool) error {
	groups, err := g.regions(ctx)
	if err != nil {
		return err
	}
	return g.runParallel(ctx, groups, func(ctx context.Context, grp group) (Result, error) {
		slice := NewSlice(g.engine, grp.segments)
		return g.runFields(ctx, slice, grp.value, fields)
	}, yield)
}

// AggregateRow is the row-builder analogue of AggregateFields.
func (g *GroupBy) AggregateRow(ctx context.Context, agg RowAggregator, yield func(Result) bool) error {
	groups, err := g.regions(ctx)
	if err != nil {
		return err
	}
	return g.runParallel(ctx, groups, func(ctx context.Context, grp group) (Result, error) {
		slice := NewSlice(g.engine, grp.segments)
		return g.runRow(ctx, slice, grp.value, agg)
	}, yield)
}

// runParallel chunks groups into engine.chunkCount() roughly-equal chunks
// (last chunk absorbs the remainder, spec.md §4.4 step 4) and streams
// per-group results unordered across chunks via the worker pool.
func (g *GroupBy) runParallel(ctx context.Context, groups []group, run func(context.Context, group) (Result, error), yield func(Result) bool) error {
	pool := g.engine.pool()
	defer pool.Close()

	chunks := chunkGroups(groups, g.engine.chunkCount())
	stream := Unordered(ctx, pool, len(chunks), func(ctx context.Context, i int) ([]Result, error) {
		var out []Result
		for _, grp := range chunks[i] {
			result, err := run(ctx, grp)
			if err != nil {
				return nil, err
			}
			out = append(out, result)
		}
		return out, nil
	})
	return stream(yield)
}

// chunkGroups splits groups into at most n roughly-equal, contiguous
// chunks; the final chunk absorbs any remainder (spec.md §4.4 step 4).
// Empty groups produce zero chunks, matching Each/runChunks' n==0 no-op.
func chunkGroups(groups []group, n int) [][]group {
	if len(groups) == 0 {
		return nil
	}
	if n > len(groups) {
		n = len(groups)
	}
	if n < 1 {
		n = 1
	}
	size := len(groups) / n
	if size == 0 {
		size = 1
	}
	var chunks [][]group
	for i := 0; i < len(groups); i += size {
		end := i + size
		if end > len(groups) || len(chunks) == n-1 {
			end = len(groups)
		}
		chunks = append(chunks, groups[i:end])
		if end == len(groups) {
			break
		}
	}
	return chunks
}
