package gendas

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSource is a minimal in-process Source used to exercise the view
// algebra, join engine and aggregator without touching the filesystem —
// the same hand-rolled-fixture-type habit as the teacher's internal package
// tests (umi/correction_test.go's NewSnapCorrector cases).
type testSource struct {
	label  string
	schema *Schema
	rows   []Row
	index  map[string]GroupIndex
}

func (s *testSource) Label() string  { return s.label }
func (s *testSource) Schema() *Schema { return s.schema }

func (s *testSource) Iterate(ctx context.Context, part *Partition) (RowIter, error) {
	if part == nil {
		return NewSliceRowIter(s.rows), nil
	}
	var out []Row
	for i, r := range s.rows {
		if i%part.P == part.K {
			out = append(out, r)
		}
	}
	return NewSliceRowIter(out), nil
}

func (s *testSource) Query(ctx context.Context, seq string, begin, end int64) (RowIter, error) {
	var out []Row
	for _, r := range s.rows {
		if r.Seq() == seq && r.Begin() <= end && begin <= r.End() {
			out = append(out, r)
		}
	}
	return NewSliceRowIter(out), nil
}

func (s *testSource) Intersect(ctx context.Context, seq string, begin, end int64) (SegmentIter, error) {
	it, err := s.Query(ctx, seq, begin, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var segs []Segment
	for it.Scan() {
		segs = append(segs, NormalizedSegment(it.Row()))
	}
	return NewSliceSegmentIter(segs), it.Err()
}

func (s *testSource) Index(label string) (GroupIndex, error) {
	idx, ok := s.index[label]
	if !ok {
		return nil, E(IndexMissing, "no index built for column "+label)
	}
	return idx, nil
}

func mustSchema(t *testing.T, columns []string, parsers []Parser, seq, begin, end string) *Schema {
	t.Helper()
	s, err := NewSchema(columns, parsers, seq, begin, end)
	require.NoError(t, err)
	return s
}

func row(schema *Schema, values ...Value) Row { return NewRow(schema, values) }

// variantsSchema/caddSchema/genesSchema/exonsSchema mirror spec.md §8's S1-S4
// fixture shapes.

func variantsSchema(t *testing.T) *Schema {
	return mustSchema(t, []string{"CHR", "POS", "REF", "ALT", "SAMPLE"},
		[]Parser{ParseString, ParseInt64, ParseString, ParseString, ParseString},
		"CHR", "POS", "POS")
}

func caddSchema(t *testing.T) *Schema {
	return mustSchema(t, []string{"CHR", "POS", "REF", "ALT", "PHRED"},
		[]Parser{ParseString, ParseInt64, ParseString, ParseString, ParseFloat64},
		"CHR", "POS", "POS")
}

func genesSchema(t *testing.T) *Schema {
	return mustSchema(t, []string{"CHR", "BEGIN", "END", "STRAND"},
		[]Parser{ParseString, ParseInt64, ParseInt64, ParseString},
		"CHR", "BEGIN", "END")
}

func exonsSchema(t *testing.T) *Schema {
	return mustSchema(t, []string{"CHR", "BEGIN", "END", "GENE"},
		[]Parser{ParseString, ParseInt64, ParseInt64, ParseString},
		"CHR", "BEGIN", "END")
}

func newEngine(workers int) *Engine {
	return New(Options{Workers: workers, Progress: 1})
}

// TestS1TwoSourceMergeFilterCount pins spec.md §8 scenario S1.
func TestS1TwoSourceMergeFilterCount(t *testing.T) {
	vs := variantsSchema(t)
	cs := caddSchema(t)

	variants := &testSource{label: "variants", schema: vs, rows: []Row{
		row(vs, StringValue("1"), IntValue(100), StringValue("A"), StringValue("G"), StringValue("s1")),
		row(vs, StringValue("1"), IntValue(200), StringValue("C"), StringValue("T"), StringValue("s2")),
	}}
	cadd := &testSource{label: "cadd", schema: cs, rows: []Row{
		row(cs, StringValue("1"), IntValue(100), StringValue("A"), StringValue("G"), FloatValue(25.0)),
		row(cs, StringValue("1"), IntValue(200), StringValue("C"), StringValue("T"), FloatValue(10.0)),
	}}

	e := newEngine(2)
	require.NoError(t, e.Register(variants))
	require.NoError(t, e.Register(cadd))

	dv, err := e.Dataset("variants")
	require.NoError(t, err)
	dc, err := e.Dataset("cadd")
	require.NoError(t, err)

	merged := dv.Merge(dc, []string{"REF", "ALT"}).Filter(func(r MergedRow) bool {
		return r.MustGet("cadd").Get("PHRED").Float64() > 20
	})

	count, err := merged.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestS2ThreeSourceMergeStrandFilter pins spec.md §8 scenario S2.
func TestS2ThreeSourceMergeStrandFilter(t *testing.T) {
	vs := variantsSchema(t)
	cs := caddSchema(t)
	gs := genesSchema(t)

	variants := &testSource{label: "variants", schema: vs, rows: []Row{
		row(vs, StringValue("1"), IntValue(100), StringValue("A"), StringValue("G"), StringValue("s1")),
		row(vs, StringValue("1"), IntValue(200), StringValue("C"), StringValue("T"), StringValue("s2")),
	}}
	cadd := &testSource{label: "cadd", schema: cs, rows: []Row{
		row(cs, StringValue("1"), IntValue(100), StringValue("A"), StringValue("G"), FloatValue(25.0)),
		row(cs, StringValue("1"), IntValue(200), StringValue("C"), StringValue("T"), FloatValue(10.0)),
	}}
	genes := &testSource{label: "genes", schema: gs, rows: []Row{
		row(gs, StringValue("1"), IntValue(50), IntValue(300), StringValue("+")),
	}}

	e := newEngine(2)
	require.NoError(t, e.Register(variants))
	require.NoError(t, e.Register(cadd))
	require.NoError(t, e.Register(genes))

	dv, err := e.Dataset("variants")
	require.NoError(t, err)
	dc, err := e.Dataset("cadd")
	require.NoError(t, err)
	dg, err := e.Dataset("genes")
	require.NoError(t, err)

	merged := dv.Merge(dc, []string{"REF", "ALT"}).Merge(dg, nil).Filter(func(r MergedRow) bool {
		return r.MustGet("cadd").Get("PHRED").Float64() > 20 && r.MustGet("genes").Get("STRAND").String() == "+"
	})

	count, err := merged.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestS3AggregationMap pins spec.md §8 scenario S3.
func TestS3AggregationMap(t *testing.T) {
	cs := caddSchema(t)
	es := exonsSchema(t)

	cadd := &testSource{label: "cadd", schema: cs, rows: []Row{
		row(cs, StringValue("1"), IntValue(120), StringValue(""), StringValue(""), FloatValue(25.0)),
		row(cs, StringValue("1"), IntValue(210), StringValue(""), StringValue(""), FloatValue(10.0)),
	}}
	exons := &testSource{
		label: "exons", schema: es,
		rows: []Row{
			row(es, StringValue("1"), IntValue(100), IntValue(150), StringValue("G1")),
			row(es, StringValue("1"), IntValue(200), IntValue(250), StringValue("G2")),
		},
		index: map[string]GroupIndex{
			"GENE": {
				{Value: StringValue("G1"), Segments: []Segment{{Seq: "1", Begin: 100, End: 150}}},
				{Value: StringValue("G2"), Segments: []Segment{{Seq: "1", Begin: 200, End: 250}}},
			},
		},
	}

	e := newEngine(2)
	require.NoError(t, e.Register(cadd))
	require.NoError(t, e.Register(exons))

	dexons, err := e.Dataset("exons")
	require.NoError(t, err)
	gb := dexons.Column("GENE").GroupBy()

	phredIter := func(ctx context.Context, slice *Slice) (ValueIter, error) {
		ds, err := slice.Dataset("cadd")
		if err != nil {
			return nil, err
		}
		return ds.Column("PHRED").Iterate(ctx, nil)
	}
	maxAgg := func(ctx context.Context, slice *Slice) (Value, error) {
		it, err := phredIter(ctx, slice)
		if err != nil {
			return Value{}, err
		}
		defer it.Close()
		return Max(it), it.Err()
	}
	minAgg := func(ctx context.Context, slice *Slice) (Value, error) {
		it, err := phredIter(ctx, slice)
		if err != nil {
			return Value{}, err
		}
		defer it.Close()
		return Min(it), it.Err()
	}

	var results []Result
	err = gb.AggregateFieldsSequential(context.Background(), map[string]FieldAggregator{
		"MAX": maxAgg,
		"MIN": minAgg,
	}, func(r Result) bool {
		results = append(results, r)
		return true
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byGene := map[string]Result{}
	for _, r := range results {
		byGene[r["GENE"].String()] = r
	}
	assert.Equal(t, 25.0, byGene["G1"]["MAX"].Float64())
	assert.Equal(t, 25.0, byGene["G1"]["MIN"].Float64())
	assert.Equal(t, 10.0, byGene["G2"]["MAX"].Float64())
	assert.Equal(t, 10.0, byGene["G2"]["MIN"].Float64())
}

// TestS4AggregationRowBuilder pins spec.md §8 scenario S4.
func TestS4AggregationRowBuilder(t *testing.T) {
	vs := variantsSchema(t)
	es := exonsSchema(t)

	variants := &testSource{label: "variants", schema: vs, rows: []Row{
		row(vs, StringValue("1"), IntValue(120), StringValue("A"), StringValue("G"), StringValue("s1")),
		row(vs, StringValue("1"), IntValue(120), StringValue("A"), StringValue("G"), StringValue("s1")),
	}}
	exons := &testSource{
		label: "exons", schema: es,
		rows: []Row{row(es, StringValue("1"), IntValue(100), IntValue(150), StringValue("G1"))},
		index: map[string]GroupIndex{
			"GENE": {{Value: StringValue("G1"), Segments: []Segment{{Seq: "1", Begin: 100, End: 150}}}},
		},
	}

	e := newEngine(2)
	require.NoError(t, e.Register(variants))
	require.NoError(t, e.Register(exons))

	dexons, err := e.Dataset("exons")
	require.NoError(t, err)
	gb := dexons.Column("GENE").GroupBy()

	rowAgg := func(ctx context.Context, slice *Slice, seed Result) (Result, error) {
		ds, err := slice.Dataset("variants")
		if err != nil {
			return nil, err
		}
		it, err := ds.Column("SAMPLE").Iterate(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer it.Close()
		muts := 0
		seen := map[string]struct{}{}
		for it.Scan() {
			muts++
			seen[it.Value().String()] = struct{}{}
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		seed["MUTS"] = IntValue(int64(muts))
		seed["SMUTS"] = IntValue(int64(len(seen)))
		return seed, nil
	}

	var results []Result
	err = gb.AggregateRowSequential(context.Background(), rowAgg, func(r Result) bool {
		results = append(results, r)
		return true
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "G1", results[0]["GENE"].String())
	assert.Equal(t, int64(2), results[0]["MUTS"].Int64())
	assert.Equal(t, int64(1), results[0]["SMUTS"].Int64())
}

// TestS5PartitionedIterationInvariance pins spec.md §8 scenario S5 and
// universal property 3.
func TestS5PartitionedIterationInvariance(t *testing.T) {
	schema := mustSchema(t, []string{"CHR", "ID"}, []Parser{ParseString, ParseInt64}, "CHR", "ID", "ID")
	var rows []Row
	for i := 0; i < 10; i++ {
		rows = append(rows, row(schema, StringValue("1"), IntValue(int64(i))))
	}
	src := &testSource{label: "ten", schema: schema, rows: rows}

	e := newEngine(2)
	require.NoError(t, e.Register(src))
	d, err := e.Dataset("ten")
	require.NoError(t, err)

	collect := func(part *Partition) []int64 {
		it, err := d.Iterate(context.Background(), part)
		require.NoError(t, err)
		defer it.Close()
		var out []int64
		for it.Scan() {
			out = append(out, it.Row().Get("ID").Int64())
		}
		require.NoError(t, it.Err())
		return out
	}

	whole := collect(nil)
	var partitioned []int64
	for k := 0; k < 3; k++ {
		partitioned = append(partitioned, collect(&Partition{K: k, P: 3})...)
	}

	sort.Slice(whole, func(i, j int) bool { return whole[i] < whole[j] })
	sort.Slice(partitioned, func(i, j int) bool { return partitioned[i] < partitioned[j] })
	assert.Equal(t, whole, partitioned)
}

// TestS6UnsizedMerge pins spec.md §8 scenario S6.
func TestS6UnsizedMerge(t *testing.T) {
	vs := variantsSchema(t)
	cs := caddSchema(t)
	variants := &testSource{label: "variants", schema: vs}
	cadd := &testSource{label: "cadd", schema: cs}

	e := newEngine(2)
	require.NoError(t, e.Register(variants))
	require.NoError(t, e.Register(cadd))

	dv, err := e.Dataset("variants")
	require.NoError(t, err)
	dc, err := e.Dataset("cadd")
	require.NoError(t, err)

	_, err = dv.Merge(dc, []string{"REF", "ALT"}).Len(context.Background())
	require.Error(t, err)
	assert.True(t, Is(err, UnsizedView))
}

// TestWorkerCountInvariance pins the worker-count part of spec.md §8
// universal property 8: parallel aggregation with one worker and with four
// workers produces the same per-gene results.
func TestWorkerCountInvariance(t *testing.T) {
	cs := caddSchema(t)
	es := exonsSchema(t)

	var caddRows []Row
	var exonRows []Row
	index := GroupIndex{}
	for i := 0; i < 6; i++ {
		gene := "G" + string(rune('1'+i))
		begin := int64(i * 100)
		end := begin + 50
		exonRows = append(exonRows, row(es, StringValue("1"), IntValue(begin), IntValue(end), StringValue(gene)))
		index = append(index, GroupEntry{Value: StringValue(gene), Segments: []Segment{{Seq: "1", Begin: begin, End: end}}})
		caddRows = append(caddRows, row(cs, StringValue("1"), IntValue(begin+10), StringValue(""), StringValue(""), FloatValue(float64(i))))
	}

	cadd := &testSource{label: "cadd", schema: cs, rows: caddRows}
	exons := &testSource{label: "exons", schema: es, rows: exonRows, index: map[string]GroupIndex{"GENE": index}}

	runFor := func(workers int) map[string]float64 {
		e := newEngine(workers)
		require.NoError(t, e.Register(cadd))
		require.NoError(t, e.Register(exons))
		dexons, err := e.Dataset("exons")
		require.NoError(t, err)
		gb := dexons.Column("GENE").GroupBy()

		agg := func(ctx context.Context, slice *Slice) (Value, error) {
			ds, err := slice.Dataset("cadd")
			if err != nil {
				return Value{}, err
			}
			it, err := ds.Column("PHRED").Iterate(ctx, nil)
			if err != nil {
				return Value{}, err
			}
			defer it.Close()
			return Max(it), it.Err()
		}

		out := map[string]float64{}
		err = gb.AggregateFields(context.Background(), map[string]FieldAggregator{"MAX": agg}, func(r Result) bool {
			out[r["GENE"].String()] = r["MAX"].Float64()
			return true
		})
		require.NoError(t, err)
		return out
	}

	seq := runFor(1)
	par := runFor(4)
	assert.Equal(t, seq, par)
}

// TestFilterCountProperty pins spec.md §8 universal properties 1 and 2.
func TestFilterCountProperty(t *testing.T) {
	schema := mustSchema(t, []string{"CHR", "ID"}, []Parser{ParseString, ParseInt64}, "CHR", "ID", "ID")
	var rows []Row
	for i := 0; i < 7; i++ {
		rows = append(rows, row(schema, StringValue("1"), IntValue(int64(i))))
	}
	src := &testSource{label: "s", schema: schema, rows: rows}

	e := newEngine(1)
	require.NoError(t, e.Register(src))
	d, err := e.Dataset("s")
	require.NoError(t, err)

	count, err := d.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	even := d.Filter(func(r Row) bool { return r.Get("ID").Int64()%2 == 0 })
	evenCount, err := even.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, evenCount)
}
