package gendas

// Segment is a concrete (seq, begin, end) triple: the atomic unit of
// region-scoped iteration (GLOSSARY). Begin and End are inclusive,
// zero-based coordinates, the convention Row.Begin/Row.End expose and the
// one Source.Query's range argument is expressed in (spec.md §4.1, §9 open
// question 1).
type Segment struct {
	Seq   string
	Begin int64
	End   int64
}

// Overlaps reports whether a and b share any position: the same sequence,
// and a's [Begin,End] intersects b's [Begin,End].
func (a Segment) Overlaps(b Segment) bool {
	return a.Seq == b.Seq && a.Begin <= b.End && b.Begin <= a.End
}

// Intersect returns the intersection of a and b. The result may have
// Begin > End if a and b don't overlap; callers that need to detect that
// should check Overlaps first, or tolerate the degenerate interval the way
// spec.md §4.3 step 1 does ("If begin* > end*, still proceed with the
// degenerate interval").
func (a Segment) Intersect(b Segment) Segment {
	begin := a.Begin
	if b.Begin > begin {
		begin = b.Begin
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	return Segment{Seq: a.Seq, Begin: begin, End: end}
}

// IntersectAll computes the interval intersection across every segment in
// segs: begin* = max(begins), end* = min(ends) (spec.md §4.3 step 1, ported
// from original_source/gendas/utils.py's _overlap_intervals). It panics on
// an empty slice, same as the Python original raising RuntimeError.
func IntersectAll(segs []Segment) Segment {
	if len(segs) == 0 {
		panic("gendas: IntersectAll of an empty segment list")
	}
	out := segs[0]
	for _, s := range segs[1:] {
		out = out.Intersect(s)
	}
	return out
}
