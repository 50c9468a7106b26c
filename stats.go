package gendas

// ValueSource supplies a sequence of Values to summarize, satisfied by
// ValueIter.
type ValueSource interface {
	Scan() bool
	Value() Value
}

// Count returns the number of values produced by it.
func Count(it ValueSource) int {
	n := 0
	for it.Scan() {
		n++
	}
	return n
}

// Mean returns the arithmetic mean of it's values as a float64 Value, or
// the zero Value if it produces nothing, ported from
// original_source/gendas/statistics.py's `peek`/`empty` convention: an
// empty aggregation input returns a neutral result instead of raising.
func Mean(it ValueSource) Value {
	var sum float64
	var n int
	for it.Scan() {
		sum += it.Value().Float64()
		n++
	}
	if n == 0 {
		return Value{}
	}
	return FloatValue(sum / float64(n))
}

// Min returns the smallest value produced by it, or the zero Value if
// empty.
func Min(it ValueSource) Value {
	return extreme(it, func(a, b Value) bool { return a.Float64() < b.Float64() })
}

// Max returns the largest value produced by it, or the zero Value if
// empty.
func Max(it ValueSource) Value {
	return extreme(it, func(a, b Value) bool { return a.Float64() > b.Float64() })
}

func extreme(it ValueSource, better func(a, b Value) bool) Value {
	var best Value
	seen := false
	for it.Scan() {
		v := it.Value()
		if !seen || better(v, best) {
			best = v
			seen = true
		}
	}
	if !seen {
		return Value{}
	}
	return best
}
