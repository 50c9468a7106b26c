package gendas

import "context"

// countParallel counts v's rows by splitting it into engine.chunkCount()
// partitions and running them across the worker pool, summing the
// per-chunk counts. Ported from the original's private `_count_par`,
// which the public `count()` never actually calls.
func countParallel(ctx context.Context, engine *Engine, v RowView) (int, error) {
	pool := engine.pool()
	defer pool.Close()

	n := engine.chunkCount()
	counts := make([]int, n)
	err := pool.Each(ctx, n, func(ctx context.Context, i int) error {
		it, err := v.Iterate(ctx, &Partition{K: i, P: n})
		if err != nil {
			return err
		}
		defer it.Close()
		count := 0
		for it.Scan() {
			count++
		}
		if err := it.Err(); err != nil {
			return err
		}
		// Each goroutine owns a distinct slice index, so no lock is needed.
		counts[i] = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return total, nil
}

// mapParallel applies fn to every row of v in parallel across
// engine.chunkCount() partitions, preserving chunk submission order on
// output (spec.md §4.5 "ordered"), mirroring the original's public
// `map()`, which always calls `_map_par`.
func mapParallel(ctx context.Context, engine *Engine, v RowView, fn func(Row) (interface{}, error), yield func(interface{}) bool) error {
	pool := engine.pool()
	defer pool.Close()

	n := engine.chunkCount()
	stream := Ordered(ctx, pool, n, func(ctx context.Context, i int) ([]interface{}, error) {
		it, err := v.Iterate(ctx, &Partition{K: i, P: n})
		if err != nil {
			return nil, err
		}
		defer it.Close()
		var out []interface{}
		for it.Scan() {
			mapped, err := fn(it.Row())
			if err != nil {
				return nil, err
			}
			out = append(out, mapped)
		}
		return out, it.Err()
	})
	return stream(yield)
}
