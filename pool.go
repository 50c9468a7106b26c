package gendas

import (
	"context"
	"encoding/binary"
	"sync"

	"blainsmith.com/go/seahash"
	"v.io/x/lib/vlog"
)

// Pool is the process-level (in this Go rendering: goroutine-level) worker
// pool spec.md §4.5 describes. It is constructed on demand per terminal
// operation (Engine.pool) and torn down deterministically via Close on
// every exit path, including the caller abandoning a streaming result
// (spec.md §7 CancellationCleanup).
//
// Go's goroutines share the process's memory directly, so unlike the
// teacher's pathos.ProcessPool there is no cross-process snapshot to
// serialize for every chunk; spec.md §9 ("Process pool") explicitly allows
// this when the target language can safely share immutable sources and
// user callbacks, which every gendas.Source does once opened.
type Pool struct {
	workers int
}

func newPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Close releases the pool. It is always safe to call, including after an
// error or a cancelled context; there is nothing left to wait for once it
// returns.
func (p *Pool) Close() error { return nil }

// workerShard picks a deterministic worker id to log against for chunk i,
// the same seahash-sharding trick bamprovider/concurrentmap.go uses to
// spread sam.Record mates across a fixed number of lock shards.
func workerShard(i, workers int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	return int(seahash.Sum64(buf[:]) % uint64(workers))
}

// Each runs fn(i) for every i in [0,n), across at most p.workers goroutines
// at a time, and returns the first error encountered (if any). Already
// running calls are allowed to finish; Each does not cancel siblings on a
// sibling's failure, since spec.md §5 says "already-emitted results are
// not retracted" for the streaming variants, and Each's batch caller
// (countParallel) expects the same all-or-nothing-but-don't-orphan-work
// behavior. Modeled on grailbio/base/traverse.Each, the pattern
// pileup/snp/pileup.go uses for bounded fan-out.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		i := i
		select {
		case <-ctx.Done():
			mu.Lock()
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			mu.Unlock()
		default:
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// chunkResult carries one chunk's output (or failure) back to the streaming
// collector goroutine.
type chunkResult[T any] struct {
	index int
	items []T
	err   error
}

// runChunks executes fn(i) for i in [0,n) across p.workers goroutines and
// returns the per-chunk results on a channel in completion order
// (unordered). The returned cancel func must be called on every exit path,
// including early abandonment, to satisfy the scoped-acquisition contract.
func runChunks[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) ([]T, error)) (<-chan chunkResult[T], context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan chunkResult[T])
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for i := range jobs {
				items, err := fn(ctx, i)
				vlog.VI(2).Infof("gendas: pool worker %d finished chunk %d (shard %d)", w, i, workerShard(i, p.workers))
				select {
				case out <- chunkResult[T]{index: i, items: items, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, cancel
}

// Unordered streams the flattened results of fn(0..n) as they complete,
// with no guaranteed ordering across chunks (spec.md §4.4 step 6,
// "Stream results to the caller ... unordered across chunks"). Used by
// GroupBy.AggregateFields and GroupBy.AggregateRow (via runParallel).
func Unordered[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) ([]T, error)) (func(yield func(T) bool) error) {
	return func(yield func(T) bool) error {
		results, cancel := runChunks(ctx, p, n, fn)
		defer cancel()
		for r := range results {
			if r.err != nil {
				return E(WorkerFailure, r.err)
			}
			for _, item := range r.items {
				if !yield(item) {
					return nil
				}
			}
		}
		return nil
	}
}

// Ordered streams the flattened results of fn(0..n), preserving chunk
// submission order: chunk k's items are all emitted before chunk k+1's,
// even though chunks race to completion (spec.md §4.5 "ordered ... results
// emitted in submission order"). Used by Dataset's parallel map.
func Ordered[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) ([]T, error)) func(yield func(T) bool) error {
	return func(yield func(T) bool) error {
		results, cancel := runChunks(ctx, p, n, fn)
		defer cancel()

		pending := make(map[int]chunkResult[T])
		next := 0
		for r := range results {
			pending[r.index] = r
			for {
				res, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if res.err != nil {
					return E(WorkerFailure, res.err)
				}
				for _, item := range res.items {
					if !yield(item) {
						return nil
					}
				}
			}
		}
		return nil
	}
}
