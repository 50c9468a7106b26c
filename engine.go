package gendas

import (
	"fmt"
	"runtime"
	"sync"
)

// Options configures a new Engine (spec.md §3 "Engine").
type Options struct {
	// Workers is the number of workers used to parallelize map and
	// groupby-aggregate. Defaults to runtime.NumCPU().
	Workers int
	// Servers, if non-empty, are additional worker addresses to
	// distribute parallel work across. The reference implementation only
	// supports local workers; a non-empty Servers list is accepted for
	// API compatibility but every chunk still runs in-process.
	Servers []string
	// Progress controls how finely parallel work is sliced: parallel
	// operations split their work into Workers * Progress chunks, so a
	// larger number means more, smaller chunks. Defaults to 20.
	Progress int
}

// Engine owns every registered Source and is the entry point for every
// query (spec.md §3 "Engine"). Construct once; Dataset/GroupBy borrow it
// for the life of a query.
type Engine struct {
	mu      sync.RWMutex
	sources map[string]Source

	Workers  int
	Servers  []string
	Progress int
}

// New constructs an empty Engine. Use Register to add sources, or Load
// (package gendas/config) to build one from a config file.
func New(opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	progress := opts.Progress
	if progress <= 0 {
		progress = 20
	}
	return &Engine{
		sources:  make(map[string]Source),
		Workers:  workers,
		Servers:  opts.Servers,
		Progress: progress,
	}
}

// Register adds src to the engine under its own Label. It fails with a
// ConfigError if the label is already registered (spec.md §3 "labels
// unique").
func (e *Engine) Register(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	label := src.Label()
	if label == "" {
		return E(ConfigError, "source has an empty label")
	}
	if _, exists := e.sources[label]; exists {
		return E(ConfigError, fmt.Sprintf("source label %q already registered", label))
	}
	e.sources[label] = src
	return nil
}

// Source returns the registered source named label.
func (e *Engine) Source(label string) (Source, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[label]
	if !ok {
		return nil, E(ConfigError, fmt.Sprintf("no such source: %q", label))
	}
	return src, nil
}

// Dataset returns a lazy view of the named source.
func (e *Engine) Dataset(label string) (*Dataset, error) {
	src, err := e.Source(label)
	if err != nil {
		return nil, err
	}
	return &Dataset{engine: e, source: src}, nil
}

// chunkCount returns the number of chunks a parallel terminal operation
// should split work into: workers * progress (spec.md §4.4 step 4, §4.5).
func (e *Engine) chunkCount() int {
	return e.Workers * e.Progress
}

// pool builds the worker pool for one terminal operation. Callers must
// Close it on every exit path (scoped acquisition with guaranteed release,
// spec.md §4.5).
func (e *Engine) pool() *Pool {
	return newPool(e.Workers)
}
