package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/biogo/hts/bgzf"

	"github.com/jordeu/gendas"
)

// TabixSource is the block-gzip indexed table source (spec.md §6
// "Block-compressed indexed table"). Full scans (Iterate) stream through a
// fresh bgzf.Reader, exactly as bamprovider.go reads a compressed record
// stream; region queries (Query/Intersect/Index) are answered from a
// lightweight in-process index built from one such scan and cached on this
// Source value until the file's Fingerprint changes (spec.md §1: the real htslib `.tbi`
// binning-tree byte format is an out-of-scope external read contract, not
// reimplemented here — see DESIGN.md).
type TabixSource struct {
	label     string
	schema    *gendas.Schema
	path      string
	indexCols []string

	mu          sync.Mutex
	built       bool
	buildErr    error
	fingerprint Fingerprint
	rows        []gendas.Row
	bySeq       map[string][]gendas.Row // sorted by Begin within each sequence
	index       map[string]gendas.GroupIndex
}

// OpenTabixSource describes a bgzf-compressed table at path under schema.
// The file is not read until the first Iterate/Query/Intersect/Index call
// (spec.md §9 "workers re-open file handles lazily after snapshot
// transport").
func OpenTabixSource(label, path string, schema *gendas.Schema, indexCols []string) *TabixSource {
	return &TabixSource{label: label, schema: schema, path: path, indexCols: indexCols}
}

func (s *TabixSource) Label() string          { return s.label }
func (s *TabixSource) Schema() *gendas.Schema { return s.schema }

// newBgzfReader opens a fresh bgzf.Reader over the source's file, honoring
// the snapshot-restartable contract: a copy of TabixSource carries no live
// handle and reopens lazily (spec.md §4.1, §9 open question 4).
func (s *TabixSource) newBgzfReader() (*bgzf.Reader, io.Closer, error) {
	f, err := openBlobAt(s.path)
	if err != nil {
		return nil, nil, err
	}
	r, err := bgzf.NewReader(f, 0)
	if err != nil {
		f.Close()
		return nil, nil, gendas.E(gendas.ConfigError, fmt.Sprintf("opening bgzf %q:", s.path), err)
	}
	return r, f, nil
}

// scan performs one full decompressed pass over the file, parsing every
// row under schema.
func (s *TabixSource) scan() ([]gendas.Row, error) {
	r, closer, err := s.newBgzfReader()
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var rows []gendas.Row
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, err := s.schema.ParseRow(strings.Split(line, "\t"))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, gendas.E(gendas.ConfigError, fmt.Sprintf("reading %q:", s.path), err)
	}
	return rows, nil
}

// ensureBuilt lazily scans the file once and builds the per-sequence
// sorted index and group indexes, caching the result on s. Each call
// re-stats the file and compares its Fingerprint against the one the cache
// was built from, so a worker that reopens this Source after snapshot
// transport (spec.md §9 open question 4) rebuilds if the underlying file
// turns out to differ instead of silently serving a stale cache.
func (s *TabixSource) ensureBuilt() error {
	fp, fpErr := FingerprintFile(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built && fpErr == nil && fp == s.fingerprint {
		return s.buildErr
	}
	s.built = true
	s.fingerprint = fp

	rows, err := s.scan()
	if err != nil {
		s.buildErr = err
		return err
	}
	s.rows = rows

	bySeq := make(map[string][]gendas.Row)
	for _, row := range rows {
		bySeq[row.Seq()] = append(bySeq[row.Seq()], row)
	}
	for seq := range bySeq {
		sort.Slice(bySeq[seq], func(i, j int) bool { return bySeq[seq][i].Begin() < bySeq[seq][j].Begin() })
	}
	s.bySeq = bySeq

	index := make(map[string]gendas.GroupIndex, len(s.indexCols))
	for _, col := range s.indexCols {
		index[col] = buildGroupIndex(rows, col)
	}
	s.index = index
	return nil
}

// Iterate streams the file fresh every call via a new bgzf.Reader: a full
// scan doesn't need the cached index.
func (s *TabixSource) Iterate(ctx context.Context, part *gendas.Partition) (gendas.RowIter, error) {
	rows, err := s.scan()
	if err != nil {
		return nil, err
	}
	if part == nil {
		return gendas.NewSliceRowIter(rows), nil
	}
	var out []gendas.Row
	for i, r := range rows {
		if i%part.P == part.K {
			out = append(out, r)
		}
	}
	return gendas.NewSliceRowIter(out), nil
}

func (s *TabixSource) Query(ctx context.Context, seq string, begin, end int64) (gendas.RowIter, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rowsForSeq := s.bySeq[seq]
	// rowsForSeq is sorted by Begin only, so Begin <= end can be bounded
	// with a binary search (the upper edge), but End is not monotonic in
	// Begin order — a long-spanning row can sit before several short ones
	// that start later but end sooner — so the lower edge (begin <=
	// row.End()) has to be checked by scanning the whole qualifying
	// prefix rather than binary-searching on End (spec.md §1 leniency on
	// region queries, versus htslib's true binning tree, which this is
	// not: still correct, just not sub-linear in the number of
	// Begin-qualifying rows).
	hi := sort.Search(len(rowsForSeq), func(i int) bool { return rowsForSeq[i].Begin() > end })
	var matches []gendas.Row
	for _, row := range rowsForSeq[:hi] {
		if begin <= row.End() {
			matches = append(matches, row)
		}
	}
	return gendas.NewSliceRowIter(matches), nil
}

func (s *TabixSource) Intersect(ctx context.Context, seq string, begin, end int64) (gendas.SegmentIter, error) {
	it, err := s.Query(ctx, seq, begin, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var segs []gendas.Segment
	for it.Scan() {
		segs = append(segs, gendas.NormalizedSegment(it.Row()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return gendas.NewSliceSegmentIter(segs), nil
}

func (s *TabixSource) Index(label string) (gendas.GroupIndex, error) {
	if err := s.ensureBuilt(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[label]
	if !ok {
		return nil, gendas.E(gendas.IndexMissing, fmt.Sprintf("no index built for column %q on source %q", label, s.label))
	}
	return idx, nil
}
