package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jordeu/gendas"
)

// referenceSchema is fixed for every ReferenceSource: CHR, BEGIN, END, SEQ
// (spec.md §6 "Reference-sequence row shape").
func referenceSchema() *gendas.Schema {
	s, err := gendas.NewSchema(
		[]string{"CHR", "BEGIN", "END", "SEQ"},
		[]gendas.Parser{gendas.ParseString, gendas.ParseInt64, gendas.ParseInt64, gendas.ParseString},
		"CHR", "BEGIN", "END",
	)
	if err != nil {
		// The four columns above are constant and always valid; a failure
		// here would mean NewSchema itself is broken.
		panic(err)
	}
	return s
}

// ReferenceSource serves a reference genome laid out as one flat file per
// sequence, where byte i (1-based) is the base at position i (spec.md §6).
// Bases are read on demand via a seekCloser per sequence and returned
// uppercased; nothing is loaded into memory up front, the same
// random-access-over-a-seekable-handle story as encoding/fasta's
// indexedFasta.read, simplified since there is no line wrapping to account
// for.
type ReferenceSource struct {
	label string
	files map[string]string // sequence name -> file path

	mu      sync.Mutex
	handles map[string]seekCloser
	lengths map[string]int64
}

// OpenReferenceSource describes a reference genome from files, a map of
// sequence name to the flat file holding that sequence's bases. Files are
// opened lazily, one per sequence, on first access.
func OpenReferenceSource(label string, files map[string]string) *ReferenceSource {
	return &ReferenceSource{
		label:   label,
		files:   files,
		handles: make(map[string]seekCloser),
		lengths: make(map[string]int64),
	}
}

func (s *ReferenceSource) Label() string          { return s.label }
func (s *ReferenceSource) Schema() *gendas.Schema { return referenceSchema() }

// handle returns the seekable handle for seq, opening and caching it (and
// its length) on first use.
func (s *ReferenceSource) handle(seq string) (seekCloser, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[seq]; ok {
		return h, s.lengths[seq], nil
	}
	path, ok := s.files[seq]
	if !ok {
		return nil, 0, gendas.E(gendas.ConfigError, fmt.Sprintf("no reference file registered for sequence %q", seq))
	}
	f, err := openBlobAt(path)
	if err != nil {
		return nil, 0, err
	}
	n, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, gendas.E(gendas.ConfigError, fmt.Sprintf("sizing %q:", path), err)
	}
	s.handles[seq] = f
	s.lengths[seq] = n
	return f, n, nil
}

// readBases reads the uppercased bases of the 0-based inclusive range
// [begin, end], clamped to the sequence's actual length. File byte offset i
// (0-indexed) holds the base at 1-based position i+1, so this range maps
// directly onto file offsets [begin, end] inclusive.
func (s *ReferenceSource) readBases(seq string, begin, end int64) (string, error) {
	h, length, err := s.handle(seq)
	if err != nil {
		return "", err
	}
	if begin < 0 {
		begin = 0
	}
	if end > length-1 {
		end = length - 1
	}
	if end < begin {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, end-begin+1)
	if _, err := h.ReadAt(buf, begin); err != nil {
		return "", gendas.E(gendas.ConfigError, fmt.Sprintf("reading %q:", seq), err)
	}
	for i, b := range buf {
		if b >= 'a' && b <= 'z' {
			buf[i] = b - ('a' - 'A')
		}
	}
	return string(buf), nil
}

func (s *ReferenceSource) row(seq string, begin, end int64) gendas.Row {
	seqStr, err := s.readBases(seq, begin, end)
	if err != nil {
		seqStr = ""
	}
	return gendas.NewRow(s.Schema(), []gendas.Value{
		gendas.StringValue(seq),
		gendas.IntValue(begin),
		gendas.IntValue(end),
		gendas.StringValue(seqStr),
	})
}

// Iterate is not supported: a reference genome has no natural finite
// enumeration of rows, only coordinate queries.
func (s *ReferenceSource) Iterate(ctx context.Context, part *gendas.Partition) (gendas.RowIter, error) {
	return nil, gendas.NotSupported("ReferenceSource.Iterate")
}

// Query returns a single row spanning [begin, end] whose SEQ column holds
// the uppercased bases of that window.
func (s *ReferenceSource) Query(ctx context.Context, seq string, begin, end int64) (gendas.RowIter, error) {
	return gendas.NewSliceRowIter([]gendas.Row{s.row(seq, begin, end)}), nil
}

func (s *ReferenceSource) Intersect(ctx context.Context, seq string, begin, end int64) (gendas.SegmentIter, error) {
	return gendas.NewSliceSegmentIter([]gendas.Segment{gendas.NormalizedSegment(s.row(seq, begin, end))}), nil
}

// Index is not supported: a reference genome has no grouping column.
func (s *ReferenceSource) Index(label string) (gendas.GroupIndex, error) {
	return nil, gendas.NotSupported("ReferenceSource.Index")
}

// Slice returns the bases around row, from startOffset to endOffset bases
// relative to row's own Begin() — both bounds offsets from begin, matching
// `r["hg19"][-1:1]` returning the trinucleotide around a position (spec.md
// §9 open question 3; SPEC_FULL.md §8 decision). Negative offsets read
// upstream of begin; this re-reads the file rather than reusing row's own
// SEQ value, so offsets aren't bounded by whatever window Query originally
// fetched.
func (s *ReferenceSource) Slice(row gendas.Row, startOffset, endOffset int64) (string, error) {
	begin := row.Begin()
	return s.readBases(row.Seq(), begin+startOffset, begin+endOffset)
}
