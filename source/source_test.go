package source

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordeu/gendas"
)

func mustVariantSchema(t *testing.T) *gendas.Schema {
	t.Helper()
	s, err := gendas.NewSchema(
		[]string{"CHR", "BEGIN", "END", "REF", "ALT"},
		[]gendas.Parser{gendas.ParseString, gendas.ParseInt64, gendas.ParseInt64, gendas.ParseString, gendas.ParseString},
		"CHR", "BEGIN", "END",
	)
	require.NoError(t, err)
	return s
}

func newTestGzipWriter(t *testing.T, w io.Writer) *gzip.Writer {
	t.Helper()
	return gzip.NewWriter(w)
}

// writeBgzf writes content to path as a single BGZF block via
// biogo/hts/bgzf.Writer, the same writer-side counterpart to TabixSource's
// bgzf.Reader.
func writeBgzf(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := bgzf.NewWriter(f, 0)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func tableSchema(t *testing.T) *gendas.Schema {
	t.Helper()
	s, err := gendas.NewSchema(
		[]string{"CHR", "BEGIN", "END", "GENE"},
		[]gendas.Parser{gendas.ParseString, gendas.ParseInt64, gendas.ParseInt64, gendas.ParseString},
		"CHR", "BEGIN", "END",
	)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMemoryRowsIterateAndPartition(t *testing.T) {
	schema := tableSchema(t)
	rows := []gendas.Row{
		gendas.NewRow(schema, []gendas.Value{gendas.StringValue("1"), gendas.IntValue(0), gendas.IntValue(10), gendas.StringValue("A")}),
		gendas.NewRow(schema, []gendas.Value{gendas.StringValue("1"), gendas.IntValue(20), gendas.IntValue(30), gendas.StringValue("B")}),
	}
	src := NewMemoryRows("mem", schema, rows)

	it, err := src.Iterate(context.Background(), nil)
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for it.Scan() {
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, n)

	pit, err := src.Iterate(context.Background(), &gendas.Partition{K: 1, P: 2})
	require.NoError(t, err)
	defer pit.Close()
	var genes []string
	for pit.Scan() {
		genes = append(genes, pit.Row().Get("GENE").String())
	}
	require.NoError(t, pit.Err())
	assert.Equal(t, []string{"B"}, genes)

	_, err = src.Query(context.Background(), "1", 0, 10)
	assert.True(t, gendas.Is(err, gendas.Other))

	_, err = src.Index("GENE")
	assert.True(t, gendas.Is(err, gendas.Other))
}

func TestIntervalTreeSourceQueryAndIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "exons.tsv", "1\t100\t150\tG1\n1\t200\t250\tG2\n2\t0\t10\tG3\n")

	schema := tableSchema(t)
	src, err := OpenIntervalTreeSource("exons", path, schema, []string{"GENE"})
	require.NoError(t, err)

	it, err := src.Query(context.Background(), "1", 120, 130)
	require.NoError(t, err)
	defer it.Close()
	var genes []string
	for it.Scan() {
		genes = append(genes, it.Row().Get("GENE").String())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"G1"}, genes)

	idx, err := src.Index("GENE")
	require.NoError(t, err)
	assert.Len(t, idx, 3)

	_, err = src.Index("CHR")
	assert.True(t, gendas.Is(err, gendas.IndexMissing))
}

func TestIntervalTreeSourceGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exons.tsv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := newTestGzipWriter(t, f)
	_, err = gz.Write([]byte("1\t0\t5\tG1\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	schema := tableSchema(t)
	src, err := OpenIntervalTreeSource("exons", path, schema, nil)
	require.NoError(t, err)

	it, err := src.Query(context.Background(), "1", 0, 5)
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Scan())
	assert.Equal(t, "G1", it.Row().Get("GENE").String())
}

func TestTabixSourceScanQueryAndCacheInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "variants.tsv.bgz")
	writeBgzf(t, path, "1\t100\t100\tA\tG\n1\t200\t200\tC\tT\n")

	schema := mustVariantSchema(t)
	src := OpenTabixSource("variants", path, schema, []string{"REF"})

	it, err := src.Iterate(context.Background(), nil)
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for it.Scan() {
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, n)

	qit, err := src.Query(context.Background(), "1", 100, 100)
	require.NoError(t, err)
	defer qit.Close()
	require.True(t, qit.Scan())
	assert.Equal(t, "A", qit.Row().Get("REF").String())
	assert.False(t, qit.Scan())

	idx, err := src.Index("REF")
	require.NoError(t, err)
	assert.Len(t, idx, 2)

	// Rewriting the file with new content changes its fingerprint; the next
	// Index call must rebuild the cache rather than serve the stale rows.
	writeBgzf(t, path, "1\t100\t100\tA\tG\n1\t200\t200\tC\tT\n1\t300\t300\tT\tA\n")
	idx2, err := src.Index("REF")
	require.NoError(t, err)
	assert.Len(t, idx2, 3) // one GroupEntry per distinct REF value: A, C, T
}

func TestReferenceSourceQueryAndSlice(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chr1.seq", "acgtACGTnnAAAA")

	src := OpenReferenceSource("hg19", map[string]string{"1": path})

	it, err := src.Query(context.Background(), "1", 0, 3)
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Scan())
	row := it.Row()
	assert.Equal(t, "ACGT", row.Get("SEQ").String())

	bases, err := src.Slice(row, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, "AC", bases)

	_, err = src.Iterate(context.Background(), nil)
	assert.True(t, gendas.Is(err, gendas.Other))
}

func TestFingerprintFileChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello")
	fp1, err := FingerprintFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hello world, a longer body"), 0o644))
	fp2, err := FingerprintFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
}
