package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordeu/gendas"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBuildsRegisteredSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "exons.tsv", "1\t100\t150\tG1\n1\t200\t250\tG2\n")

	cfgPath := writeFile(t, dir, "gendas.yaml", `
exons:
  type: mem
  file: exons.tsv
  header: [CHR, BEGIN, END, GENE]
  ctypes: [string, int, int, string]
  sequence: CHR
  begin: BEGIN
  end: END
  indices: [GENE]
`)

	e, err := Load(cfgPath, gendas.Options{Workers: 2})
	require.NoError(t, err)

	d, err := e.Dataset("exons")
	require.NoError(t, err)
	count, err := d.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	src, err := e.Source("exons")
	require.NoError(t, err)
	idx, err := src.Index("GENE")
	require.NoError(t, err)
	assert.Len(t, idx, 2)
}

func TestLoadRejectsUnknownSourceType(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "gendas.yaml", `
broken:
  type: nonsense
  file: whatever.tsv
  header: [A]
  ctypes: [string]
  sequence: A
  begin: A
  end: A
`)

	_, err := Load(cfgPath, gendas.Options{})
	require.Error(t, err)
	assert.True(t, gendas.Is(err, gendas.ConfigError))
}

func TestLoadRejectsHeaderCtypesMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "exons.tsv", "1\t100\t150\tG1\n")
	cfgPath := writeFile(t, dir, "gendas.yaml", `
exons:
  type: mem
  file: exons.tsv
  header: [CHR, BEGIN, END, GENE]
  ctypes: [string, int, int]
  sequence: CHR
  begin: BEGIN
  end: END
`)

	_, err := Load(cfgPath, gendas.Options{})
	require.Error(t, err)
	assert.True(t, gendas.Is(err, gendas.ConfigError))
}
