package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestGrepScan_FindsSeparateMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Foo() {}\n\nfunc Bar() {}\n")

	result, err := GrepScan(dir, "^func", "", false, 0, 0, 10, 10, false, "", 0, "h")
	require.NoError(t, err)
	require.Len(t, result.Hunks, 2)
	assert.Contains(t, result.Hunks[0].Content, "func Foo")
	assert.False(t, result.Truncated)
}

func TestGrepScan_KeepsDistantMatchesAsSeparateHunks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\n\nfunc Foo() {}\n\n\n\n\nfunc Bar() {}\n")

	result, err := GrepScan(dir, "^func", "", false, 1, 1, 10, 10, false, "", 0, "h")
	require.NoError(t, err)
	require.Len(t, result.Hunks, 2)
}

func TestGrepScan_MergesCloseMatchesIntoOneHunk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Foo() {}\n\nfunc Bar() {}\n")

	result, err := GrepScan(dir, "^func", "", false, 1, 1, 10, 10, false, "", 0, "h")
	require.NoError(t, err)
	require.Len(t, result.Hunks, 1)
	assert.Contains(t, result.Hunks[0].Content, "func Foo")
	assert.Contains(t, result.Hunks[0].Content, "func Bar")
}

func TestGrepScan_InvalidPatternReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := GrepScan(dir, "(unclosed", "", false, 0, 0, 10, 10, false, "", 0, "h")
	assert.Error(t, err)
}

func TestGrepScan_RespectsMaxHunksAndEmitsCursor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "foo\n\n\nfoo\n\n\nfoo\n")

	result, err := GrepScan(dir, "foo", "", false, 0, 0, 1, 100, false, "", 0, "h")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.NotEmpty(t, result.NextCursor)
	assert.Len(t, result.Hunks, 1)
}

func TestGrepScan_SkipsDeniedSecretFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "token=abc\n")
	writeFile(t, dir, "b.go", "token := 1\n")

	result, err := GrepScan(dir, "token", "", false, 0, 0, 10, 10, false, "", 0, "h")
	require.NoError(t, err)
	for _, h := range result.Hunks {
		assert.NotEqual(t, ".env", h.File)
	}
}
