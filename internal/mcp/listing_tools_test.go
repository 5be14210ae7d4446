package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMcpListFilesHandler_ListsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	s := newTestServerWithRouter(t, dir, &fakeSearchEngine{})
	_, out, err := s.mcpListFilesHandler(context.Background(), nil, ListFilesInput{})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "a.go")
}

func TestMcpTreeHandler_RendersTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	s := newTestServerWithRouter(t, dir, &fakeSearchEngine{})
	_, out, err := s.mcpTreeHandler(context.Background(), nil, TreeInput{})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "a.go")
}
