package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
	"github.com/contextfinder/contextfinder/internal/secretsafety"
)

// ErrSecretDenied is returned when a file intent targets a denylisted
// filename without allow_secrets.
var ErrSecretDenied = errors.New("secret_denied: refusing to read credential-shaped file without allow_secrets")

const defaultMaxLines = 400

// FileSlice is the result of compute_file_slice.
type FileSlice struct {
	File       string
	StartLine  int
	EndLine    int
	Content    string
	Truncated  bool
	NextCursor string
}

// fileCursorState is the cursor payload for resuming a file slice.
type fileCursorState struct {
	V         int    `json:"v"`
	Tool      string `json:"tool"`
	Mode      string `json:"mode"`
	RootHash  string `json:"root_hash"`
	File      string `json:"file"`
	StartLine int     `json:"start_line"`
}

// ComputeFileSlice implements §4.10's file sub-mode: delegate to
// compute_file_slice(root, file, start_line, max_lines, max_chars,
// allow_secrets, cursor).
func ComputeFileSlice(root, file string, startLine, maxLines, maxChars int, allowSecrets bool, rootHash string) (FileSlice, error) {
	if !allowSecrets && secretsafety.IsDenied(file) {
		return FileSlice{}, ErrSecretDenied
	}
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	if startLine < 1 {
		startLine = 1
	}

	absPath := filepath.Join(root, filepath.FromSlash(file))
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return FileSlice{}, fmt.Errorf("file_slice: %w", err)
	}

	lines := strings.Split(string(raw), "\n")
	total := len(lines)
	if startLine > total {
		startLine = total
	}
	endLine := startLine + maxLines - 1
	if endLine > total {
		endLine = total
	}

	var content string
	if startLine >= 1 && startLine <= total {
		content = strings.Join(lines[startLine-1:endLine], "\n")
	}

	slice := FileSlice{File: file, StartLine: startLine, EndLine: endLine, Content: content}

	render := func() string { return slice.Content }
	pop := func() bool {
		if slice.EndLine <= slice.StartLine {
			return false
		}
		slice.EndLine--
		content := strings.Join(lines[slice.StartLine-1:slice.EndLine], "\n")
		slice.Content = content
		return true
	}
	env := cursor.EnforceMaxChars(maxChars, render, pop)
	slice.Truncated = env.Truncated

	if endLine < total {
		encoded, err := cursor.Encode(fileCursorState{
			V: cursor.Version, Tool: "read_pack", Mode: string(IntentFile),
			RootHash: rootHash, File: file, StartLine: slice.EndLine + 1,
		})
		if err == nil {
			slice.NextCursor = encoded
			slice.Truncated = true
		}
	}

	return slice, nil
}

// FileIntentHandler adapts ComputeFileSlice to IntentHandler.
type FileIntentHandler struct {
	RootHash func(root string) string
}

func (h *FileIntentHandler) Handle(_ context.Context, root string, req Request) (Response, error) {
	rootHash := ""
	if h.RootHash != nil {
		rootHash = h.RootHash(root)
	}
	slice, err := ComputeFileSlice(root, req.File, req.StartLine, req.MaxLines, req.MaxChars, req.AllowSecrets, rootHash)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Sections: []Section{{
			Kind:    SectionFile,
			Title:   slice.File,
			Path:    slice.File,
			Content: slice.Content,
		}},
		NextCursor: slice.NextCursor,
		Truncated:  slice.Truncated,
	}, nil
}

var _ IntentHandler = (*FileIntentHandler)(nil)
