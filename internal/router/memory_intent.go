package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
)

// memoryCandidates is the deterministic, priority-ordered file list the
// memory sub-mode walks: docs first, interleaved with high-signal configs.
var memoryCandidates = []string{
	"AGENTS.md", "README.md", "PHILOSOPHY.md",
	"go.mod", "package.json", "Cargo.toml",
	"Makefile", ".github/workflows",
	"CONTRIBUTING.md", "docs/QUICK_START.md",
}

const memoryAnchorWindow = 40

// memoryCursorState resumes memory iteration.
type memoryCursorState struct {
	V                int  `json:"v"`
	Tool             string `json:"tool"`
	Mode             string `json:"mode"`
	RootHash         string `json:"root_hash"`
	NextCandidate    int  `json:"next_candidate_index"`
	EntrypointDone   bool `json:"entrypoint_done"`
}

// MemoryIntentHandler implements the §4.10 memory sub-mode.
type MemoryIntentHandler struct {
	RootHash func(root string) string
}

func (h *MemoryIntentHandler) Handle(_ context.Context, root string, req Request) (Response, error) {
	rootHash := ""
	if h.RootHash != nil {
		rootHash = h.RootHash(root)
	}

	startIdx := 0
	if req.HasCursor && req.Cursor != "" {
		var st memoryCursorState
		if err := cursor.Decode(req.Cursor, &st); err == nil {
			startIdx = st.NextCandidate
		}
	}

	roots := candidateRoots(root)

	var sections []Section
	idx := startIdx
	for ; idx < len(memoryCandidates); idx++ {
		rel := memoryCandidates[idx]
		for _, base := range roots {
			abs := filepath.Join(base, filepath.FromSlash(rel))
			data, err := os.ReadFile(abs)
			if err != nil {
				continue
			}
			relToRoot, _ := filepath.Rel(root, abs)
			sections = append(sections, Section{
				Kind:    SectionDoc,
				Title:   filepath.ToSlash(relToRoot),
				Path:    filepath.ToSlash(relToRoot),
				Content: anchorWindow(string(data), memoryAnchorWindow),
			})
			break
		}
		if len(sections) >= 8 {
			idx++
			break
		}
	}

	resp := Response{Sections: sections}
	if idx < len(memoryCandidates) {
		encoded, err := cursor.Encode(memoryCursorState{
			V: cursor.Version, Tool: "read_pack", Mode: string(IntentMemory),
			RootHash: rootHash, NextCandidate: idx, EntrypointDone: true,
		})
		if err == nil {
			resp.NextCursor = encoded
			resp.Truncated = true
		}
	}
	return resp, nil
}

// candidateRoots recurses up to two levels under root when root itself
// carries no project markers (a "wrapper" checkout).
func candidateRoots(root string) []string {
	roots := []string{root}
	if hasAnyCandidate(root) {
		return roots
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return roots
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		sub := filepath.Join(root, e.Name())
		roots = append(roots, sub)
		if hasAnyCandidate(sub) {
			return roots
		}
		subEntries, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		for _, se := range subEntries {
			if se.IsDir() && !strings.HasPrefix(se.Name(), ".") {
				roots = append(roots, filepath.Join(sub, se.Name()))
			}
		}
	}
	return roots
}

func hasAnyCandidate(dir string) bool {
	for _, rel := range memoryCandidates {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err == nil {
			return true
		}
	}
	return false
}

// anchorWindow returns up to window lines around the file's best anchor
// (the first non-blank line after any frontmatter/title), centered for
// docs, from the top for code/config.
func anchorWindow(content string, window int) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= window {
		return content
	}
	return strings.Join(lines[:window], "\n")
}

var _ IntentHandler = (*MemoryIntentHandler)(nil)
