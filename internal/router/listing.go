package router

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
	"github.com/contextfinder/contextfinder/internal/secretsafety"
)

const defaultListLimit = 200

// ListEntry is one path returned by ListFiles.
type ListEntry struct {
	Path  string
	IsDir bool
}

// ListResult is the outcome of one ListFiles call.
type ListResult struct {
	Entries    []ListEntry
	Truncated  bool
	NextCursor string
}

// listCursorState resumes a list_files walk: the last path already returned.
type listCursorState struct {
	V          int    `json:"v"`
	Tool       string `json:"tool"`
	Mode       string `json:"mode"`
	RootHash   string `json:"root_hash"`
	Pattern    string `json:"pattern,omitempty"`
	ResumeAfter string `json:"resume_after,omitempty"`
}

// ListFiles implements the list_files (a.k.a. find) tool: a flat,
// alphabetically sorted, gitignore-naive walk of root filtered by an
// optional glob against each entry's base name, denylisting secret-shaped
// files unless allowSecrets is set, paginated via cursor once more than
// limit entries match.
func ListFiles(root, pattern string, limit int, resumeAfter string, allowSecrets bool, rootHash string) (ListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var all []ListEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, ".git/") || rel == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if !allowSecrets && secretsafety.IsDenied(rel) {
				return nil
			}
		}
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, filepath.Base(rel)); !ok {
				return nil
			}
		}
		all = append(all, ListEntry{Path: rel, IsDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list_files: walk: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })

	if resumeAfter != "" {
		idx := sort.Search(len(all), func(i int) bool { return all[i].Path > resumeAfter })
		all = all[idx:]
	}

	truncated := len(all) > limit
	if truncated {
		all = all[:limit]
	}

	result := ListResult{Entries: all}
	if truncated {
		last := ""
		if len(all) > 0 {
			last = all[len(all)-1].Path
		}
		encoded, encErr := cursor.Encode(listCursorState{
			V: cursor.Version, Tool: "read_pack", Mode: "list_files", RootHash: rootHash,
			Pattern: pattern, ResumeAfter: last,
		})
		if encErr == nil {
			result.NextCursor = encoded
			result.Truncated = true
		}
	}
	return result, nil
}

// Ls lists the immediate children of dir (relative to root, "" for root
// itself) — a single directory level, unlike ListFiles' recursive walk.
func Ls(root, dir string) ([]ListEntry, error) {
	target := root
	if dir != "" {
		target = filepath.Join(root, filepath.FromSlash(dir))
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("ls: %w", err)
	}
	out := make([]ListEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		rel := e.Name()
		if dir != "" {
			rel = filepath.ToSlash(filepath.Join(dir, e.Name()))
		}
		out = append(out, ListEntry{Path: rel, IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

const (
	defaultTreeMaxDepth   = 4
	defaultTreeMaxEntries = 500
)

// Tree renders an indented directory tree starting at dir (relative to
// root, "" for root itself), bounded by maxDepth and maxEntries. Unlike
// ListFiles/GrepScan, Tree has no cursor — once the entry budget is hit it
// stops and reports truncated via the returned bool, matching the
// tool's "quick orientation glance" role rather than exhaustive listing.
func Tree(root, dir string, maxDepth, maxEntries int) (string, bool, error) {
	if maxDepth <= 0 {
		maxDepth = defaultTreeMaxDepth
	}
	if maxEntries <= 0 {
		maxEntries = defaultTreeMaxEntries
	}

	start := root
	if dir != "" {
		start = filepath.Join(root, filepath.FromSlash(dir))
	}

	var sb strings.Builder
	count := 0
	truncated := false
	var walk func(path string, prefix string, depth int)
	walk = func(path, prefix string, depth int) {
		if truncated || depth > maxDepth {
			return
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for i, e := range entries {
			if e.Name() == ".git" {
				continue
			}
			if count >= maxEntries {
				truncated = true
				return
			}
			count++
			connector := "├── "
			if i == len(entries)-1 {
				connector = "└── "
			}
			fmt.Fprintf(&sb, "%s%s%s\n", prefix, connector, e.Name())
			if e.IsDir() {
				childPrefix := prefix + "│   "
				if i == len(entries)-1 {
					childPrefix = prefix + "    "
				}
				walk(filepath.Join(path, e.Name()), childPrefix, depth+1)
			}
		}
	}
	walk(start, "", 1)
	return sb.String(), truncated, nil
}
