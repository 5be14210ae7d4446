package router

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
	"github.com/contextfinder/contextfinder/internal/secretsafety"
)

const (
	defaultGrepBefore     = 20
	defaultGrepAfter      = 20
	maxGrepContextLines   = 5000
	defaultMaxHunks       = 50
	defaultMaxMatches     = 200
)

// Hunk is one merged group of matching lines plus surrounding context.
type Hunk struct {
	File      string
	StartLine int
	EndLine   int
	Content   string
	Matches   int
}

// GrepResult is the outcome of one grep scan.
type GrepResult struct {
	Hunks      []Hunk
	Truncated  bool
	Reason     cursor.TruncationReason
	NextCursor string
}

// grepCursorState resumes a grep scan: which file/line to continue from.
type grepCursorState struct {
	V             int    `json:"v"`
	Tool          string `json:"tool"`
	Mode          string `json:"mode"`
	RootHash      string `json:"root_hash"`
	Pattern       string `json:"pattern"`
	FilePattern   string `json:"file_pattern,omitempty"`
	CaseSensitive bool   `json:"case_sensitive"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	AllowSecrets  bool   `json:"allow_secrets"`
	ResumeFile    string `json:"resume_file,omitempty"`
	ResumeLine    int    `json:"resume_line,omitempty"`
}

func clampContext(n, def int) int {
	if n < 0 {
		return 0
	}
	if n == 0 {
		return def
	}
	if n > maxGrepContextLines {
		return maxGrepContextLines
	}
	return n
}

// GrepScan implements the §4.10 grep sub-mode: compile pattern, walk files
// under root filtered by filePattern and the secret-path denylist, merge
// matching lines with before/after context into hunks, and stop at
// maxHunks/maxMatches, emitting a resume cursor.
func GrepScan(root, pattern, filePattern string, caseSensitive bool, before, after, maxHunks, maxMatches int, allowSecrets bool, resumeFile string, resumeLine int, rootHash string) (GrepResult, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return GrepResult{}, fmt.Errorf("invalid_request: bad grep pattern: %w", err)
	}

	before = clampContext(before, defaultGrepBefore)
	after = clampContext(after, defaultGrepAfter)
	if maxHunks <= 0 {
		maxHunks = defaultMaxHunks
	}
	if maxMatches <= 0 {
		maxMatches = defaultMaxMatches
	}

	var files []string
	resuming := resumeFile != ""
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if filePattern != "" {
			if ok, _ := filepath.Match(filePattern, filepath.Base(rel)); !ok {
				return nil
			}
		}
		if !allowSecrets && secretsafety.IsDenied(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return GrepResult{}, fmt.Errorf("grep: walk: %w", err)
	}
	sort.Strings(files)

	if resuming {
		idx := sort.SearchStrings(files, resumeFile)
		if idx < len(files) {
			files = files[idx:]
		} else {
			files = nil
		}
	}

	var hunks []Hunk
	matchCount := 0
	truncated := false
	var reason cursor.TruncationReason
	nextFile, nextLine := "", 0

scan:
	for fi, rel := range files {
		lines, readErr := readLines(filepath.Join(root, filepath.FromSlash(rel)))
		if readErr != nil {
			continue
		}
		startAt := 0
		if fi == 0 && resuming {
			startAt = resumeLine
		}

		var matchLines []int
		for i := startAt; i < len(lines); i++ {
			if re.MatchString(lines[i]) {
				matchLines = append(matchLines, i)
			}
		}
		if len(matchLines) == 0 {
			continue
		}

		for _, groupLines := range mergeMatchGroups(matchLines, before, after, len(lines)) {
			if len(hunks) >= maxHunks {
				truncated, reason = true, cursor.TruncationMaxHunks
				nextFile, nextLine = rel, groupLines[0]
				break scan
			}
			matchCount += countMatchesInRange(lines, groupLines, re)
			hunks = append(hunks, Hunk{
				File:      rel,
				StartLine: groupLines[0] + 1,
				EndLine:   groupLines[1] + 1,
				Content:   strings.Join(lines[groupLines[0]:groupLines[1]+1], "\n"),
				Matches:   countMatchesInRange(lines, groupLines, re),
			})
			if matchCount >= maxMatches {
				truncated, reason = true, cursor.TruncationMaxMatches
				nextFile, nextLine = rel, groupLines[1]+1
				break scan
			}
		}
	}

	result := GrepResult{Hunks: hunks, Truncated: truncated, Reason: reason}
	if truncated {
		encoded, encErr := cursor.Encode(grepCursorState{
			V: cursor.Version, Tool: "read_pack", Mode: string(IntentGrep), RootHash: rootHash,
			Pattern: pattern, FilePattern: filePattern, CaseSensitive: caseSensitive,
			Before: before, After: after, AllowSecrets: allowSecrets,
			ResumeFile: nextFile, ResumeLine: nextLine,
		})
		if encErr == nil {
			result.NextCursor = encoded
		}
	}
	return result, nil
}

// mergeMatchGroups turns a sorted list of 0-indexed matching line numbers
// into merged [start,end] context windows, combining overlapping windows.
func mergeMatchGroups(matchLines []int, before, after, totalLines int) [][2]int {
	var groups [][2]int
	for _, m := range matchLines {
		start := m - before
		if start < 0 {
			start = 0
		}
		end := m + after
		if end > totalLines-1 {
			end = totalLines - 1
		}
		if len(groups) > 0 && start <= groups[len(groups)-1][1]+1 {
			if end > groups[len(groups)-1][1] {
				groups[len(groups)-1][1] = end
			}
			continue
		}
		groups = append(groups, [2]int{start, end})
	}
	return groups
}

func countMatchesInRange(lines []string, rng [2]int, re *regexp.Regexp) int {
	n := 0
	for i := rng[0]; i <= rng[1] && i < len(lines); i++ {
		if re.MatchString(lines[i]) {
			n++
		}
	}
	return n
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// GrepIntentHandler adapts GrepScan to IntentHandler.
type GrepIntentHandler struct {
	RootHash func(root string) string
}

func (h *GrepIntentHandler) Handle(_ context.Context, root string, req Request) (Response, error) {
	rootHash := ""
	if h.RootHash != nil {
		rootHash = h.RootHash(root)
	}

	resumeFile, resumeLine := "", 0
	if req.HasCursor && req.Cursor != "" {
		var st grepCursorState
		if err := cursor.Decode(req.Cursor, &st); err == nil {
			resumeFile, resumeLine = st.ResumeFile, st.ResumeLine
			if req.Pattern == "" {
				req.Pattern = st.Pattern
			}
			if req.FilePattern == "" {
				req.FilePattern = st.FilePattern
			}
		}
	}

	result, err := GrepScan(root, req.Pattern, req.FilePattern, req.CaseSensitive, req.Before, req.After,
		req.MaxHunks, req.MaxMatches, req.AllowSecrets, resumeFile, resumeLine, rootHash)
	if err != nil {
		return Response{}, err
	}

	sections := make([]Section, 0, len(result.Hunks))
	for _, h := range result.Hunks {
		sections = append(sections, Section{
			Kind:    SectionHunks,
			Title:   fmt.Sprintf("%s:%d-%d", h.File, h.StartLine, h.EndLine),
			Path:    h.File,
			Content: h.Content,
		})
	}

	resp := Response{Sections: sections, NextCursor: result.NextCursor, Truncated: result.Truncated}
	if result.Reason != "" {
		resp.Truncation = string(result.Reason)
	}
	return resp, nil
}

var _ IntentHandler = (*GrepIntentHandler)(nil)
