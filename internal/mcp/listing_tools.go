package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contextfinder/contextfinder/internal/cursor"
	"github.com/contextfinder/contextfinder/internal/dsl"
	"github.com/contextfinder/contextfinder/internal/router"
	"github.com/contextfinder/contextfinder/internal/session"
)

// ListFilesInput is the list_files (a.k.a. find) tool's input.
type ListFilesInput struct {
	Path    string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Pattern string `json:"pattern,omitempty" jsonschema:"glob matched against each entry's base name"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum entries per page, default 200"`
	Cursor  string `json:"cursor,omitempty" jsonschema:"a continuation cursor from a previous call"`
}

// LsInput is the ls tool's input: one directory level, non-recursive.
type LsInput struct {
	Path string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Dir  string `json:"dir,omitempty" jsonschema:"directory to list, relative to the resolved root; default is the root itself"`
}

// TreeInput is the tree tool's input.
type TreeInput struct {
	Path     string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Dir      string `json:"dir,omitempty" jsonschema:"subdirectory to root the tree at; default is the resolved root"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"maximum directory depth, default 4"`
}

// RepoOnboardingPackInput is the repo_onboarding_pack tool's input: a
// thin wrapper over the onboarding intent, no extra fields of its own.
type RepoOnboardingPackInput struct {
	Path     string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response"`
}

func (s *Server) resolveListRoot(path string) string {
	if path != "" {
		return path
	}
	return s.rootPath
}

func (s *Server) mcpListFilesHandler(_ context.Context, _ *sdkmcp.CallToolRequest, input ListFilesInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	root := s.resolveListRoot(input.Path)
	rootHash := session.Fingerprint(root)

	resumeAfter, pattern := "", input.Pattern
	if input.Cursor != "" {
		var st struct {
			V           int    `json:"v"`
			Tool        string `json:"tool"`
			Mode        string `json:"mode"`
			RootHash    string `json:"root_hash"`
			Pattern     string `json:"pattern,omitempty"`
			ResumeAfter string `json:"resume_after,omitempty"`
		}
		if err := cursor.Decode(input.Cursor, &st); err == nil {
			resumeAfter = st.ResumeAfter
			if pattern == "" {
				pattern = st.Pattern
			}
		}
	}

	result, err := router.ListFiles(root, pattern, input.Limit, resumeAfter, false, rootHash)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}

	resp := router.Response{Sections: entriesToSections(result.Entries), NextCursor: result.NextCursor, Truncated: result.Truncated}
	text := dsl.Render(resp, "", rootHash)
	return nil, ReadPackOutput{Text: text, NextCursor: resp.NextCursor, Truncated: resp.Truncated}, nil
}

func (s *Server) mcpLsHandler(_ context.Context, _ *sdkmcp.CallToolRequest, input LsInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	root := s.resolveListRoot(input.Path)
	entries, err := router.Ls(root, input.Dir)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	resp := router.Response{Sections: entriesToSections(entries)}
	text := dsl.Render(resp, "", session.Fingerprint(root))
	return nil, ReadPackOutput{Text: text}, nil
}

func (s *Server) mcpTreeHandler(_ context.Context, _ *sdkmcp.CallToolRequest, input TreeInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	root := s.resolveListRoot(input.Path)
	text, truncated, err := router.Tree(root, input.Dir, input.MaxDepth, 0)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	resp := router.Response{
		Sections:  []router.Section{{Kind: router.SectionText, Title: "tree", Content: text}},
		Truncated: truncated,
	}
	rendered := dsl.Render(resp, "", session.Fingerprint(root))
	return nil, ReadPackOutput{Text: rendered, Truncated: truncated}, nil
}

func (s *Server) mcpRepoOnboardingPackHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input RepoOnboardingPackInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	req := router.Request{
		Intent:   router.IntentOnboarding,
		Path:     input.Path,
		MaxChars: orDefault(input.MaxChars, defaultReadPackMaxChars),
		FullMode: true,
	}
	out, err := s.runReadPack(ctx, req)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func entriesToSections(entries []router.ListEntry) []router.Section {
	sections := make([]router.Section, 0, len(entries))
	for _, e := range entries {
		kind := router.SectionText
		title := e.Path
		if e.IsDir {
			title += "/"
		}
		sections = append(sections, router.Section{Kind: kind, Title: title, Path: e.Path})
	}
	return sections
}

// handleListingFacadeTool adapts the untyped CallTool facade onto the
// list_files/ls/tree handlers, mirroring handleReadPackFacadeTool.
func (s *Server) handleListingFacadeTool(ctx context.Context, name string, args map[string]any) (string, error) {
	path, _ := args["path"].(string)

	switch name {
	case "list_files":
		pattern, _ := args["pattern"].(string)
		limit := 0
		if v, ok := args["limit"].(float64); ok {
			limit = int(v)
		}
		cur, _ := args["cursor"].(string)
		_, out, err := s.mcpListFilesHandler(ctx, nil, ListFilesInput{Path: path, Pattern: pattern, Limit: limit, Cursor: cur})
		if err != nil {
			return "", err
		}
		return out.Text, nil
	case "ls":
		dir, _ := args["dir"].(string)
		_, out, err := s.mcpLsHandler(ctx, nil, LsInput{Path: path, Dir: dir})
		if err != nil {
			return "", err
		}
		return out.Text, nil
	case "tree":
		dir, _ := args["dir"].(string)
		maxDepth := 0
		if v, ok := args["max_depth"].(float64); ok {
			maxDepth = int(v)
		}
		_, out, err := s.mcpTreeHandler(ctx, nil, TreeInput{Path: path, Dir: dir, MaxDepth: maxDepth})
		if err != nil {
			return "", err
		}
		return out.Text, nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) registerListingTools() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "list_files",
		Description: "Flat, alphabetical recursive file listing (a.k.a. find), glob-filterable, paginated via cursor.",
	}, s.mcpListFilesHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "ls",
		Description: "List the immediate children of one directory, non-recursive.",
	}, s.mcpLsHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "tree",
		Description: "Render an indented directory tree for a quick orientation glance, bounded by depth and entry count.",
	}, s.mcpTreeHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "repo_onboarding_pack",
		Description: "Curated onboarding context for a fresh session: keyword-classified topic plus one bounded grep and curated docs.",
	}, s.mcpRepoOnboardingPackHandler)
}
