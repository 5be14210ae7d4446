package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contextfinder/contextfinder/internal/dsl"
	"github.com/contextfinder/contextfinder/internal/graph"
	"github.com/contextfinder/contextfinder/internal/router"
	"github.com/contextfinder/contextfinder/internal/search"
	"github.com/contextfinder/contextfinder/internal/session"
)

// ReadPackInput mirrors router.Request across every read_pack sub-mode;
// auto-resolution (ResolveIntent) picks the sub-mode when Intent is empty.
type ReadPackInput struct {
	Intent        string   `json:"intent,omitempty" jsonschema:"one of auto,file,grep,query,onboarding,memory,recall; default auto"`
	Path          string   `json:"path,omitempty" jsonschema:"project root or a path inside it, used for root resolution"`
	Cursor        string   `json:"cursor,omitempty" jsonschema:"a continuation cursor returned by a previous call"`
	File          string   `json:"file,omitempty" jsonschema:"file intent: path to read, relative to the resolved root"`
	StartLine     int      `json:"start_line,omitempty" jsonschema:"file intent: first line to return, 1-indexed"`
	MaxLines      int      `json:"max_lines,omitempty" jsonschema:"file intent: maximum lines to return"`
	Pattern       string   `json:"pattern,omitempty" jsonschema:"grep intent: regular expression to search for"`
	FilePattern   string   `json:"file_pattern,omitempty" jsonschema:"grep intent: glob restricting which files are scanned"`
	CaseSensitive bool     `json:"case_sensitive,omitempty" jsonschema:"grep intent: match case exactly, default false"`
	Before        int      `json:"before,omitempty" jsonschema:"grep intent: context lines before each match"`
	After         int      `json:"after,omitempty" jsonschema:"grep intent: context lines after each match"`
	Query         string   `json:"query,omitempty" jsonschema:"query intent: the search query"`
	Questions     []string `json:"questions,omitempty" jsonschema:"recall intent: a list of questions to answer"`
	Ask           string   `json:"ask,omitempty" jsonschema:"recall intent: a single free-form question"`
	MaxChars      int      `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response, default 8000"`
	AllowSecrets  bool     `json:"allow_secrets,omitempty" jsonschema:"permit reading credential-denylisted paths"`
	FullMode      bool     `json:"full_mode,omitempty" jsonschema:"include full structured sections rather than trimmed snippets"`
	TimeoutMS     int      `json:"timeout_ms,omitempty" jsonschema:"soft per-call timeout in milliseconds, clamped to [1000,120000]"`
}

// ReadPackOutput is the structured result alongside the [CONTENT] text.
type ReadPackOutput struct {
	Text       string `json:"text" jsonschema:"the rendered [CONTENT] block"`
	NextCursor string `json:"next_cursor,omitempty" jsonschema:"pass back verbatim to continue"`
	Truncated  bool   `json:"truncated,omitempty" jsonschema:"true if the response was trimmed to fit max_chars"`
}

const defaultReadPackMaxChars = 8000

func (in ReadPackInput) toRequest() router.Request {
	maxChars := in.MaxChars
	if maxChars <= 0 {
		maxChars = defaultReadPackMaxChars
	}
	return router.Request{
		Intent:        router.Intent(in.Intent),
		Path:          in.Path,
		Cursor:        in.Cursor,
		HasCursor:     in.Cursor != "",
		File:          in.File,
		StartLine:     in.StartLine,
		MaxLines:      in.MaxLines,
		Pattern:       in.Pattern,
		FilePattern:   in.FilePattern,
		CaseSensitive: in.CaseSensitive,
		Before:        in.Before,
		After:         in.After,
		Query:         in.Query,
		Questions:     in.Questions,
		Ask:           in.Ask,
		MaxChars:      maxChars,
		AllowSecrets:  in.AllowSecrets,
		FullMode:      in.FullMode,
		TimeoutMS:     in.TimeoutMS,
	}
}

// buildReadPackRouter constructs the Router backing the read-pack tool
// surface, sharing the server's search engine across the query/recall
// intents. Called once from NewServer, mirroring registerTools' one-shot
// wiring, so no locking is needed at call time (CallTool/the MCP handlers
// already hold s.mu for the server's other mutable fields). loader is nil
// in tests that have no metadata store backing a real project.
func buildReadPackRouter(engine search.SearchEngine, loader *graphLoader) *router.Router {
	queryHandler := &router.QueryIntentHandler{
		Engine:   engine,
		Graphs:   loaderFunc(loader),
		Strategy: graph.Direct,
	}

	return router.NewRouter(map[router.Intent]router.IntentHandler{
		router.IntentFile:       &router.FileIntentHandler{RootHash: session.Fingerprint},
		router.IntentGrep:       &router.GrepIntentHandler{RootHash: session.Fingerprint},
		router.IntentQuery:      queryHandler,
		router.IntentMemory:     &router.MemoryIntentHandler{RootHash: session.Fingerprint},
		router.IntentOnboarding: &router.OnboardingIntentHandler{},
		router.IntentRecall:     &router.RecallIntentHandler{Engine: queryHandler},
	})
}

// loaderFunc adapts a (possibly nil) *graphLoader to the
// func(language string) *graph.Assembler shape QueryIntentHandler.Graphs
// expects, without the handler needing to know the loader exists.
func loaderFunc(l *graphLoader) func(string) *graph.Assembler {
	if l == nil {
		return nil
	}
	return l.forLanguage
}

// runReadPack dispatches req against the resolved root, trims it to budget,
// and renders the [CONTENT] text alongside the structured fields.
func (s *Server) runReadPack(ctx context.Context, req router.Request) (ReadPackOutput, error) {
	root := req.Path
	if root == "" {
		root = s.rootPath
	}

	resp, err := s.rp.Dispatch(ctx, root, req)
	if err != nil {
		return ReadPackOutput{}, err
	}

	fp := session.Fingerprint(root)
	text := dsl.Render(resp, "", fp)
	return ReadPackOutput{
		Text:       text,
		NextCursor: resp.NextCursor,
		Truncated:  resp.Truncated,
	}, nil
}

// FileSliceInput is the file_slice (a.k.a. cat) tool's input.
type FileSliceInput struct {
	Path         string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	File         string `json:"file" jsonschema:"file path to read, relative to the resolved root"`
	StartLine    int    `json:"start_line,omitempty" jsonschema:"first line to return, 1-indexed, default 1"`
	MaxLines     int    `json:"max_lines,omitempty" jsonschema:"maximum lines to return"`
	MaxChars     int    `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response"`
	AllowSecrets bool   `json:"allow_secrets,omitempty" jsonschema:"permit reading credential-denylisted paths"`
	Cursor       string `json:"cursor,omitempty" jsonschema:"a continuation cursor from a previous call"`
}

// GrepContextInput is the grep_context (a.k.a. rg) tool's input.
type GrepContextInput struct {
	Path          string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Pattern       string `json:"pattern" jsonschema:"regular expression to search for"`
	FilePattern   string `json:"file_pattern,omitempty" jsonschema:"glob restricting which files are scanned"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default false"`
	Before        int    `json:"before,omitempty" jsonschema:"context lines before each match"`
	After         int    `json:"after,omitempty" jsonschema:"context lines after each match"`
	AllowSecrets  bool   `json:"allow_secrets,omitempty" jsonschema:"permit scanning credential-denylisted paths"`
	Cursor        string `json:"cursor,omitempty" jsonschema:"a continuation cursor from a previous call"`
	MaxChars      int    `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response"`
}

// TextSearchInput is the text_search tool's input: a query-intent read_pack
// call that always returns trimmed snippets rather than a full context pack.
type TextSearchInput struct {
	Path     string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Query    string `json:"query" jsonschema:"the search query to execute"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of snippets, default 10"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response"`
}

// ContextPackInput is the context_pack tool's input: the same query intent,
// always rendered as a full structured pack (FullMode=true).
type ContextPackInput struct {
	Path     string `json:"path,omitempty" jsonschema:"project root or a path inside it"`
	Query    string `json:"query" jsonschema:"the search query to execute"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"soft budget for the rendered response"`
}

// HelpInput takes no parameters.
type HelpInput struct{}

// HelpOutput carries the [LEGEND] text.
type HelpOutput struct {
	Text string `json:"text"`
}

func (s *Server) mcpReadPackHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input ReadPackInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	out, err := s.runReadPack(ctx, input.toRequest())
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpFileSliceHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input FileSliceInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	if input.File == "" && input.Cursor == "" {
		return nil, ReadPackOutput{}, MapReadPackError(NewMissingFieldError("file"))
	}
	req := router.Request{
		Intent: router.IntentFile, Path: input.Path, File: input.File,
		StartLine: input.StartLine, MaxLines: input.MaxLines,
		MaxChars: orDefault(input.MaxChars, defaultReadPackMaxChars),
		AllowSecrets: input.AllowSecrets, Cursor: input.Cursor, HasCursor: input.Cursor != "",
	}
	out, err := s.runReadPack(ctx, req)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpGrepContextHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input GrepContextInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	if input.Pattern == "" && input.Cursor == "" {
		return nil, ReadPackOutput{}, MapReadPackError(NewMissingFieldError("pattern"))
	}
	req := router.Request{
		Intent: router.IntentGrep, Path: input.Path, Pattern: input.Pattern,
		FilePattern: input.FilePattern, CaseSensitive: input.CaseSensitive,
		Before: input.Before, After: input.After,
		MaxChars: orDefault(input.MaxChars, defaultReadPackMaxChars),
		AllowSecrets: input.AllowSecrets, Cursor: input.Cursor, HasCursor: input.Cursor != "",
	}
	out, err := s.runReadPack(ctx, req)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpTextSearchHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input TextSearchInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	if input.Query == "" {
		return nil, ReadPackOutput{}, MapReadPackError(NewMissingFieldError("query"))
	}
	req := router.Request{
		Intent: router.IntentQuery, Path: input.Path, Query: input.Query,
		MaxLines: orDefault(input.Limit, 10),
		MaxChars: orDefault(input.MaxChars, defaultReadPackMaxChars),
	}
	out, err := s.runReadPack(ctx, req)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpContextPackHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input ContextPackInput) (
	*sdkmcp.CallToolResult, ReadPackOutput, error,
) {
	if input.Query == "" {
		return nil, ReadPackOutput{}, MapReadPackError(NewMissingFieldError("query"))
	}
	req := router.Request{
		Intent: router.IntentQuery, Path: input.Path, Query: input.Query,
		FullMode: true, MaxChars: orDefault(input.MaxChars, defaultReadPackMaxChars),
	}
	out, err := s.runReadPack(ctx, req)
	if err != nil {
		return nil, ReadPackOutput{}, MapReadPackError(err)
	}
	return nil, out, nil
}

func (s *Server) mcpHelpHandler(_ context.Context, _ *sdkmcp.CallToolRequest, _ HelpInput) (
	*sdkmcp.CallToolResult, HelpOutput, error,
) {
	return nil, HelpOutput{Text: dsl.RenderLegend()}, nil
}

// orDefault returns v unless it is <= 0, in which case it returns def.
func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// registerReadPackTools registers the read-pack tool surface alongside the
// original search tools.
func (s *Server) registerReadPackTools() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name: "read_pack",
		Description: "Unified read-pack tool: resolves an intent (file slice, grep, query, " +
			"onboarding, memory, or recall) from the request shape or a continuation cursor, " +
			"and renders a budget-trimmed [CONTENT] block plus a next_cursor when more remains.",
	}, s.mcpReadPackHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "file_slice",
		Description: "Read a line-numbered window of a file (a.k.a. cat), paginated via cursor and denylisted against credential-shaped paths.",
	}, s.mcpFileSliceHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "grep_context",
		Description: "Regex sweep over the tree with merged before/after context windows (a.k.a. rg), paginated via cursor.",
	}, s.mcpGrepContextHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "text_search",
		Description: "Hybrid lexical+semantic search returning up to 5 trimmed snippets grouped primary-then-related.",
	}, s.mcpTextSearchHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "context_pack",
		Description: "Same retrieval as text_search, rendered as a full structured context pack instead of trimmed snippets.",
	}, s.mcpContextPackHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "help",
		Description: "Returns the [LEGEND] block explaining the read-pack text DSL. No other tool prepends a legend.",
	}, s.mcpHelpHandler)

	s.logger.Info("read-pack tools registered", slog.Int("count", 6))
}
