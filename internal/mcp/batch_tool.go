package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contextfinder/contextfinder/internal/dsl"
	"github.com/contextfinder/contextfinder/internal/router"
	"github.com/contextfinder/contextfinder/internal/session"
)

// BatchItemInput mirrors one router.BatchItem over the wire.
type BatchItemInput struct {
	ID      string         `json:"id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// BatchInput is the batch tool's input: a sequential list of sub-calls.
type BatchInput struct {
	Path     string           `json:"path,omitempty" jsonschema:"project root shared by every item"`
	Items    []BatchItemInput `json:"items" jsonschema:"sub-calls to run in order"`
	MaxChars int              `json:"max_chars,omitempty" jsonschema:"soft budget shared across all items' rendered output"`
}

// BatchItemOutput is one item's reported outcome.
type BatchItemOutput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchOutput is the batch tool's output.
type BatchOutput struct {
	Items     []BatchItemOutput `json:"items"`
	Truncated bool              `json:"truncated,omitempty"`
}

// serverBatchExecutor adapts the Server's tool surface to
// router.BatchExecutor, so RunBatch's sequential/$ref-resolution/budget
// logic runs once and is shared by every batch-capable tool.
type serverBatchExecutor struct {
	s    *Server
	root string
}

// ExecuteItem runs one batch action against the same root for every item
// in the batch, reusing the read-pack router for everything expressible as
// a Request and wrapping plain-text tools (list_files/ls/tree/index) into a
// single-section Response so they stay $ref-composable.
func (e *serverBatchExecutor) ExecuteItem(ctx context.Context, action string, payload map[string]any) (router.Response, error) {
	req := router.Request{Path: e.root, MaxChars: defaultReadPackMaxChars}
	applyBatchPayload(&req, payload)

	switch action {
	case "read_pack":
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "file_slice":
		req.Intent = router.IntentFile
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "grep_context":
		req.Intent = router.IntentGrep
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "text_search":
		req.Intent = router.IntentQuery
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "context_pack", "get_context":
		req.Intent = router.IntentQuery
		req.FullMode = true
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "repo_onboarding_pack":
		req.Intent = router.IntentOnboarding
		req.FullMode = true
		return e.s.rp.Dispatch(ctx, e.resolvedRoot(req.Path), req)
	case "list_files":
		pattern, _ := payload["pattern"].(string)
		limit := intFromPayload(payload, "limit")
		root := e.resolvedRoot(req.Path)
		result, err := router.ListFiles(root, pattern, limit, "", false, session.Fingerprint(root))
		if err != nil {
			return router.Response{}, err
		}
		return router.Response{Sections: entriesToSections(result.Entries), NextCursor: result.NextCursor, Truncated: result.Truncated}, nil
	case "ls":
		dir, _ := payload["dir"].(string)
		root := e.resolvedRoot(req.Path)
		entries, err := router.Ls(root, dir)
		if err != nil {
			return router.Response{}, err
		}
		return router.Response{Sections: entriesToSections(entries)}, nil
	case "tree":
		dir, _ := payload["dir"].(string)
		maxDepth := intFromPayload(payload, "max_depth")
		root := e.resolvedRoot(req.Path)
		text, truncated, err := router.Tree(root, dir, maxDepth, 0)
		if err != nil {
			return router.Response{}, err
		}
		return router.Response{Sections: []router.Section{{Kind: router.SectionText, Title: "tree", Content: text}}, Truncated: truncated}, nil
	case "index":
		out, err := e.s.handleIndexTool(ctx)
		if err != nil {
			return router.Response{}, err
		}
		return router.Response{Sections: []router.Section{{Kind: router.SectionText, Title: "index", Content: fmt.Sprintf("status=%s detail=%s", out.Status, out.Detail)}}}, nil
	default:
		return router.Response{}, fmt.Errorf("batch: unknown action %q", action)
	}
}

func (e *serverBatchExecutor) resolvedRoot(path string) string {
	if path != "" {
		return path
	}
	return e.root
}

func applyBatchPayload(req *router.Request, payload map[string]any) {
	if v, ok := payload["path"].(string); ok {
		req.Path = v
	}
	if v, ok := payload["file"].(string); ok {
		req.File = v
	}
	if v, ok := payload["pattern"].(string); ok {
		req.Pattern = v
	}
	if v, ok := payload["query"].(string); ok {
		req.Query = v
	}
	if v, ok := payload["line"].(float64); ok {
		req.StartLine = int(v)
	}
	if v, ok := payload["limit"].(float64); ok {
		req.MaxLines = int(v)
	}
	if v, ok := payload["allow_secrets"].(bool); ok {
		req.AllowSecrets = v
	}
}

func intFromPayload(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (s *Server) runBatch(ctx context.Context, root string, input BatchInput) BatchOutput {
	items := make([]router.BatchItem, 0, len(input.Items))
	for _, it := range input.Items {
		id := it.ID
		if id == "" {
			// A client that omits an id still needs one for $ref correlation
			// and for the per-item status report; synthesize a fresh one
			// rather than silently dropping the item or colliding on "".
			id = uuid.NewString()
		}
		items = append(items, router.BatchItem{ID: id, Action: it.Action, Payload: it.Payload})
	}

	exec := &serverBatchExecutor{s: s, root: root}
	maxChars := orDefault(input.MaxChars, defaultReadPackMaxChars)
	result := router.RunBatch(ctx, exec, items, maxChars, func(resp router.Response) string {
		return dsl.Render(resp, "", session.Fingerprint(root))
	})

	out := BatchOutput{Truncated: result.Truncated}
	for _, item := range result.Items {
		io := BatchItemOutput{ID: item.ID, Status: item.Status}
		if item.Result != nil {
			io.Text = dsl.Render(*item.Result, "", session.Fingerprint(root))
		}
		if item.Error != nil {
			io.Error = fmt.Sprintf("%s: %s", item.Error.Code, item.Error.Message)
		}
		out.Items = append(out.Items, io)
	}
	return out
}

func (s *Server) mcpBatchHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, input BatchInput) (
	*sdkmcp.CallToolResult, BatchOutput, error,
) {
	root := s.resolveListRoot(input.Path)
	return nil, s.runBatch(ctx, root, input), nil
}

func (s *Server) handleBatchFacadeTool(ctx context.Context, args map[string]any) (BatchOutput, error) {
	path, _ := args["path"].(string)
	rawItems, _ := args["items"].([]any)

	items := make([]BatchItemInput, 0, len(rawItems))
	for _, ri := range rawItems {
		m, ok := ri.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		action, _ := m["action"].(string)
		payload, _ := m["payload"].(map[string]any)
		items = append(items, BatchItemInput{ID: id, Action: action, Payload: payload})
	}

	maxChars := 0
	if v, ok := args["max_chars"].(float64); ok {
		maxChars = int(v)
	}

	root := s.resolveListRoot(path)
	return s.runBatch(ctx, root, BatchInput{Path: path, Items: items, MaxChars: maxChars}), nil
}

func (s *Server) registerBatchTool() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name: "batch",
		Description: "Execute multiple tool calls sequentially in one request. Later items may reference " +
			"earlier results via {\"$ref\": \"#/items/<id>/<json-pointer>\"}; a shared max_chars budget pops " +
			"(not fails) later items once exceeded.",
	}, s.mcpBatchHandler)
}
