package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/contextfinder/contextfinder/internal/session"
)

// RootGetOutput reports the currently resolved project root. Unlike every
// other tool's response, root_get's entire purpose is to name the root, so
// it returns the raw path rather than only a fingerprint.
type RootGetOutput struct {
	Root            string `json:"root"`
	RootFingerprint string `json:"root_fingerprint"`
}

// RootSetInput is root_set's input.
type RootSetInput struct {
	Path string `json:"path" jsonschema:"absolute path to the new project root"`
}

func (s *Server) handleRootGetTool() RootGetOutput {
	s.mu.RLock()
	root := s.rootPath
	if s.resolver != nil && s.resolver.Root != "" {
		root = s.resolver.Root
	}
	s.mu.RUnlock()
	return RootGetOutput{Root: root, RootFingerprint: session.Fingerprint(root)}
}

func (s *Server) handleRootSetTool(args map[string]any) (RootGetOutput, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return RootGetOutput{}, MapReadPackError(NewMissingFieldError("path"))
	}
	return s.setRoot(path)
}

func (s *Server) setRoot(path string) (RootGetOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, _, err := s.resolver.Resolve(session.ResolveInput{Path: path})
	if err != nil {
		return RootGetOutput{}, MapReadPackError(err)
	}
	s.rootPath = root
	return RootGetOutput{Root: root, RootFingerprint: session.Fingerprint(root)}, nil
}

// RootGetInput takes no parameters.
type RootGetInput struct{}

func (s *Server) mcpRootGetHandler(_ context.Context, _ *sdkmcp.CallToolRequest, _ RootGetInput) (
	*sdkmcp.CallToolResult, RootGetOutput, error,
) {
	return nil, s.handleRootGetTool(), nil
}

func (s *Server) mcpRootSetHandler(_ context.Context, _ *sdkmcp.CallToolRequest, input RootSetInput) (
	*sdkmcp.CallToolResult, RootGetOutput, error,
) {
	out, err := s.setRoot(input.Path)
	if err != nil {
		return nil, RootGetOutput{}, err
	}
	return nil, out, nil
}

// IndexInput takes no parameters; it always targets the current root.
type IndexInput struct{}

// IndexOutput reports the outcome of an index tool invocation.
type IndexOutput struct {
	Status string `json:"status"` // "ok" | "unsupported" | "failed"
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleIndexTool(ctx context.Context) (IndexOutput, error) {
	s.mu.RLock()
	reindex := s.reindex
	s.mu.RUnlock()

	if reindex == nil {
		return IndexOutput{Status: "unsupported", Detail: "no re-index trigger is wired for this server instance"}, nil
	}
	if err := reindex(ctx); err != nil {
		return IndexOutput{Status: "failed", Detail: err.Error()}, nil
	}
	if s.graphs != nil {
		s.graphs.invalidate()
	}
	return IndexOutput{Status: "ok"}, nil
}

func (s *Server) mcpIndexHandler(ctx context.Context, _ *sdkmcp.CallToolRequest, _ IndexInput) (
	*sdkmcp.CallToolResult, IndexOutput, error,
) {
	out, err := s.handleIndexTool(ctx)
	return nil, out, err
}

// DoctorInput takes no parameters.
type DoctorInput struct{}

// DoctorOutput is the doctor tool's freshness/health diagnostic report.
type DoctorOutput struct {
	Stale          bool     `json:"stale"`
	LastSuccessMS  int64    `json:"last_success_unix_ms"`
	P95DurationMS  int64    `json:"p95_duration_ms"`
	FilesPerSec    float64  `json:"files_per_sec"`
	PendingWatcher int      `json:"pending_watcher_events"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
	Hints          []string `json:"hints,omitempty"`
}

func (s *Server) handleDoctorTool() DoctorOutput {
	s.mu.RLock()
	tracker := s.health
	s.mu.RUnlock()

	if tracker == nil {
		return DoctorOutput{Stale: true, Hints: []string{"index_stale"}}
	}

	snap := tracker.Snapshot()
	now := time.Now()
	hints := snap.Hints(now)
	strHints := make([]string, 0, len(hints))
	for _, h := range hints {
		strHints = append(strHints, string(h))
	}

	return DoctorOutput{
		Stale:          snap.Stale(now),
		LastSuccessMS:  snap.LastSuccessUnixMS,
		P95DurationMS:  snap.P95DurationMS,
		FilesPerSec:    snap.FilesPerSec,
		PendingWatcher: snap.PendingWatcher,
		FailureReasons: snap.FailureReasons,
		Hints:          strHints,
	}
}

func (s *Server) mcpDoctorHandler(_ context.Context, _ *sdkmcp.CallToolRequest, _ DoctorInput) (
	*sdkmcp.CallToolResult, DoctorOutput, error,
) {
	return nil, s.handleDoctorTool(), nil
}

func (s *Server) registerAdminTools() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "root_get",
		Description: "Report the currently resolved project root and its fingerprint.",
	}, s.mcpRootGetHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "root_set",
		Description: "Explicitly set the project root for subsequent calls.",
	}, s.mcpRootSetHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "index",
		Description: "Trigger a foreground re-index of the project root.",
	}, s.mcpIndexHandler)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "doctor",
		Description: "Report index freshness and coordinator health diagnostics.",
	}, s.mcpDoctorHandler)
}
