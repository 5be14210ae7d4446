package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/contextfinder/contextfinder/internal/config"
	"github.com/contextfinder/contextfinder/internal/embed"
	"github.com/contextfinder/contextfinder/internal/health"
	"github.com/contextfinder/contextfinder/internal/index"
	"github.com/contextfinder/contextfinder/internal/logging"
	"github.com/contextfinder/contextfinder/internal/mcp"
	"github.com/contextfinder/contextfinder/internal/search"
	"github.com/contextfinder/contextfinder/internal/store"
	"github.com/contextfinder/contextfinder/internal/ui"
	"github.com/contextfinder/contextfinder/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int
	var session string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server over the given transport.

BUG-034: stdout is reserved exclusively for JSON-RPC once the server starts;
all diagnostics go to the log file, never to stdout or stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				if cleanup, err := logging.SetupMCPModeWithLevel("debug"); err == nil {
					defer cleanup()
				}
			}
			if session != "" {
				root, err := os.Getwd()
				if err != nil {
					return err
				}
				return runServeWithSession(cmd.Context(), session, root, transport, port)
			}
			return runServe(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio|sse)")
	cmd.Flags().IntVar(&port, "port", 8765, "Port for SSE transport")
	cmd.Flags().StringVar(&session, "session", "", "Named session to serve (overrides cwd project root)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level MCP logging (still file-only)")

	return cmd
}

// verifyStdinForMCP checks that stdin is a pipe rather than an interactive
// terminal. MCP clients always pipe JSON-RPC into stdin; a terminal means the
// user invoked the server directly, which is almost never what they want.
func verifyStdinForMCP() error {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat stdin: %w", err)
	}
	if (fi.Mode() & os.ModeCharDevice) != 0 {
		return fmt.Errorf("stdin is a terminal, not a pipe; contextfinder serve expects an MCP client piping JSON-RPC into stdin")
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("stdin is a terminal; contextfinder serve expects an MCP client piping JSON-RPC into stdin")
	}
	return nil
}

// runServe starts the MCP server rooted at the current project directory.
func runServe(ctx context.Context, transport string, port int) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return runServeWithSession(ctx, "", root, transport, port)
}

// runServeWithSession starts the MCP server rooted at projectPath. An empty
// sessionName serves the implicit (non-session) project.
func runServeWithSession(ctx context.Context, sessionName, projectPath, transport string, port int) error {
	// BUG-034/BUG-035: stdout is reserved for JSON-RPC once serving begins, so
	// all logging here is file-only, set up before anything else can write.
	cleanup, err := logging.SetupMCPMode()
	if err == nil {
		defer cleanup()
	}

	if sessionName != "" {
		slog.Info("serving named session", slog.String("session", sessionName), slog.String("root", projectPath))
	}

	dataDir := filepath.Join(projectPath, ".contextfinder")
	metadataPath := filepath.Join(dataDir, "metadata.db")

	cfg, err := config.Load(projectPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		return fmt.Errorf("failed to open BM25 index: %w", err)
	}
	defer func() { _ = bm25.Close() }()

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		slog.Warn("embedder init failed, falling back to static embeddings", slog.String("error", err.Error()))
		embedder = embed.NewStaticEmbedder768()
	}
	defer func() { _ = embedder.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() { _ = vector.Close() }()
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		_ = vector.Load(vectorPath)
	}

	engineCfg := search.DefaultConfig()
	if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		engineCfg.DefaultWeights = search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight}
	}
	engine := search.New(bm25, vector, embedder, metadata, engineCfg,
		search.WithMultiQuerySearch(search.NewPatternDecomposer()))

	server, err := mcp.NewServer(engine, metadata, embedder, cfg, projectPath)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	healthTracker := health.NewTracker(filepath.Join(dataDir, "health.json"))
	server.SetHealthTracker(healthTracker)
	server.SetReindexFunc(func(reindexCtx context.Context) error {
		return reindexProject(reindexCtx, projectPath, dataDir, cfg, metadata, bm25, embedder, vector, healthTracker)
	})

	// BUG-035: the file watcher must never block the handshake. Start it in
	// the background with a short default and an env-overridable timeout for
	// slow filesystems; a watcher that isn't ready yet just starts later.
	watcherTimeout := 2 * time.Second
	if v := os.Getenv("CONTEXTFINDER_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, parseErr := time.ParseDuration(v); parseErr == nil {
			watcherTimeout = d
		}
	}
	go startBackgroundWatcher(ctx, projectPath, watcherTimeout, healthTracker)

	return server.Serve(ctx, transport, fmt.Sprintf(":%d", port))
}

// startBackgroundWatcher initializes the file watcher off the request path.
// Its only job at this layer is to keep the health tracker's "pending
// watcher backlog" honest; reindexing on change is left to the daemon path.
func startBackgroundWatcher(ctx context.Context, root string, startupTimeout time.Duration, tracker *health.Tracker) {
	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	hw, err := watcher.NewHybridWatcher(watcher.Options{})
	if err != nil {
		slog.Warn("file watcher unavailable", slog.String("error", err.Error()))
		return
	}
	if err := hw.Start(initCtx, root); err != nil {
		slog.Warn("file watcher failed to start", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = hw.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-hw.Events():
			if !ok {
				return
			}
			slog.Debug("file watcher batch", slog.Int("events", len(batch)))
		case werr, ok := <-hw.Errors():
			if !ok {
				continue
			}
			slog.Warn("file watcher error", slog.String("error", werr.Error()))
		}
	}
}

// reindexProject runs a foreground re-index using already-open stores,
// wired as the MCP server's injectable index tool handler.
func reindexProject(ctx context.Context, root, dataDir string, cfg *config.Config, metadata store.MetadataStore, bm25 store.BM25Index, embedder embed.Embedder, vector store.VectorStore, tracker *health.Tracker) error {
	sqliteMeta, ok := metadata.(*store.SQLiteStore)
	if !ok {
		return fmt.Errorf("reindex requires a SQLite-backed metadata store")
	}

	start := time.Now()
	renderer := ui.NewRenderer(ui.NewConfig(io.Discard, ui.WithForcePlain(true)))
	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Metadata: sqliteMeta,
		BM25:     bm25,
		Vector:   vector,
		Embedder: embedder,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}
	defer func() { _ = runner.Close() }()

	result, err := runner.Run(ctx, index.RunnerConfig{RootDir: root, DataDir: dataDir})
	if tracker != nil {
		now := time.Now()
		if err != nil {
			tracker.RecordFailure(now, err.Error())
		} else {
			duration := time.Since(start)
			files := 0
			if result != nil {
				files = result.Files
			}
			filesPerSec := 0.0
			if duration.Seconds() > 0 {
				filesPerSec = float64(files) / duration.Seconds()
			}
			tracker.RecordSuccess(now, duration, filesPerSec, 0, 0, 0, 0)
		}
	}
	return err
}
