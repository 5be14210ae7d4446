package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"

	gochunk "github.com/contextfinder/contextfinder/internal/chunk"
	"github.com/contextfinder/contextfinder/internal/graph"
	"github.com/contextfinder/contextfinder/internal/index"
	"github.com/contextfinder/contextfinder/internal/store"
)

// graphLoader builds a per-language symbol graph assembler for the
// server's project root, lazily and once per language: the query intent
// calls it on every hit, so a miss must not re-walk the whole metadata
// store on every request.
type graphLoader struct {
	metadata store.MetadataStore
	root     string

	mu    sync.Mutex
	cache map[string]*graph.Assembler // language -> assembler, nil means "tried, nothing to build"
	built bool
}

func newGraphLoader(metadata store.MetadataStore, root string) *graphLoader {
	return &graphLoader{metadata: metadata, root: root, cache: make(map[string]*graph.Assembler)}
}

// forLanguage returns the cached assembler for language, building the
// graph for every language present in the project on first call. A nil
// return means either the project has no chunks of that language yet, or
// the metadata store could not be read — the caller degrades to
// primary-only results either way (C7's "related may be empty" clause).
func (l *graphLoader) forLanguage(language string) *graph.Assembler {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.built {
		l.buildAllLocked()
		l.built = true
	}
	return l.cache[language]
}

// invalidate drops the cached graphs so the next query rebuilds from the
// metadata store. Called after a reindex completes.
func (l *graphLoader) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.built = false
	l.cache = make(map[string]*graph.Assembler)
}

func (l *graphLoader) buildAllLocked() {
	ctx := context.Background()
	projectID := index.ProjectID(l.root)

	files, err := l.metadata.GetFilesForReconciliation(ctx, projectID)
	if err != nil {
		slog.Warn("graph loader: list files failed", slog.String("error", err.Error()))
		return
	}

	chunksByLang := make(map[string][]*gochunk.Chunk)
	for _, f := range files {
		storeChunks, err := l.metadata.GetChunksByFile(ctx, f.ID)
		if err != nil {
			slog.Warn("graph loader: load chunks failed", slog.String("file", f.Path), slog.String("error", err.Error()))
			continue
		}
		for _, sc := range storeChunks {
			c := storeChunkToChunk(sc)
			chunksByLang[c.Language] = append(chunksByLang[c.Language], c)
		}
	}

	for language, chunks := range chunksByLang {
		if len(chunks) == 0 {
			continue
		}
		l.cache[language] = graph.NewAssembler(l.loadOrBuild(language, chunks), chunks)
	}
}

// loadOrBuild tries the on-disk graph cache before paying for a fresh
// graph.Build: the cache key is the chunk set's content (sorted ids, since
// the graph's shape depends only on which chunks exist, not on which
// embedding model indexed them), and validChunkIDs lets Load force a
// rebuild if any referenced chunk has since disappeared.
func (l *graphLoader) loadOrBuild(language string, chunks []*gochunk.Chunk) *graph.Graph {
	path := index.GraphCachePath(l.root, language)
	key := chunkSetKey(chunks)
	validIDs := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		validIDs[c.ID] = true
	}

	if g, ok, err := graph.Load(path, key, validIDs); err != nil {
		slog.Warn("graph loader: cache load failed", slog.String("language", language), slog.String("error", err.Error()))
	} else if ok {
		return g
	}

	g := graph.Build(language, chunks)
	if err := g.Save(path, key); err != nil {
		slog.Warn("graph loader: cache save failed", slog.String("language", language), slog.String("error", err.Error()))
	}
	return g
}

// chunkSetKey hashes every chunk id, sorted, into the cache key graph.Load
// compares against the stored file's key.
func chunkSetKey(chunks []*gochunk.Chunk) string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// storeChunkToChunk converts a persisted store.Chunk (read back from the
// metadata store) into the chunk.Chunk shape graph.Build expects —
// the inverse of index.convertChunkToStore.
func storeChunkToChunk(c *store.Chunk) *gochunk.Chunk {
	symbols := make([]*gochunk.Symbol, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols = append(symbols, &gochunk.Symbol{
			Name:       s.Name,
			Type:       gochunk.SymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			Signature:  s.Signature,
			DocComment: s.DocComment,
		})
	}
	return &gochunk.Chunk{
		ID:          c.ID,
		FilePath:    c.FilePath,
		Content:     c.Content,
		RawContent:  c.RawContent,
		Context:     c.Context,
		ContentType: gochunk.ContentType(c.ContentType),
		Language:    c.Language,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Symbols:     symbols,
		Metadata:    c.Metadata,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
