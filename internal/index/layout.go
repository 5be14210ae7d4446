package index

import (
	"path/filepath"
	"strings"
)

// ContextDirName is the per-project data directory the coordinator owns
// exclusively: metadata store, BM25/vector indices, embedding cache, graph
// cache, and health/cursor snapshots all live under here.
const ContextDirName = ".context"

// ContextDir returns the root's data directory.
func ContextDir(root string) string {
	return filepath.Join(root, ContextDirName)
}

// IndexesDir is the parent of every per-model index manifest/watermark pair.
func IndexesDir(root string) string {
	return filepath.Join(ContextDir(root), "indexes")
}

// ModelDir returns the per-model directory holding index.json and
// watermark.json for the given (sanitized) model id.
func ModelDir(root, modelID string) string {
	return filepath.Join(IndexesDir(root), SanitizeModelID(modelID))
}

// IndexManifestPath is the path to a model's index.json manifest.
func IndexManifestPath(root, modelID string) string {
	return filepath.Join(ModelDir(root, modelID), "index.json")
}

// WatermarkPath is the path to a model's watermark.json.
func WatermarkPath(root, modelID string) string {
	return filepath.Join(ModelDir(root, modelID), "watermark.json")
}

// GraphCachePath is the path to the graph cache file for one language. The
// cache holds one graph per (language, chunk-set) pair, so a project with
// several languages gets several files underneath graph_cache/; a
// single-language project degenerates to the one file spec.md names.
func GraphCachePath(root, language string) string {
	if language == "" {
		language = "_"
	}
	return filepath.Join(ContextDir(root), "graph_cache", SanitizeModelID(language)+".json")
}

// HealthPath is the path to the doctor/health snapshot.
func HealthPath(root string) string {
	return filepath.Join(ContextDir(root), "health.json")
}

// CursorStorePath is the path to the persisted cursor-alias store.
func CursorStorePath(root string) string {
	return filepath.Join(ContextDir(root), "cursor_store.json")
}

// EmbeddingCacheDir is the root of the on-disk, content-addressed embedding
// cache: cache/embeddings/<mode>/<model>/<template_hash>/aa/bb/<dochash>.bin.
func EmbeddingCacheDir(root string) string {
	return filepath.Join(ContextDir(root), "cache", "embeddings")
}

// SanitizeModelID maps a model identifier to a filesystem-safe directory
// name: bytes outside [A-Za-z0-9._-] become '_', byte-for-byte, so two
// distinct model ids never collide into the same sanitized form by losing
// information the way a hash or truncation would.
func SanitizeModelID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
