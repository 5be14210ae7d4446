package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contextfinder/contextfinder/internal/store"
)

// IndexManifest is index.json: the coordinator-owned summary of a committed
// per-model index, separate from the vector store's own on-disk format
// (HNSWStore persists its graph/vectors under the teacher's original
// data-directory files; this manifest is the spec-named artifact a reader
// checks before trusting those files are current).
type IndexManifest struct {
	SchemaVersion int       `json:"schema_version"`
	Dimension     int       `json:"dimension"`
	IDMap         []string  `json:"id_map"`
	StoredChunks  int       `json:"stored_chunks"`
	Watermark     Watermark `json:"watermark"`
}

// SaveIndexManifest writes m as pretty-printed JSON to
// IndexManifestPath(root, modelID), atomically.
func SaveIndexManifest(root, modelID string, m IndexManifest) error {
	path := IndexManifestPath(root, modelID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("index manifest: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("index manifest: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("index manifest: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index manifest: commit: %w", err)
	}
	return nil
}

// LoadIndexManifest reads the manifest previously saved for (root, modelID).
func LoadIndexManifest(root, modelID string) (m IndexManifest, ok bool, err error) {
	data, readErr := os.ReadFile(IndexManifestPath(root, modelID))
	if os.IsNotExist(readErr) {
		return IndexManifest{}, false, nil
	}
	if readErr != nil {
		return IndexManifest{}, false, fmt.Errorf("index manifest: read: %w", readErr)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return IndexManifest{}, false, fmt.Errorf("index manifest: decode: %w", err)
	}
	return m, true, nil
}

// currentSchemaVersion mirrors store.CurrentSchemaVersion so a manifest and
// the metadata store it describes are always stamped with the same value.
func currentSchemaVersion() int {
	return store.CurrentSchemaVersion
}
