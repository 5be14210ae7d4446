package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/contextfinder/contextfinder/internal/config"
	"github.com/contextfinder/contextfinder/internal/scanner"
)

// Watermark identifies the exact state of the source tree (plus the
// chunker config that shaped how it was cut) that produced a committed
// index. Two indices are mutually consistent iff their watermarks are
// equal; a loader that finds a stored watermark unequal to the one it
// just recomputed from the live tree must treat the index as stale.
type Watermark struct {
	SourceIndexMtimeMs int64  `json:"source_index_mtime_ms"`
	ContentDigest      string `json:"content_digest"`
}

// Equal reports whether w and other describe the same indexed state.
func (w Watermark) Equal(other Watermark) bool {
	return w.SourceIndexMtimeMs == other.SourceIndexMtimeMs && w.ContentDigest == other.ContentDigest
}

// ComputeWatermark derives the watermark for a scan result: the mtime
// component is the max of the chunker config's hash (reduced to an int64)
// and the newest included file's mtime in unix-ms, so a config-only change
// (no file touched) still moves the watermark. The content digest covers
// every file's path, size, and mtime so a same-millisecond edit (same
// mtime, different content) still changes the digest.
func ComputeWatermark(cfg *config.Config, files []*scanner.FileInfo) Watermark {
	configHash := chunkerConfigHash(cfg)
	sourceMs := chunkerConfigHashMs(configHash)

	sorted := make([]*scanner.FileInfo, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	h.Write([]byte(configHash))
	for _, f := range sorted {
		ms := f.ModTime.UnixMilli()
		if ms > sourceMs {
			sourceMs = ms
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.Path, f.Size, ms)
	}

	return Watermark{
		SourceIndexMtimeMs: sourceMs,
		ContentDigest:      hex.EncodeToString(h.Sum(nil)),
	}
}

// chunkerConfigHash hashes the config fields that change how files are cut
// into chunks; any other config field (server port, telemetry toggles, ...)
// must never perturb the watermark.
func chunkerConfigHash(cfg *config.Config) string {
	h := sha256.New()
	if cfg != nil {
		fmt.Fprintf(h, "chunk_size=%d\n", cfg.Search.ChunkSize)
		fmt.Fprintf(h, "include=%v\n", cfg.Paths.Include)
		fmt.Fprintf(h, "exclude=%v\n", cfg.Paths.Exclude)
		fmt.Fprintf(h, "contextual=%t\n", cfg.Contextual.Enabled)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// chunkerConfigHashMs reduces a hex digest to an int64 by reading its first
// 8 bytes big-endian and masking off the sign bit, so it behaves like a
// (very large, effectively never-colliding-with-a-real-mtime) timestamp for
// the max() in IndexWatermark's definition.
func chunkerConfigHashMs(hexDigest string) int64 {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil || len(raw) < 8 {
		return 0
	}
	v := binary.BigEndian.Uint64(raw[:8])
	return int64(v &^ (1 << 63))
}

// SaveWatermark writes w as pretty-printed JSON to WatermarkPath(root,
// modelID), atomically (write-to-temp then rename) so a reader never
// observes a half-written file.
func SaveWatermark(root, modelID string, w Watermark) error {
	path := WatermarkPath(root, modelID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("watermark: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("watermark: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("watermark: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("watermark: commit: %w", err)
	}
	return nil
}

// LoadWatermark reads the watermark previously saved for (root, modelID).
// ok is false (with a nil error) when no watermark has ever been committed,
// which the coordinator treats the same as "watermark missing" in its
// decide-scope step, forcing a full index.
func LoadWatermark(root, modelID string) (w Watermark, ok bool, err error) {
	data, err := os.ReadFile(WatermarkPath(root, modelID))
	if os.IsNotExist(err) {
		return Watermark{}, false, nil
	}
	if err != nil {
		return Watermark{}, false, fmt.Errorf("watermark: read: %w", err)
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Watermark{}, false, fmt.Errorf("watermark: decode: %w", err)
	}
	return w, true, nil
}
