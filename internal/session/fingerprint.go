package session

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Fingerprint derives a short, stable identifier for a resolved project
// root. It never appears as a reversible encoding of the path itself —
// error payloads are required to carry fingerprints, never raw paths — so
// this is a truncated hash rather than anything the path can be recovered
// from.
func Fingerprint(root string) string {
	clean := filepath.Clean(root)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])[:16]
}
