// Package sha256 provides the content hashing used for deduplication and
// change detection across all raw records.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// stableIDLen truncates URL hashes to 64 bits of entropy, which is
// collision-free in practice for corpora well under a billion records.
const stableIDLen = 16

// Hasher computes hex SHA-256 digests over raw text fields.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the full hex digest of the input text.
func (h *Hasher) Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StableID derives a short deterministic identifier from a URL. The URL is
// trimmed and lowercased before hashing so trivial spelling variants map to
// the same id.
func (h *Hasher) StableID(url string) string {
	normalized := strings.ToLower(strings.TrimSpace(url))
	return h.Hash(normalized)[:stableIDLen]
}
