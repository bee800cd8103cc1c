// Package sha256 names crawl artifacts by SHA-256 digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct {
	size int
}

// New returns a hasher emitting the first size hex characters of the digest.
// A size of zero or above 64 keeps the full digest.
func New(size int) *Hasher {
	if size <= 0 || size > sha256.Size*2 {
		size = sha256.Size * 2
	}
	return &Hasher{size: size}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:h.size], nil
}
