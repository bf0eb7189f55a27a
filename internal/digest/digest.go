// Package digest provides the one-way hashing used for content
// deduplication and API-key lookup.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum for string input. Used for content hashes and for
// storing/looking up API keys without keeping the plaintext.
func SumString(s string) string {
	return Sum([]byte(s))
}
