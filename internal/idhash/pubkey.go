// Package idhash derives privacy-preserving identifiers for trading pubkeys.
// Raw pubkeys never cross the process boundary; every external surface works
// with the hashes produced here.
package idhash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher computes deterministic one-way pubkey hashes. With a secret it uses
// HMAC-SHA256; with an empty secret it falls back to plain SHA-256. Same
// input and same key always produce the same output, so hashes can be used
// as lookup keys without storing the mapping anywhere.
type Hasher struct {
	key []byte
}

// New creates a Hasher with the given secret. An empty secret selects the
// plain SHA-256 fallback; callers should warn at startup when that happens.
func New(secret string) *Hasher {
	return &Hasher{key: []byte(secret)}
}

// Keyed reports whether HMAC hashing is in effect.
func (h *Hasher) Keyed() bool {
	return len(h.key) > 0
}

// Hash returns the hex identifier for a raw pubkey (64 characters).
func (h *Hasher) Hash(pubkey string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(pubkey))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(pubkey))
	return hex.EncodeToString(mac.Sum(nil))
}
