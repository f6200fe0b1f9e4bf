// Package sha256 derives content-addressed identity keys for disclosures that
// arrive without a dedicated identifier.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix marks keys derived from content rather than a source identifier.
const Prefix = "sha256:"

// Hasher implements disclosure.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key joins the canonical fields with "|" and returns the prefixed hex digest.
func (Hasher) Key(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return Prefix + hex.EncodeToString(sum[:])
}
