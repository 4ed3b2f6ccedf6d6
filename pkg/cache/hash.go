package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key derives a cache key from a prefix and a sequence of typed parts
// (format tags, dimensions, color hints). Parts are joined with an unlikely
// delimiter and hashed, so keys stay fixed-length regardless of payload.
func Key(prefix string, parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprint(&b, p)
	}
	return prefix + ":" + Hash([]byte(b.String()))
}

// Hash computes the SHA-256 hash of data as a 64-character hex string.
// Used both for cache keys and for content-identity of displayable data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
