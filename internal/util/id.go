package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	return Entropy(12)
}

// Entropy returns n random bytes as a hex string. Post IDs combine a
// millisecond timestamp with a short suffix from here.
func Entropy(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
