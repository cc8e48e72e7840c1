// Package signature implements the webhook handshake check: the platform signs
// (token, timestamp, nonce) by sorting, concatenating and hashing with SHA-1.
package signature

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign returns the lowercase hex SHA-1 of the lexicographically sorted,
// concatenated token, timestamp and nonce.
func Sign(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether signature matches Sign(token, timestamp, nonce).
// Callers must reject empty inputs before calling.
func Verify(token, timestamp, nonce, signature string) bool {
	expected := Sign(token, timestamp, nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
