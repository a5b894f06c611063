package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// normalizeToken lowercases and strips whitespace so cache namespaces and
// identities compare consistently.
func normalizeToken(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// hashToken digests free-form cache keys so user-supplied values (emails,
// opaque tokens) never appear verbatim in Redis keyspace.
func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func normalizeAuthIdentity(identity string) string {
	return normalizeToken(identity)
}
