// Package etag derives opaque version tokens from the version counters stored
// on every row. Callers echo a token back as a write precondition; the engine
// compares tokens, never raw versions, so the representation can change
// without breaking clients.
package etag

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// FromVersion encodes a row version counter as an opaque token.
func FromVersion(version int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(version, 10)))
}

// ParseVersion decodes a token produced by FromVersion.
func ParseVersion(tag string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil {
		return 0, fmt.Errorf("malformed version token: %w", err)
	}
	version, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed version token: %w", err)
	}
	return version, nil
}

// Match reports whether an expected token matches the current one. An empty
// expected token is "no precondition" and always matches.
func Match(expected, current string) bool {
	return expected == "" || expected == current
}

// Item is one (domain_id, version) pair contributing to a collection token.
type Item struct {
	DomainID string
	Version  int64
}

// Collection derives a scope-wide token from the items in list order. Any
// insert, delete or version bump anywhere in the scope changes the token.
func Collection(items []Item) string {
	h := sha256.New()
	var buf [8]byte
	for _, item := range items {
		h.Write([]byte(item.DomainID))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(item.Version))
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}

// Normalize strips the quoting an HTTP If-Match header may carry.
func Normalize(header string) string {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "W/")
	return strings.Trim(header, `"`)
}
