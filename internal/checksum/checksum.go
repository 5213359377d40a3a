// Package checksum derives memo body versions used for optimistic locking.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Of returns the hex-encoded SHA-256 digest of a memo body.
func Of(body string) string {
	h := sha256.Sum256([]byte(body))
	return hex.EncodeToString(h[:])
}

// ETag formats the checksum of body as a strong entity tag.
func ETag(body string) string {
	return `"` + Of(body) + `"`
}

// ParseIfMatch extracts the checksum from an If-Match header value. Weak tags
// and missing quotes are accepted; "*" and an empty value yield "".
func ParseIfMatch(header string) string {
	v := strings.TrimSpace(header)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	if v == "*" {
		return ""
	}
	return v
}

// Matches reports whether body still has the checksum want.
func Matches(body, want string) bool {
	return Of(body) == want
}
