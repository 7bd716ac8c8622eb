package clean

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash computes the exact-dedup fingerprint: SHA-256 over
// lower(strip_ws(title)) + "\n" + strip_ws(content), hex-encoded. It is
// invariant under leading/trailing whitespace and title case changes.
func ContentHash(title, content string) string {
	normalizedTitle := strings.ToLower(strings.TrimSpace(title))
	normalizedContent := strings.TrimSpace(content)
	sum := sha256.Sum256([]byte(normalizedTitle + "\n" + normalizedContent))
	return hex.EncodeToString(sum[:])
}
