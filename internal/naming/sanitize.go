// Package naming resolves clip names from custom name rules and expands
// filename templates.
package naming

import (
	"strings"
	"unicode"
)

// DefaultClipName is used when a candidate sanitizes to nothing.
const DefaultClipName = "Replay"

// SanitizeClipName removes characters that are not allowed in a clip name
// and control characters. Case is preserved.
func SanitizeClipName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) || strings.ContainsRune(forbiddenNameChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
