package store

import "strings"

// NormalizeName canonicalizes a free-text name for lookup and
// fingerprinting: lowercase, trimmed, with interior whitespace collapsed.
func NormalizeName(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}
