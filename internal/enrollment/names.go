package enrollment

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanName normalizes a display name: NFC form, trimmed, single spaces.
func CleanName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// CleanIdentity trims an identity key and rejects embedded whitespace or
// path separators, since keys end up in blob paths.
func CleanIdentity(identity string) (string, bool) {
	identity = strings.TrimSpace(identity)
	if identity == "" || strings.ContainsAny(identity, " \t\n/\\") || strings.Contains(identity, "..") {
		return "", false
	}
	return identity, true
}
