// ABOUTME: Shared-secret checks for wallet device requests
// ABOUTME: Strips the per-kind scheme prefix ("ApplePass", "AppleOrder") and compares in constant time

package auth

import (
	"crypto/subtle"
	"strings"
)

// SchemeToken returns the credential carried by an Authorization header
// after removing a leading "<scheme> " prefix, matched case-insensitively.
// A header without the prefix is returned trimmed.
func SchemeToken(header, scheme string) string {
	header = strings.TrimSpace(header)
	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		rest := header[len(scheme):]
		if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return header
}

// CheckSchemeToken reports whether header carries exactly secret. An empty
// secret or header never matches.
func CheckSchemeToken(header, scheme, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	token := SchemeToken(header, scheme)
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
