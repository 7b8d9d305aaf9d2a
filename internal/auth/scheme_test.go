// ABOUTME: Tests for scheme-prefixed shared-secret checks
// ABOUTME: Wrong tokens fail against secret "abc"; the right token passes with any prefix casing

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemeToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"ApplePass abc", "abc"},
		{"applepass   abc ", "abc"},
		{"APPLEPASS\tabc", "abc"},
		{"abc", "abc"},
		{"ApplePassabc", "ApplePassabc"},
		{"AppleOrder abc", "AppleOrder abc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SchemeToken(tt.header, "ApplePass"), "header %q", tt.header)
	}
}

func TestCheckSchemeToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		scheme string
		secret string
		want   bool
	}{
		{"correct pass token", "ApplePass abc", "ApplePass", "abc", true},
		{"correct order token", "AppleOrder abc", "AppleOrder", "abc", true},
		{"wrong token", "ApplePass abd", "ApplePass", "abc", false},
		{"prefix of secret", "ApplePass ab", "ApplePass", "abc", false},
		{"secret plus suffix", "ApplePass abcd", "ApplePass", "abc", false},
		{"other kind's scheme", "AppleOrder abc", "ApplePass", "abc", false},
		{"missing header", "", "ApplePass", "abc", false},
		{"scheme only", "ApplePass ", "ApplePass", "abc", false},
		{"unconfigured secret", "ApplePass ", "ApplePass", "", false},
		{"case-sensitive token", "ApplePass ABC", "ApplePass", "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckSchemeToken(tt.header, tt.scheme, tt.secret))
		})
	}
}
