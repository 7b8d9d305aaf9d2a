// ABOUTME: Bundle kinds (coupon passes and order-tracking bundles) and their wire constants
// ABOUTME: Each kind fixes its descriptor file, MIME type, extension, and auth scheme

package bundle

import (
	"fmt"
	"strings"
)

// Kind selects which wallet bundle flavor is produced.
type Kind string

const (
	KindPass  Kind = "pass"
	KindOrder Kind = "order"
)

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPass:
		return KindPass, nil
	case KindOrder:
		return KindOrder, nil
	default:
		return "", fmt.Errorf("unknown bundle kind %q", s)
	}
}

// DescriptorFile is the name of the JSON descriptor inside the bundle.
func (k Kind) DescriptorFile() string {
	if k == KindOrder {
		return "order.json"
	}
	return "pass.json"
}

// ContentType is the MIME type served for a bundle of this kind.
func (k Kind) ContentType() string {
	if k == KindOrder {
		return "application/vnd.apple.order"
	}
	return "application/vnd.apple.pkpass"
}

// Extension is the attachment file extension, including the dot.
func (k Kind) Extension() string {
	if k == KindOrder {
		return ".order"
	}
	return ".pkpass"
}

// AuthScheme is the Authorization header scheme wallet clients send.
func (k Kind) AuthScheme() string {
	if k == KindOrder {
		return "AppleOrder"
	}
	return "ApplePass"
}

// TypeIdentifierKey is the descriptor key holding the type identifier.
func (k Kind) TypeIdentifierKey() string {
	if k == KindOrder {
		return "orderTypeIdentifier"
	}
	return "passTypeIdentifier"
}

// Filename returns the attachment name for the bundle identified by key.
func (k Kind) Filename(key string) string {
	return key + k.Extension()
}
