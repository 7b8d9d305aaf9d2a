// ABOUTME: Error values for manifest construction, key loading, and signing
// ABOUTME: Every signing failure is a fatal input error and is never retried

package signing

import (
	"errors"
)

// Manifest input errors
var (
	ErrEmptyName     = errors.New("empty file name")
	ErrInvalidName   = errors.New("invalid file name")
	ErrReservedName  = errors.New("reserved file name")
	ErrDuplicateFile = errors.New("duplicate file name")
)

// Credential errors
var (
	ErrBadPassphrase  = errors.New("incorrect private key passphrase")
	ErrNoPrivateKey   = errors.New("no private key found")
	ErrNoCertificate  = errors.New("no certificate found")
	ErrKeyMismatch    = errors.New("private key does not match certificate")
	ErrUnsupportedKey = errors.New("unsupported private key type")
)

// ErrSignatureInvalid is returned when a detached signature does not verify
// against the manifest bytes it is presented with.
var ErrSignatureInvalid = errors.New("signature does not verify")

// Error records the signing stage that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "signing: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
