// ABOUTME: Loading of signing credentials from PEM, encrypted PKCS#8 and PKCS#12
// ABOUTME: A wrong passphrase surfaces as ErrBadPassphrase and is never retried

package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"
)

// Paths locates signing credentials on disk. Either Certificate (with an
// optional separate PrivateKey) or PKCS12 must be set.
type Paths struct {
	Certificate  string
	PrivateKey   string
	PKCS12       string
	Intermediate string
	Passphrase   string
}

// LoadFiles reads credentials from disk and returns a ready Signer.
func LoadFiles(p Paths) (*Signer, error) {
	if p.Intermediate == "" {
		return nil, &Error{Op: "load intermediate", Err: ErrNoCertificate}
	}
	intermediate, err := os.ReadFile(p.Intermediate)
	if err != nil {
		return nil, &Error{Op: "load intermediate", Err: err}
	}

	if p.PKCS12 != "" {
		data, err := os.ReadFile(p.PKCS12)
		if err != nil {
			return nil, &Error{Op: "load pkcs12", Err: err}
		}
		return LoadPKCS12(data, intermediate, p.Passphrase)
	}

	if p.Certificate == "" {
		return nil, &Error{Op: "load certificate", Err: ErrNoCertificate}
	}
	certPEM, err := os.ReadFile(p.Certificate)
	if err != nil {
		return nil, &Error{Op: "load certificate", Err: err}
	}

	// A combined PEM file carries the key next to the certificate.
	keyPEM := certPEM
	if p.PrivateKey != "" {
		keyPEM, err = os.ReadFile(p.PrivateKey)
		if err != nil {
			return nil, &Error{Op: "load private key", Err: err}
		}
	}

	return LoadPEM(certPEM, keyPEM, intermediate, p.Passphrase)
}

// LoadPEM parses a signer certificate, its private key and the intermediate
// authority certificate. The intermediate may be PEM or raw DER, since the
// authority publishes it as a .cer file.
func LoadPEM(certPEM, keyPEM, intermediatePEM []byte, passphrase string) (*Signer, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, &Error{Op: "load certificate", Err: err}
	}

	key, err := parsePrivateKey(keyPEM, passphrase)
	if err != nil {
		return nil, &Error{Op: "load private key", Err: err}
	}

	intermediate, err := parseCertificate(intermediatePEM)
	if err != nil {
		return nil, &Error{Op: "load intermediate", Err: err}
	}

	return NewSigner(cert, key, intermediate)
}

// LoadPKCS12 parses a .p12 export holding the signer certificate and key.
// Both the modern PBES2/AES encoding and the legacy RC2/3DES one are read.
// If intermediatePEM is empty, the first bundled CA certificate is used as
// the intermediate.
func LoadPKCS12(p12, intermediatePEM []byte, passphrase string) (*Signer, error) {
	rawKey, leaf, caCerts, err := pkcs12.DecodeChain(p12, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, &Error{Op: "load pkcs12", Err: ErrBadPassphrase}
		}
		return nil, &Error{Op: "load pkcs12", Err: err}
	}

	key, err := asSigner(rawKey)
	if err != nil {
		return nil, &Error{Op: "load pkcs12", Err: err}
	}

	// Some exporters put the CA ahead of the leaf.
	if leaf == nil || !publicKeyMatches(key, leaf) {
		for i, cert := range caCerts {
			if publicKeyMatches(key, cert) {
				if leaf != nil {
					caCerts[i] = leaf
				} else {
					caCerts = append(caCerts[:i], caCerts[i+1:]...)
				}
				leaf = cert
				break
			}
		}
	}
	if leaf == nil || !publicKeyMatches(key, leaf) {
		return nil, &Error{Op: "load pkcs12", Err: ErrKeyMismatch}
	}

	var intermediate *x509.Certificate
	switch {
	case len(intermediatePEM) > 0:
		intermediate, err = parseCertificate(intermediatePEM)
		if err != nil {
			return nil, &Error{Op: "load intermediate", Err: err}
		}
	case len(caCerts) > 0:
		intermediate = caCerts[0]
	default:
		return nil, &Error{Op: "load intermediate", Err: ErrNoCertificate}
	}

	return NewSigner(leaf, key, intermediate)
}

// parseCertificate returns the first certificate in data, accepting either
// PEM or a bare DER encoding.
func parseCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing certificate: %w", err)
			}
			return cert, nil
		}
	}

	if len(data) > 0 {
		if cert, err := x509.ParseCertificate(data); err == nil {
			return cert, nil
		}
	}
	return nil, ErrNoCertificate
}

// parsePrivateKey finds the first private key block in data, decrypting it
// with passphrase when the block is encrypted.
func parsePrivateKey(data []byte, passphrase string) (crypto.Signer, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoPrivateKey
		}

		switch {
		case block.Type == "ENCRYPTED PRIVATE KEY":
			key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
			}
			return asSigner(key)
		//nolint:staticcheck // legacy OpenSSL encrypted PEM is still what many exports produce
		case x509.IsEncryptedPEMBlock(block):
			der, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
			}
			// The padding check lets a small share of wrong passphrases
			// through; the garbage then fails to parse.
			key, err := parseKeyDER(der)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPassphrase, err)
			}
			return key, nil
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			return parseKeyDER(block.Bytes)
		}
	}
}

// parseKeyDER tries the PKCS#8, PKCS#1 and SEC 1 encodings in turn.
func parseKeyDER(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return asSigner(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unrecognized encoding", ErrUnsupportedKey)
}

func asSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

func publicKeyMatches(key crypto.Signer, cert *x509.Certificate) bool {
	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	return ok && pub.Equal(cert.PublicKey)
}
