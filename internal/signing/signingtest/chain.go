// ABOUTME: Throwaway certificate chains for tests that need real signatures
// ABOUTME: Builds root CA -> intermediate authority -> signer certificate at test time

// Package signingtest generates signing credentials for tests.
package signingtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/youmark/pkcs8"
)

// Chain is a three-level certificate chain with PEM encodings ready to feed
// into the signing loaders.
type Chain struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Leaf         *x509.Certificate
	LeafKey      crypto.Signer

	CertPEM         []byte
	KeyPEM          []byte
	IntermediatePEM []byte
	Roots           *x509.CertPool
}

// NewChain creates a fresh chain valid from an hour ago for one day. Every
// key is ECDSA P-256.
func NewChain(tb testing.TB) *Chain {
	tb.Helper()
	return newChain(tb, newKey(tb))
}

// NewRSAChain is NewChain with an RSA-2048 signer key, as real pass type
// certificates carry.
func NewRSAChain(tb testing.TB) *Chain {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("generating rsa key: %v", err)
	}
	return newChain(tb, key)
}

func newChain(tb testing.TB, leafKey crypto.Signer) *Chain {
	tb.Helper()

	rootKey := newKey(tb)
	root := issue(tb, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}, nil, rootKey, rootKey)

	interKey := newKey(tb)
	inter := issue(tb, &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Test Worldwide Developer Relations"},
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}, root, interKey, rootKey)

	leaf := issue(tb, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.com.example.test", OrganizationalUnit: []string{"ABCDE12345"}},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}, inter, leafKey, interKey)

	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		tb.Fatalf("marshaling leaf key: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	return &Chain{
		Root:            root,
		Intermediate:    inter,
		Leaf:            leaf,
		LeafKey:         leafKey,
		CertPEM:         pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leaf.Raw}),
		KeyPEM:          pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		IntermediatePEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: inter.Raw}),
		Roots:           roots,
	}
}

// LegacyEncryptedKeyPEM returns the leaf key in its traditional encoding
// (PKCS#1 or SEC 1) wrapped in an OpenSSL "Proc-Type: 4,ENCRYPTED" block.
func (c *Chain) LegacyEncryptedKeyPEM(tb testing.TB, passphrase string) []byte {
	tb.Helper()

	var blockType string
	var der []byte
	switch k := c.LeafKey.(type) {
	case *rsa.PrivateKey:
		blockType, der = "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(k)
	case *ecdsa.PrivateKey:
		var err error
		der, err = x509.MarshalECPrivateKey(k)
		if err != nil {
			tb.Fatalf("marshaling leaf key: %v", err)
		}
		blockType = "EC PRIVATE KEY"
	default:
		tb.Fatalf("unsupported leaf key %T", c.LeafKey)
	}

	//nolint:staticcheck // the legacy format is what the loader must still read
	block, err := x509.EncryptPEMBlock(rand.Reader, blockType, der, []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		tb.Fatalf("encrypting leaf key: %v", err)
	}
	return pem.EncodeToMemory(block)
}

// EncryptedKeyPEM returns the leaf key as a passphrase-protected PKCS#8 block.
func (c *Chain) EncryptedKeyPEM(tb testing.TB, passphrase string) []byte {
	tb.Helper()

	der, err := pkcs8.ConvertPrivateKeyToPKCS8(c.LeafKey, []byte(passphrase))
	if err != nil {
		tb.Fatalf("encrypting leaf key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})
}

func newKey(tb testing.TB) *ecdsa.PrivateKey {
	tb.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generating key: %v", err)
	}
	return key
}

func issue(tb testing.TB, tmpl, parent *x509.Certificate, key, parentKey crypto.Signer) *x509.Certificate {
	tb.Helper()

	tmpl.NotBefore = time.Now().Add(-time.Hour)
	tmpl.NotAfter = time.Now().Add(24 * time.Hour)
	if parent == nil {
		parent = tmpl
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, key.Public(), parentKey)
	if err != nil {
		tb.Fatalf("creating certificate %q: %v", tmpl.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parsing certificate %q: %v", tmpl.Subject.CommonName, err)
	}
	return cert
}
