// ABOUTME: Tests for credential loading and detached signature round-trips
// ABOUTME: Uses a generated certificate chain so no fixtures are checked in

package signing

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/smallstep/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/2389/wallet-gateway/internal/signing/signingtest"
)

func newTestSigner(t *testing.T) (*Signer, *signingtest.Chain) {
	t.Helper()
	chain := signingtest.NewChain(t)
	s, err := LoadPEM(chain.CertPEM, chain.KeyPEM, chain.IntermediatePEM, "")
	require.NoError(t, err)
	return s, chain
}

func TestSign_RoundTrip(t *testing.T) {
	s, chain := newTestSigner(t)

	_, manifest, err := BuildManifest([]File{{Name: "pass.json", Data: []byte(`{"a":1}`)}})
	require.NoError(t, err)

	sig, err := s.Sign(manifest)
	require.NoError(t, err)

	assert.NoError(t, Verify(manifest, sig, nil))
	assert.NoError(t, Verify(manifest, sig, chain.Roots), "embedded chain should lead to the root")
}

func TestSign_DetachedWithChain(t *testing.T) {
	s, chain := newTestSigner(t)

	manifest := []byte(`{"icon.png":"00"}`)
	sig, err := s.Sign(manifest)
	require.NoError(t, err)

	p7, err := pkcs7.Parse(sig)
	require.NoError(t, err)
	assert.Empty(t, p7.Content, "signature must not embed the manifest")

	var subjects []string
	for _, c := range p7.Certificates {
		subjects = append(subjects, c.Subject.CommonName)
	}
	assert.Contains(t, subjects, chain.Leaf.Subject.CommonName)
	assert.Contains(t, subjects, chain.Intermediate.Subject.CommonName)
}

func TestVerify_TamperedManifest(t *testing.T) {
	s, _ := newTestSigner(t)

	manifest := []byte(`{"pass.json":"abcd"}`)
	sig, err := s.Sign(manifest)
	require.NoError(t, err)

	tampered := append([]byte(nil), manifest...)
	tampered[len(tampered)-3] ^= 0x01

	err = Verify(tampered, sig, nil)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerify_UntrustedRoot(t *testing.T) {
	s, _ := newTestSigner(t)
	other := signingtest.NewChain(t)

	manifest := []byte(`{}`)
	sig, err := s.Sign(manifest)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(manifest, sig, other.Roots), ErrSignatureInvalid)
}

func TestSign_Concurrent(t *testing.T) {
	s, _ := newTestSigner(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manifest := []byte(`{"n":"` + string(rune('a'+i)) + `"}`)
			sig, err := s.Sign(manifest)
			if err == nil {
				err = Verify(manifest, sig, nil)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLoadPEM_EncryptedKey(t *testing.T) {
	chain := signingtest.NewChain(t)
	encrypted := chain.EncryptedKeyPEM(t, "correct horse")

	s, err := LoadPEM(chain.CertPEM, encrypted, chain.IntermediatePEM, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, chain.Leaf.SerialNumber, s.Certificate().SerialNumber)

	_, err = LoadPEM(chain.CertPEM, encrypted, chain.IntermediatePEM, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadPassphrase)

	var signErr *Error
	require.ErrorAs(t, err, &signErr)
	assert.Equal(t, "load private key", signErr.Op)
}

func TestLoadPEM_KeyMismatch(t *testing.T) {
	a := signingtest.NewChain(t)
	b := signingtest.NewChain(t)

	_, err := LoadPEM(a.CertPEM, b.KeyPEM, a.IntermediatePEM, "")
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestLoadPEM_MissingPieces(t *testing.T) {
	chain := signingtest.NewChain(t)

	_, err := LoadPEM(nil, chain.KeyPEM, chain.IntermediatePEM, "")
	assert.ErrorIs(t, err, ErrNoCertificate)

	_, err = LoadPEM(chain.CertPEM, chain.CertPEM, chain.IntermediatePEM, "")
	assert.ErrorIs(t, err, ErrNoPrivateKey)

	_, err = LoadPEM(chain.CertPEM, chain.KeyPEM, []byte("junk"), "")
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestLoadPEM_DERIntermediate(t *testing.T) {
	chain := signingtest.NewChain(t)

	s, err := LoadPEM(chain.CertPEM, chain.KeyPEM, chain.Intermediate.Raw, "")
	require.NoError(t, err)
	assert.Equal(t, chain.Intermediate.Subject.CommonName, s.Intermediate().Subject.CommonName)
}

func TestLoadFiles_CombinedPEM(t *testing.T) {
	chain := signingtest.NewChain(t)
	dir := t.TempDir()

	combined := append(append([]byte(nil), chain.CertPEM...), chain.KeyPEM...)
	certPath := filepath.Join(dir, "pass.pem")
	wwdrPath := filepath.Join(dir, "wwdr.pem")
	require.NoError(t, os.WriteFile(certPath, combined, 0600))
	require.NoError(t, os.WriteFile(wwdrPath, chain.IntermediatePEM, 0600))

	s, err := LoadFiles(Paths{Certificate: certPath, Intermediate: wwdrPath})
	require.NoError(t, err)
	assert.False(t, s.Expires().IsZero())
}

func TestLoadFiles_MissingIntermediate(t *testing.T) {
	_, err := LoadFiles(Paths{Certificate: "pass.pem"})
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestLoadPKCS12_Garbage(t *testing.T) {
	_, err := LoadPKCS12([]byte("not a pfx"), nil, "secret")
	require.Error(t, err)

	var signErr *Error
	require.ErrorAs(t, err, &signErr)
	assert.Equal(t, "load pkcs12", signErr.Op)
}

func TestLoadPEM_RSASignerVerifies(t *testing.T) {
	chain := signingtest.NewRSAChain(t)
	s, err := LoadPEM(chain.CertPEM, chain.KeyPEM, chain.IntermediatePEM, "")
	require.NoError(t, err)

	_, manifest, err := BuildManifest([]File{{Name: "pass.json", Data: []byte(`{"serialNumber":"r1"}`)}})
	require.NoError(t, err)
	sig, err := s.Sign(manifest)
	require.NoError(t, err)
	assert.NoError(t, Verify(manifest, sig, chain.Roots))
}

func TestLoadPEM_LegacyEncryptedKey(t *testing.T) {
	for _, tc := range []struct {
		name  string
		chain *signingtest.Chain
	}{
		{"rsa", signingtest.NewRSAChain(t)},
		{"ecdsa", signingtest.NewChain(t)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			legacy := tc.chain.LegacyEncryptedKeyPEM(t, "hunter2")

			s, err := LoadPEM(tc.chain.CertPEM, legacy, tc.chain.IntermediatePEM, "hunter2")
			require.NoError(t, err)
			assert.Equal(t, tc.chain.Leaf.SerialNumber, s.Certificate().SerialNumber)

			_, err = LoadPEM(tc.chain.CertPEM, legacy, tc.chain.IntermediatePEM, "wrong")
			assert.ErrorIs(t, err, ErrBadPassphrase)
		})
	}
}

// A wrong passphrase occasionally decrypts to bytes with valid padding; those
// must still report a bad passphrase rather than an unsupported key.
func TestLoadPEM_LegacyWrongPassphrasesAlwaysBad(t *testing.T) {
	chain := signingtest.NewRSAChain(t)
	legacy := chain.LegacyEncryptedKeyPEM(t, "hunter2")

	for i := 0; i < 1000; i++ {
		_, err := LoadPEM(chain.CertPEM, legacy, chain.IntermediatePEM, fmt.Sprintf("guess-%d", i))
		require.ErrorIs(t, err, ErrBadPassphrase, "passphrase guess-%d", i)
		require.NotErrorIs(t, err, ErrUnsupportedKey)
	}
}

func TestLoadPKCS12(t *testing.T) {
	encoders := []struct {
		name string
		enc  *pkcs12.Encoder
	}{
		{"modern", pkcs12.Modern},
		{"legacy", pkcs12.Legacy},
	}

	for _, e := range encoders {
		t.Run(e.name, func(t *testing.T) {
			chain := signingtest.NewRSAChain(t)
			p12, err := e.enc.Encode(chain.LeafKey, chain.Leaf, []*x509.Certificate{chain.Intermediate}, "secret")
			require.NoError(t, err)

			s, err := LoadPKCS12(p12, chain.IntermediatePEM, "secret")
			require.NoError(t, err)
			assert.Equal(t, chain.Leaf.SerialNumber, s.Certificate().SerialNumber)

			s, err = LoadPKCS12(p12, nil, "secret")
			require.NoError(t, err, "the bundled CA serves as intermediate")
			assert.Equal(t, chain.Intermediate.Subject.CommonName, s.Intermediate().Subject.CommonName)

			_, manifest, err := BuildManifest([]File{{Name: "pass.json", Data: []byte(`{}`)}})
			require.NoError(t, err)
			sig, err := s.Sign(manifest)
			require.NoError(t, err)
			assert.NoError(t, Verify(manifest, sig, chain.Roots))

			_, err = LoadPKCS12(p12, chain.IntermediatePEM, "wrong")
			assert.ErrorIs(t, err, ErrBadPassphrase)
		})
	}
}

func TestLoadPKCS12_NoIntermediate(t *testing.T) {
	chain := signingtest.NewChain(t)
	p12, err := pkcs12.Modern.Encode(chain.LeafKey, chain.Leaf, nil, "secret")
	require.NoError(t, err)

	_, err = LoadPKCS12(p12, nil, "secret")
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestLoadFiles_PKCS12(t *testing.T) {
	chain := signingtest.NewChain(t)
	dir := t.TempDir()

	p12, err := pkcs12.Modern.Encode(chain.LeafKey, chain.Leaf, nil, "secret")
	require.NoError(t, err)
	p12Path := filepath.Join(dir, "pass.p12")
	wwdrPath := filepath.Join(dir, "wwdr.pem")
	require.NoError(t, os.WriteFile(p12Path, p12, 0600))
	require.NoError(t, os.WriteFile(wwdrPath, chain.IntermediatePEM, 0600))

	s, err := LoadFiles(Paths{PKCS12: p12Path, Intermediate: wwdrPath, Passphrase: "secret"})
	require.NoError(t, err)
	assert.Equal(t, chain.Leaf.SerialNumber, s.Certificate().SerialNumber)
}
