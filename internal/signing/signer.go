// ABOUTME: Detached PKCS#7 signing of manifest bytes with an embedded cert chain
// ABOUTME: Key material is parsed once and read-only, so Sign is safe to call concurrently

package signing

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/smallstep/pkcs7"
)

// Signer produces detached signatures over bundle manifests.
type Signer struct {
	cert         *x509.Certificate
	key          crypto.Signer
	intermediate *x509.Certificate
}

// NewSigner checks that key belongs to cert and returns a Signer that embeds
// both cert and intermediate in every signature it produces.
func NewSigner(cert *x509.Certificate, key crypto.Signer, intermediate *x509.Certificate) (*Signer, error) {
	if cert == nil || intermediate == nil {
		return nil, &Error{Op: "new signer", Err: ErrNoCertificate}
	}
	if key == nil {
		return nil, &Error{Op: "new signer", Err: ErrNoPrivateKey}
	}
	if !publicKeyMatches(key, cert) {
		return nil, &Error{Op: "new signer", Err: ErrKeyMismatch}
	}
	return &Signer{cert: cert, key: key, intermediate: intermediate}, nil
}

// Certificate returns the signer certificate.
func (s *Signer) Certificate() *x509.Certificate {
	return s.cert
}

// Intermediate returns the intermediate authority certificate.
func (s *Signer) Intermediate() *x509.Certificate {
	return s.intermediate
}

// Expires returns the end of the signer certificate's validity window.
func (s *Signer) Expires() time.Time {
	return s.cert.NotAfter
}

// Sign returns a DER-encoded detached SignedData over manifest. The content
// itself is not embedded; verifiers must supply the manifest bytes.
func (s *Signer) Sign(manifest []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, &Error{Op: "sign", Err: fmt.Errorf("initializing signed data: %w", err)}
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	parents := []*x509.Certificate{s.intermediate}
	if err := sd.AddSignerChain(s.cert, s.key, parents, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, &Error{Op: "sign", Err: fmt.Errorf("adding signer: %w", err)}
	}
	sd.Detach()

	der, err := sd.Finish()
	if err != nil {
		return nil, &Error{Op: "sign", Err: fmt.Errorf("encoding signed data: %w", err)}
	}
	return der, nil
}

// Verify checks a detached signature against manifest. When roots is
// non-nil the embedded chain must also lead to one of them.
func Verify(manifest, signature []byte, roots *x509.CertPool) error {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return &Error{Op: "verify", Err: fmt.Errorf("parsing signature: %w", err)}
	}
	p7.Content = manifest

	if roots != nil {
		err = p7.VerifyWithChain(roots)
	} else {
		err = p7.Verify()
	}
	if err != nil {
		return &Error{Op: "verify", Err: fmt.Errorf("%w: %v", ErrSignatureInvalid, err)}
	}
	return nil
}
