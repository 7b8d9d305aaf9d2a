// ABOUTME: Zip packing and unpacking of signed bundles
// ABOUTME: Images are stored, everything else deflated; verification requires exact manifest coverage

package bundle

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/2389/wallet-gateway/internal/signing"
)

// Verification errors
var (
	ErrMissingManifest  = errors.New("bundle has no manifest.json")
	ErrMissingSignature = errors.New("bundle has no signature")
	ErrDigestMismatch   = errors.New("file digest does not match manifest")
	ErrUnlistedFile     = errors.New("file not listed in manifest")
	ErrMissingFile      = errors.New("manifest lists a file the bundle lacks")
)

// storedExtensions are already compressed; deflating them wastes CPU.
var storedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

func methodFor(name string) uint16 {
	if storedExtensions[strings.ToLower(path.Ext(name))] {
		return zip.Store
	}
	return zip.Deflate
}

// pack writes files, then the manifest, then the signature into a zip.
func pack(files []signing.File, manifest, signature []byte, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   methodFor(name),
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	for _, f := range files {
		if err := write(f.Name, f.Data); err != nil {
			return nil, err
		}
	}
	if err := write(signing.ManifestName, manifest); err != nil {
		return nil, err
	}
	if err := write(signing.SignatureName, signature); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Open unpacks a bundle archive into a name → bytes map.
func Open(archive []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", zf.Name, err)
		}
		files[zf.Name] = data
	}
	return files, nil
}

// VerifyContents checks that the manifest covers exactly the bundle files
// with matching digests and that the signature validates over the manifest
// bytes as packed. A nil roots skips chain building.
func VerifyContents(files map[string][]byte, roots *x509.CertPool) error {
	manifestBytes, ok := files[signing.ManifestName]
	if !ok {
		return ErrMissingManifest
	}
	sig, ok := files[signing.SignatureName]
	if !ok {
		return ErrMissingSignature
	}

	if err := signing.Verify(manifestBytes, sig, roots); err != nil {
		return err
	}

	manifest, err := signing.ParseManifest(manifestBytes)
	if err != nil {
		return err
	}

	for name, data := range files {
		if signing.IsReserved(name) {
			continue
		}
		want, listed := manifest[name]
		if !listed {
			return fmt.Errorf("%w: %s", ErrUnlistedFile, name)
		}
		if signing.Digest(data) != want {
			return fmt.Errorf("%w: %s", ErrDigestMismatch, name)
		}
	}
	for name := range manifest {
		if _, ok := files[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}
	return nil
}

// Verify opens and verifies a bundle archive.
func Verify(archive []byte, roots *x509.CertPool) error {
	files, err := Open(archive)
	if err != nil {
		return err
	}
	return VerifyContents(files, roots)
}
