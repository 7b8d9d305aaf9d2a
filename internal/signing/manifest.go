// ABOUTME: Manifest construction: one SHA-256 hex digest per bundle file
// ABOUTME: Serialized with sorted keys so identical inputs give identical bytes

package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Reserved entry names written by the signing step itself.
const (
	ManifestName  = "manifest.json"
	SignatureName = "signature"
)

// File is a single named entry of a bundle.
type File struct {
	Name string
	Data []byte
}

// Manifest maps a file name to the lowercase hex SHA-256 of its contents.
type Manifest map[string]string

// Digest returns the manifest digest for data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsReserved reports whether name collides with an entry the signer writes.
// The comparison ignores case because wallet clients unpack onto
// case-insensitive filesystems.
func IsReserved(name string) bool {
	return strings.EqualFold(name, ManifestName) || strings.EqualFold(name, SignatureName)
}

// ValidateName rejects names that cannot be packed as a bundle entry.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") || path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if IsReserved(name) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

// BuildManifest hashes every file and returns the manifest together with its
// canonical serialization. The serialized bytes are what gets signed.
func BuildManifest(files []File) (Manifest, []byte, error) {
	m := make(Manifest, len(files))
	for _, f := range files {
		if err := ValidateName(f.Name); err != nil {
			return nil, nil, err
		}
		if _, dup := m[f.Name]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateFile, f.Name)
		}
		m[f.Name] = Digest(f.Data)
	}

	data, err := m.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return m, data, nil
}

// Bytes serializes the manifest. encoding/json emits map keys in sorted
// order, which makes the output stable.
func (m Manifest) Bytes() ([]byte, error) {
	data, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

// ParseManifest decodes manifest bytes read back from a bundle.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}
