// ABOUTME: Signed "save to wallet" links for the second wallet platform
// ABOUTME: RS256 JWT over the object/class references, signed with a service account key

package savelink

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// URLPrefix is prepended to the signed token.
const URLPrefix = "https://pay.google.com/gp/v/save/"

// SaveType names the payload collection the saved object belongs to.
type SaveType string

const (
	GenericObjects SaveType = "genericObjects"
	OfferObjects   SaveType = "offerObjects"
)

// ParseSaveType validates a save type string.
func ParseSaveType(s string) (SaveType, error) {
	switch SaveType(s) {
	case GenericObjects, OfferObjects:
		return SaveType(s), nil
	default:
		return "", fmt.Errorf("unknown save type %q", s)
	}
}

// Credentials are the fields used from a service account key file.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ParseCredentials decodes a service account JSON key.
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing service account: %w", err)
	}
	if c.ClientEmail == "" || c.PrivateKey == "" {
		return nil, errors.New("service account needs client_email and private_key")
	}
	return &c, nil
}

// LoadCredentials reads a service account JSON key file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service account: %w", err)
	}
	return ParseCredentials(data)
}

// Issuer signs save links for one issuer account.
type Issuer struct {
	issuerID string
	email    string
	key      *rsa.PrivateKey
	origins  []string
	now      func() time.Time
}

// NewIssuer parses the service account key and creates an Issuer.
func NewIssuer(issuerID string, creds *Credentials, origins []string) (*Issuer, error) {
	if issuerID == "" {
		return nil, errors.New("issuer id is required")
	}
	key, err := parseRSAKey([]byte(creds.PrivateKey))
	if err != nil {
		return nil, err
	}
	return &Issuer{
		issuerID: issuerID,
		email:    creds.ClientEmail,
		key:      key,
		origins:  origins,
		now:      time.Now,
	}, nil
}

func parseRSAKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("service account private key is not PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("service account key is %T, want RSA", key)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	return key, nil
}

// ObjectRef identifies one object to save and the class it belongs to.
type ObjectRef struct {
	ID      string `json:"id"`
	ClassID string `json:"classId"`
}

// ResourceID qualifies a suffix with the issuer id.
func (i *Issuer) ResourceID(suffix string) string {
	return i.issuerID + "." + suffix
}

// SignedURL returns the save link for objectSuffix in classSuffix.
func (i *Issuer) SignedURL(t SaveType, objectSuffix, classSuffix string) (string, error) {
	if objectSuffix == "" || classSuffix == "" {
		return "", errors.New("object and class suffixes are required")
	}

	origins := i.origins
	if origins == nil {
		origins = []string{}
	}
	claims := jwt.MapClaims{
		"iss":     i.email,
		"aud":     "google",
		"origins": origins,
		"typ":     "savetowallet",
		"iat":     i.now().Unix(),
		"payload": map[string][]ObjectRef{
			string(t): {{ID: i.ResourceID(objectSuffix), ClassID: i.ResourceID(classSuffix)}},
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing save link: %w", err)
	}
	return URLPrefix + token, nil
}
