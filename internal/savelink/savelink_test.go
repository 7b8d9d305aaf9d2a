// ABOUTME: Tests for save-link signing
// ABOUTME: Verifies the RS256 token and its claims with the service account's public key

package savelink

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials(t *testing.T) (*Credentials, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return &Credentials{
		ClientEmail: "wallet@example.iam.gserviceaccount.com",
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	}, key
}

func TestSignedURL(t *testing.T) {
	creds, key := testCredentials(t)
	issuer, err := NewIssuer("3388000000012345678", creds, []string{"https://example.com"})
	require.NoError(t, err)

	link, err := issuer.SignedURL(OfferObjects, "coupon-001", "spring-sale")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, URLPrefix))

	token, err := jwt.Parse(strings.TrimPrefix(link, URLPrefix), func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience("google"))
	require.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, creds.ClientEmail, claims["iss"])
	assert.Equal(t, "savetowallet", claims["typ"])
	assert.Equal(t, []interface{}{"https://example.com"}, claims["origins"])

	payload, err := json.Marshal(claims["payload"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"offerObjects":[{"id":"3388000000012345678.coupon-001","classId":"3388000000012345678.spring-sale"}]}`, string(payload))
}

func TestSignedURL_RequiresSuffixes(t *testing.T) {
	creds, _ := testCredentials(t)
	issuer, err := NewIssuer("issuer", creds, nil)
	require.NoError(t, err)

	_, err = issuer.SignedURL(GenericObjects, "", "class")
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	creds, _ := testCredentials(t)
	data, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": creds.ClientEmail,
		"private_key":  creds.PrivateKey,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	got, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, creds.ClientEmail, got.ClientEmail)

	_, err = ParseCredentials([]byte(`{"client_email":"x"}`))
	assert.Error(t, err)

	_, err = NewIssuer("issuer", &Credentials{ClientEmail: "x", PrivateKey: "not pem"}, nil)
	assert.Error(t, err)
}

func TestParseSaveType(t *testing.T) {
	st, err := ParseSaveType("genericObjects")
	require.NoError(t, err)
	assert.Equal(t, GenericObjects, st)

	_, err = ParseSaveType("loyaltyObjects")
	assert.Error(t, err)
}
