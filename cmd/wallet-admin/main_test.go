// ABOUTME: Tests for the wallet-admin subcommands, driven through the root command
// ABOUTME: A build is verified by the verify subcommand using a throwaway certificate chain

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/savelink"
	"github.com/2389/wallet-gateway/internal/signing/signingtest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"wallet-admin"}, args...))
	return out.String(), err
}

func write(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestNewApp(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"build", "verify", "save-url"}, names)

	for _, flag := range buildCommand().Flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == "template" {
			assert.True(t, f.Required)
		}
	}
}

func TestBuildAndVerify(t *testing.T) {
	dir := t.TempDir()
	chain := signingtest.NewChain(t)

	cert := write(t, filepath.Join(dir, "pass.pem"), chain.CertPEM)
	key := write(t, filepath.Join(dir, "pass.key"), chain.KeyPEM)
	wwdr := write(t, filepath.Join(dir, "wwdr.pem"), chain.IntermediatePEM)
	roots := write(t, filepath.Join(dir, "roots.pem"), pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: chain.Root.Raw}))

	tmpl := filepath.Join(dir, "coupon.pass")
	write(t, filepath.Join(tmpl, "pass.json"), []byte(`{"formatVersion":1,"organizationName":"Example"}`))
	write(t, filepath.Join(tmpl, "icon.png"), []byte("\x89PNG icon"))
	data := write(t, filepath.Join(dir, "coupon.json"), []byte(`{
		"description": "Spring sale",
		"coupon": {"code": "SPRING20", "offerTitle": "20% off", "qrCodeUrl": "https://example.com/r/SPRING20"}
	}`))
	out := filepath.Join(dir, "coupon-001.pkpass")

	stdout, err := run(t, "build",
		"--template", tmpl,
		"--data", data,
		"--key", "coupon-001",
		"--cert", cert,
		"--private-key", key,
		"--wwdr", wwdr,
		"--type-id", "pass.com.example.coupon",
		"--team-id", "ABCDE12345",
		"--out", out,
	)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "wrote "+out)

	archive, err := os.ReadFile(out)
	require.NoError(t, err)
	files, err := bundle.Open(archive)
	require.NoError(t, err)
	assert.Contains(t, string(files["pass.json"]), `"passTypeIdentifier":"pass.com.example.coupon"`)
	assert.Contains(t, string(files["pass.json"]), `"serialNumber":"coupon-001"`)

	stdout, err = run(t, "verify", "--roots", roots, "--list", out)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, out+": OK")
	assert.Contains(t, stdout, "  pass.json\n")
	assert.Contains(t, stdout, "  icon.png\n")

	bad := write(t, filepath.Join(dir, "bad.pkpass"), []byte("not a zip"))
	_, err = run(t, "verify", "--roots", roots, bad)
	assert.Error(t, err)
}

func TestBuild_RequiresCredentials(t *testing.T) {
	_, err := run(t, "build", "--template", "t", "--data", "d", "--key", "k", "--wwdr", "w")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--cert or --pkcs12")

	_, err = run(t, "build", "--kind", "ticket", "--template", "t", "--data", "d", "--key", "k", "--wwdr", "w")
	assert.Error(t, err)
}

func TestSaveURL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	creds, err := json.Marshal(map[string]string{
		"client_email": "wallet@example.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	require.NoError(t, err)
	path := write(t, filepath.Join(t.TempDir(), "sa.json"), creds)

	stdout, err := run(t, "save-url",
		"--issuer-id", "3388000000012345678",
		"--credentials", path,
		"--type", "offerObjects",
		"--object", "coupon-001",
		"--class", "spring",
		"--origin", "https://shop.example.com",
	)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, savelink.URLPrefix))

	_, err = run(t, "save-url", "--issuer-id", "1", "--credentials", path, "--type", "loyaltyObjects", "--object", "a", "--class", "b")
	assert.Error(t, err)
}
