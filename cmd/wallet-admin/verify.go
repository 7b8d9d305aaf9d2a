// ABOUTME: verify subcommand: checks a bundle's manifest digests and detached signature
// ABOUTME: Trust roots come from a PEM file or the system pool

package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/signing"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a bundle's manifest and signature",
		ArgsUsage: "<bundle>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "roots", Usage: "PEM file of trusted root certificates (default system pool)"},
			&cli.BoolFlag{Name: "list", Usage: "print the manifest entries"},
		},
		Action: runVerify,
	}
}

func loadRoots(path string) (*x509.CertPool, error) {
	if path == "" {
		return x509.SystemCertPool()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roots: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one bundle path")
	}
	path := cmd.Args().First()

	archive, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	roots, err := loadRoots(cmd.String("roots"))
	if err != nil {
		return err
	}

	files, err := bundle.Open(archive)
	if err != nil {
		return err
	}
	if err := bundle.VerifyContents(files, roots); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	w := stdout(cmd)
	if cmd.Bool("list") {
		manifest, err := signing.ParseManifest(files[signing.ManifestName])
		if err != nil {
			return err
		}
		names := make([]string, 0, len(manifest))
		for name := range manifest {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s  %s\n", manifest[name], name)
		}
	}
	fmt.Fprintf(w, "%s: OK\n", path)
	return nil
}
