// ABOUTME: build subcommand: assembles and signs one bundle from a template directory and JSON data
// ABOUTME: Uses the same descriptor decoding and assembler the gateway serves devices with

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/signing"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Assemble and sign a bundle from a template directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Usage: "bundle kind (pass or order)", Value: "pass"},
			&cli.StringFlag{Name: "template", Usage: "template directory", Required: true},
			&cli.StringFlag{Name: "data", Usage: "JSON descriptor file", Required: true},
			&cli.StringFlag{Name: "key", Usage: "serial number or order identifier", Required: true},
			&cli.StringFlag{Name: "cert", Usage: "signer certificate PEM"},
			&cli.StringFlag{Name: "private-key", Usage: "signer private key PEM (if not bundled with --cert)"},
			&cli.StringFlag{Name: "pkcs12", Usage: "signer PKCS#12 bundle instead of --cert"},
			&cli.StringFlag{Name: "wwdr", Usage: "intermediate (WWDR) certificate PEM", Required: true},
			&cli.StringFlag{Name: "passphrase", Usage: "private key passphrase", Sources: cli.EnvVars("WALLET_KEY_PASSWORD")},
			&cli.StringFlag{Name: "type-id", Usage: "override the template's type identifier"},
			&cli.StringFlag{Name: "team-id", Usage: "override the template's team identifier"},
			&cli.StringFlag{Name: "auth-token", Usage: "authenticationToken to embed"},
			&cli.StringFlag{Name: "web-service-url", Usage: "webServiceURL to embed"},
			&cli.StringFlag{Name: "out", Usage: "output file (default <key>.pkpass or <key>.order)"},
		},
		Action: runBuild,
	}
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	kind, err := bundle.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}
	if cmd.String("cert") == "" && cmd.String("pkcs12") == "" {
		return fmt.Errorf("one of --cert or --pkcs12 is required")
	}

	signer, err := signing.LoadFiles(signing.Paths{
		Certificate:  cmd.String("cert"),
		PrivateKey:   cmd.String("private-key"),
		PKCS12:       cmd.String("pkcs12"),
		Intermediate: cmd.String("wwdr"),
		Passphrase:   cmd.String("passphrase"),
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cmd.String("data"))
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}
	key := cmd.String("key")
	d, err := bundle.DecodeDescriptor(kind, key, data)
	if err != nil {
		return err
	}

	asm := bundle.NewAssembler(bundle.NewDirStore(cmd.String("template")), signer, bundle.Options{
		AuthToken:     cmd.String("auth-token"),
		WebServiceURL: cmd.String("web-service-url"),
		TypeID:        cmd.String("type-id"),
		TeamID:        cmd.String("team-id"),
		Workers:       1,
	})
	archive, err := asm.Assemble(ctx, bundle.Request{Descriptor: d})
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if out == "" {
		out = kind.Filename(filepath.Base(key))
	}
	if err := os.WriteFile(out, archive, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	fmt.Fprintf(stdout(cmd), "wrote %s (%d bytes, signer expires %s)\n",
		out, len(archive), signer.Expires().Format("2006-01-02"))
	return nil
}
