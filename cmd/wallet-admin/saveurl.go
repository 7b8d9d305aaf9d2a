// ABOUTME: save-url subcommand: prints a signed Google Wallet save link for an existing object
// ABOUTME: Reads service account credentials from a JSON key file

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/2389/wallet-gateway/internal/savelink"
)

func saveURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "save-url",
		Usage: "Print a signed save-to-wallet link",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "issuer-id", Usage: "issuer account ID", Required: true},
			&cli.StringFlag{Name: "credentials", Usage: "service account JSON key file", Required: true, Sources: cli.EnvVars("GOOGLE_APPLICATION_CREDENTIALS")},
			&cli.StringFlag{Name: "type", Usage: "genericObjects or offerObjects", Value: string(savelink.GenericObjects)},
			&cli.StringFlag{Name: "object", Usage: "object ID suffix", Required: true},
			&cli.StringFlag{Name: "class", Usage: "class ID suffix", Required: true},
			&cli.StringSliceFlag{Name: "origin", Usage: "allowed web origin (repeatable)"},
		},
		Action: runSaveURL,
	}
}

func runSaveURL(ctx context.Context, cmd *cli.Command) error {
	saveType, err := savelink.ParseSaveType(cmd.String("type"))
	if err != nil {
		return err
	}
	creds, err := savelink.LoadCredentials(cmd.String("credentials"))
	if err != nil {
		return err
	}
	issuer, err := savelink.NewIssuer(cmd.String("issuer-id"), creds, cmd.StringSlice("origin"))
	if err != nil {
		return err
	}

	url, err := issuer.SignedURL(saveType, cmd.String("object"), cmd.String("class"))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), url)
	return nil
}
