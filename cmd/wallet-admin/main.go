// ABOUTME: Operator CLI for wallet-gateway: builds and verifies bundles offline, mints save links
// ABOUTME: Each subcommand lives in its own file and shares the gateway's internal packages

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "wallet-admin",
		Usage:   "Offline tooling for wallet bundles and save links",
		Version: version,
		Commands: []*cli.Command{
			buildCommand(),
			verifyCommand(),
			saveURLCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stdout returns the writer configured on the root command.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
