// ABOUTME: Entry point for the wallet-gateway web service
// ABOUTME: Serves device registration and bundle delivery, plus health and admin token commands

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _ _      _                      _
__      ____ _| | | ___| |_      __ _  __ _| |_ _____      ____ _ _   _
\ \ /\ / / _' | | |/ _ \ __|____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \ V  V / (_| | | |  __/ ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \_/\_/ \__,_|_|_|\___|\__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                 |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > WALLET_CONFIG env var > XDG_CONFIG_HOME/wallet-gateway/config.yaml > ~/.config/wallet-gateway/config.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("WALLET_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "wallet-gateway", "config.yaml")
}

func printUsage() {
	fmt.Println("Usage: wallet-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Start the wallet web service")
	fmt.Println("  health                   Check a running gateway's health")
	fmt.Println("  token --subject NAME     Mint an admin API token")
	fmt.Println("  version                  Print the version")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config PATH        Config file (default $WALLET_CONFIG or ~/.config/wallet-gateway/config.yaml)")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "token":
		err = runToken(args)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared --config flag plus any extra flags the
// command registers.
func loadConfig(name string, args []string, extra func(*pflag.FlagSet)) (*config.Config, string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFlag := fs.StringP("config", "c", "", "path to config file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	path := getConfigPath(*configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	var addr string
	cfg, configPath, err := loadConfig("serve", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&addr, "addr", "", "override server.http_addr")
	})
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.HTTPAddr = addr
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	for _, t := range cfg.Types {
		green.Print("    ▶ ")
		fmt.Printf("Type:      %s ", t.TypeIdentifier)
		gray.Printf("(%s)\n", t.Kind)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Admin API disabled (no auth.jwt_secret)")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting wallet-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"types", len(cfg.Types),
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig("health", args, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runToken(args []string) error {
	var (
		subject string
		ttl     time.Duration
	)
	cfg, _, err := loadConfig("token", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&subject, "subject", "", "operator name recorded in the token")
		fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	})
	if err != nil {
		return err
	}
	if subject == "" {
		return fmt.Errorf("--subject is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
