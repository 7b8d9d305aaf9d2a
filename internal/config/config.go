// ABOUTME: Configuration loading and parsing for wallet-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/wallet-gateway/internal/bundle"
)

// MinSecretLength mirrors the admin token verifier's minimum HMAC secret size.
const MinSecretLength = 32

// Defaults applied when a value is omitted.
const (
	DefaultAssemblyWorkers   = 4
	DefaultPushConcurrency   = 8
	DefaultPushTimeout       = 10 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultLogDedupeWindow   = 5 * time.Minute
	DefaultTailscaleHostname = "wallet-gateway"
)

// Config represents the complete wallet-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Assembly  AssemblyConfig  `yaml:"assembly" toml:"assembly"`
	Push      PushConfig      `yaml:"push" toml:"push"`
	Types     []TypeConfig    `yaml:"types" toml:"types"`
	Google    GoogleConfig    `yaml:"google" toml:"google"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// PublicURL is the externally reachable base URL injected into bundles
	// as their web service URL.
	PublicURL string `yaml:"public_url" toml:"public_url"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with a tailnet certificate
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // expose publicly (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds the admin API secret. The admin API is disabled when empty.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`

	DedupeWindow    time.Duration `yaml:"-" toml:"-"`
	DedupeWindowRaw string        `yaml:"dedupe_window" toml:"dedupe_window"`
}

// AssemblyConfig bounds concurrent bundle builds.
type AssemblyConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
}

// PushConfig tunes change notification fan-out.
type PushConfig struct {
	Concurrency int `yaml:"concurrency" toml:"concurrency"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// TypeConfig describes one served pass or order type.
type TypeConfig struct {
	Kind                 string `yaml:"kind" toml:"kind"`
	TypeIdentifier       string `yaml:"type_identifier" toml:"type_identifier"`
	TeamIdentifier       string `yaml:"team_identifier" toml:"team_identifier"`
	AuthToken            string `yaml:"auth_token" toml:"auth_token"`
	TemplatePath         string `yaml:"template_path" toml:"template_path"`
	Certificate          string `yaml:"certificate" toml:"certificate"`
	PrivateKey           string `yaml:"private_key" toml:"private_key"`
	PKCS12               string `yaml:"pkcs12" toml:"pkcs12"`
	KeyPassword          string `yaml:"key_password" toml:"key_password"`
	WWDRCertificate      string `yaml:"wwdr_certificate" toml:"wwdr_certificate"`
	HonorIfModifiedSince bool   `yaml:"honor_if_modified_since" toml:"honor_if_modified_since"`
}

// GoogleConfig enables signed save links. Disabled when IssuerID is empty.
type GoogleConfig struct {
	IssuerID        string   `yaml:"issuer_id" toml:"issuer_id"`
	CredentialsFile string   `yaml:"credentials_file" toml:"credentials_file"`
	Origins         []string `yaml:"origins" toml:"origins"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultTailscaleHostname
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.DedupeWindow == 0 {
		c.Logging.DedupeWindow = DefaultLogDedupeWindow
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Assembly.Workers <= 0 {
		c.Assembly.Workers = DefaultAssemblyWorkers
	}
	if c.Push.Concurrency <= 0 {
		c.Push.Concurrency = DefaultPushConcurrency
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = DefaultPushTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if len(c.Types) == 0 {
		return fmt.Errorf("at least one entry in types is required")
	}
	seen := make(map[string]bool, len(c.Types))
	for i, t := range c.Types {
		if err := t.validate(); err != nil {
			return fmt.Errorf("types[%d]: %w", i, err)
		}
		if seen[t.TypeIdentifier] {
			return fmt.Errorf("types[%d]: duplicate type_identifier %q", i, t.TypeIdentifier)
		}
		seen[t.TypeIdentifier] = true
	}

	if c.Google.IssuerID != "" && c.Google.CredentialsFile == "" {
		return fmt.Errorf("google.credentials_file is required when google.issuer_id is set")
	}

	return nil
}

func (t TypeConfig) validate() error {
	if strings.TrimSpace(t.Kind) == "" {
		return fmt.Errorf("kind is required")
	}
	// Same parser the server wires types with, so both agree on spelling.
	if _, err := bundle.ParseKind(t.Kind); err != nil {
		return fmt.Errorf("kind must be pass or order, got %q", t.Kind)
	}
	if t.TypeIdentifier == "" {
		return fmt.Errorf("type_identifier is required")
	}
	if t.AuthToken == "" {
		return fmt.Errorf("auth_token is required")
	}
	if t.TemplatePath == "" {
		return fmt.Errorf("template_path is required")
	}
	if t.Certificate == "" && t.PKCS12 == "" {
		return fmt.Errorf("certificate or pkcs12 is required")
	}
	if t.WWDRCertificate == "" {
		return fmt.Errorf("wwdr_certificate is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"logging.dedupe_window", cfg.Logging.DedupeWindowRaw, &cfg.Logging.DedupeWindow},
		{"push.timeout", cfg.Push.TimeoutRaw, &cfg.Push.Timeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
