// Package config handles configuration loading for wallet-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file, or TOML when the path ends in
// .toml, with environment variable expansion. Omitted tuning values get
// defaults and the result is validated before it is returned.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WALLET_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server and storage:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: "https://wallet.example.com/api"  # injected as webServiceURL
//	  shutdown_timeout: "10s"
//	database:
//	  path: "/var/lib/wallet-gateway/wallet.db"     # ":memory:" for tests
//
// Admin API (disabled when empty):
//
//	auth:
//	  jwt_secret: "${WALLET_JWT_SECRET}"
//
// Served types. Each entry is one pass or order type with its own device
// secret, template and signing credentials:
//
//	types:
//	  - kind: pass                     # pass | order
//	    type_identifier: pass.com.example.coupon
//	    auth_token: "${PASS_AUTH_TOKEN}"
//	    template_path: ./resources/coupon.pass
//	    certificate: ./certs/pass.pem  # or pkcs12: ./certs/pass.p12
//	    private_key: ./certs/pass.key
//	    key_password: "${PASS_KEY_PASSWORD}"
//	    wwdr_certificate: ./certs/wwdr.pem
//	    honor_if_modified_since: false
//
// Tuning:
//
//	assembly:
//	  workers: 4
//	push:
//	  concurrency: 8
//	  timeout: "10s"
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text, json
//	  dedupe_window: "5m"      # repeated device log lines are dropped
//
// Save links (optional):
//
//	google:
//	  issuer_id: "3388000000012345678"
//	  credentials_file: ./certs/google-sa.json
//	  origins: ["https://example.com"]
//
// # Validation
//
// Load() rejects a config without a listen address (unless tailscale is
// enabled), without a database path, with a JWT secret shorter than 32
// bytes, or without at least one complete type entry.
package config
