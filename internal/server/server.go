// ABOUTME: Server orchestrator wiring config into stores, signers, handlers and the HTTP listener
// ABOUTME: Manages the TCP or tailnet listener lifecycle and graceful shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/config"
	"github.com/2389/wallet-gateway/internal/dedupe"
	"github.com/2389/wallet-gateway/internal/protocol"
	"github.com/2389/wallet-gateway/internal/push"
	"github.com/2389/wallet-gateway/internal/savelink"
	"github.com/2389/wallet-gateway/internal/signing"
	"github.com/2389/wallet-gateway/internal/store"
)

// certExpiryWarning is how far ahead an expiring signing certificate is logged.
const certExpiryWarning = 30 * 24 * time.Hour

// Server runs the wallet web service.
type Server struct {
	config      *config.Config
	store       store.Store
	router      *Router
	logs        *dedupe.Cache
	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// New opens the store, loads signing credentials for every configured type,
// and builds the HTTP handler. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		store:  st,
		logs:   dedupe.New(cfg.Logging.DedupeWindow, dedupe.DefaultMaxEntries),
		logger: logger,
	}

	sink := NewLogSink(s.logs, logger)

	handlers := make([]*protocol.Handlers, 0, len(cfg.Types))
	for _, tc := range cfg.Types {
		h, err := s.newTypeHandlers(tc, sink)
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("type %s: %w", tc.TypeIdentifier, err)
		}
		handlers = append(handlers, h)
	}
	s.router, err = NewRouter(handlers...)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	deps := Deps{
		Router:   s.router,
		Store:    st,
		Ingester: protocol.NewIngester(sink, logger),
		Dispatcher: push.NewDispatcher(st, push.LogNotifier{Logger: logger}, push.Options{
			Concurrency: cfg.Push.Concurrency,
			Logger:      logger,
		}),
		PushTimeout: cfg.Push.Timeout,
		Logger:      logger,
	}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		deps.Verifier = verifier
	}

	if cfg.Google.IssuerID != "" {
		issuer, err := newSaveLinkIssuer(cfg.Google)
		if err != nil {
			s.closeResources()
			return nil, err
		}
		deps.SaveLinks = issuer
	}

	s.handler = NewHandler(deps)
	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server configured", "types", s.router.Types(), "admin_api", deps.Verifier != nil)
	return s, nil
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// initStore creates the SQLite store, honoring the WALLET_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WALLET_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func (s *Server) newTypeHandlers(tc config.TypeConfig, sink protocol.LogSink) (*protocol.Handlers, error) {
	kind, err := bundle.ParseKind(tc.Kind)
	if err != nil {
		return nil, err
	}

	signer, err := signing.LoadFiles(signing.Paths{
		Certificate:  tc.Certificate,
		PrivateKey:   tc.PrivateKey,
		PKCS12:       tc.PKCS12,
		Intermediate: tc.WWDRCertificate,
		Passphrase:   tc.KeyPassword,
	})
	if err != nil {
		return nil, err
	}
	if until := time.Until(signer.Expires()); until < certExpiryWarning {
		s.logger.Warn("signing certificate expires soon",
			"type", tc.TypeIdentifier, "expires", signer.Expires().Format(time.RFC3339))
	}

	asm := bundle.NewAssembler(bundle.NewDirStore(tc.TemplatePath).WithLogger(s.logger), signer, bundle.Options{
		AuthToken:     tc.AuthToken,
		WebServiceURL: s.config.Server.PublicURL,
		TypeID:        tc.TypeIdentifier,
		TeamID:        tc.TeamIdentifier,
		Workers:       s.config.Assembly.Workers,
		Logger:        s.logger,
	})

	freshness := protocol.FreshnessIgnore
	if tc.HonorIfModifiedSince {
		freshness = protocol.FreshnessHonor
	}

	return protocol.New(protocol.Config{
		Kind:      kind,
		TypeID:    tc.TypeIdentifier,
		AuthToken: tc.AuthToken,
		Store:     s.store,
		Records:   s.store,
		Build:     NewBuildFunc(kind, asm),
		LogSink:   sink,
		Freshness: freshness,
		Logger:    s.logger,
	})
}

func newSaveLinkIssuer(cfg config.GoogleConfig) (*savelink.Issuer, error) {
	creds, err := savelink.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	issuer, err := savelink.NewIssuer(cfg.IssuerID, creds, cfg.Origins)
	if err != nil {
		return nil, fmt.Errorf("creating save link issuer: %w", err)
	}
	return issuer, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	s.logger.Info("starting wallet gateway", "http_addr", s.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "wallet-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return s.tailscaleTLSListener()
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// tailscaleTLSListener serves TLS with the node's auto-provisioned certificate.
func (s *Server) tailscaleTLSListener() (net.Listener, error) {
	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (s *Server) closeResources() {
	if s.logs != nil {
		s.logs.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down wallet gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())
	s.logs.Close()

	return errors.Join(errs...)
}
