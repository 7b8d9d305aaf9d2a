// ABOUTME: Transport-agnostic handlers for the wallet device web service
// ABOUTME: Register, unregister, list-changed, fetch-latest, and log ingestion for one type identifier

package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/store"
)

// FreshnessPolicy decides what FetchLatest does with If-Modified-Since.
type FreshnessPolicy int

const (
	// FreshnessIgnore always rebuilds the bundle.
	FreshnessIgnore FreshnessPolicy = iota
	// FreshnessHonor answers 304 when the record has not changed since the
	// supplied time.
	FreshnessHonor
)

// BuildFunc produces the signed bundle for a record.
type BuildFunc func(ctx context.Context, rec *store.PassRecord) ([]byte, error)

// Config configures Handlers for one type identifier.
type Config struct {
	Kind      bundle.Kind
	TypeID    string
	AuthToken string
	Store     store.RegistrationStore
	Records   store.RecordStore
	Build     BuildFunc
	// LogSink receives device diagnostics. Nil discards them.
	LogSink   LogSink
	Freshness FreshnessPolicy
	Logger    *slog.Logger
}

// Response is a plain HTTP-shaped result.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DeviceRequest is a register or unregister call.
type DeviceRequest struct {
	DeviceID      string
	PassKey       string
	Authorization string
	PushToken     string
}

// ListRequest asks for the device's passes changed since a cursor.
type ListRequest struct {
	DeviceID     string
	UpdatedSince string
}

// FetchRequest asks for the latest bundle.
type FetchRequest struct {
	PassKey         string
	Authorization   string
	IfModifiedSince string
}

// Handlers implements the device web service for one type identifier. It
// performs no locking of its own; per-pair atomicity comes from the store.
type Handlers struct {
	cfg    Config
	ingest *Ingester
	logger *slog.Logger
}

// New validates cfg and creates Handlers.
func New(cfg Config) (*Handlers, error) {
	if cfg.Build == nil {
		return nil, errors.New("protocol: build function is required")
	}
	if cfg.Store == nil || cfg.Records == nil {
		return nil, errors.New("protocol: registration and record stores are required")
	}
	if cfg.TypeID == "" {
		return nil, errors.New("protocol: type identifier is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = bundle.KindPass
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "protocol", "kind", cfg.Kind, "type", cfg.TypeID)

	return &Handlers{
		cfg:    cfg,
		ingest: NewIngester(cfg.LogSink, logger),
		logger: logger,
	}, nil
}

// Kind returns the bundle kind served.
func (h *Handlers) Kind() bundle.Kind { return h.cfg.Kind }

// TypeID returns the type identifier served.
func (h *Handlers) TypeID() string { return h.cfg.TypeID }

func (h *Handlers) authorized(header string) bool {
	return auth.CheckSchemeToken(header, h.cfg.Kind.AuthScheme(), h.cfg.AuthToken)
}

// Register associates the device's push token with a pass. Checks run in
// order: auth, push token, pass existence.
func (h *Handlers) Register(ctx context.Context, req DeviceRequest) (Response, error) {
	if !h.authorized(req.Authorization) {
		h.logger.Debug("register rejected", "device", req.DeviceID, "pass", req.PassKey)
		return status(http.StatusUnauthorized), nil
	}
	if req.PushToken == "" {
		return jsonError(http.StatusBadRequest, "pushToken is required"), nil
	}

	_, ok, err := h.cfg.Store.Exists(ctx, h.cfg.TypeID, req.PassKey)
	if err != nil {
		return Response{}, fmt.Errorf("checking pass %s: %w", req.PassKey, err)
	}
	if !ok {
		return status(http.StatusNotFound), nil
	}

	res, err := h.cfg.Store.UpsertRegistration(ctx, store.DeviceRegistration{
		DeviceID:  req.DeviceID,
		TypeID:    h.cfg.TypeID,
		PassKey:   req.PassKey,
		PushToken: req.PushToken,
	})
	if err != nil {
		return Response{}, fmt.Errorf("registering device: %w", err)
	}

	h.logger.Info("device registered", "device", req.DeviceID, "pass", req.PassKey, "result", res)
	if res == store.Created {
		return status(http.StatusCreated), nil
	}
	return status(http.StatusOK), nil
}

// Unregister removes the association. It succeeds whether or not the pair
// or the pass still exists.
func (h *Handlers) Unregister(ctx context.Context, req DeviceRequest) (Response, error) {
	if !h.authorized(req.Authorization) {
		return status(http.StatusUnauthorized), nil
	}

	if err := h.cfg.Store.RemoveRegistration(ctx, req.DeviceID, h.cfg.TypeID, req.PassKey); err != nil {
		return Response{}, fmt.Errorf("unregistering device: %w", err)
	}

	h.logger.Info("device unregistered", "device", req.DeviceID, "pass", req.PassKey)
	return status(http.StatusOK), nil
}

// Log forwards device diagnostics to the configured sink.
func (h *Handlers) Log(ctx context.Context, req LogRequest) Response {
	return h.ingest.Log(ctx, req)
}

func status(code int) Response {
	return Response{Status: code, Header: http.Header{}}
}

func jsonError(code int, msg string) Response {
	resp := status(code)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body, _ = json.Marshal(map[string]string{"error": msg})
	return resp
}
