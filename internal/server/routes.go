// ABOUTME: HTTP routes for the wallet device web service and health checks
// ABOUTME: Adapts requests to protocol handlers and writes their responses verbatim

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/protocol"
	"github.com/2389/wallet-gateway/internal/push"
	"github.com/2389/wallet-gateway/internal/savelink"
	"github.com/2389/wallet-gateway/internal/store"
)

const (
	maxDeviceBody = 1 << 20
	maxRecordBody = 8 << 20
)

// Deps are the components the HTTP handler is built from.
type Deps struct {
	Router   *Router
	Store    store.Store
	Ingester *protocol.Ingester
	// Dispatcher sends change notifications after admin updates.
	Dispatcher *push.Dispatcher
	// Verifier enables the admin API. Nil leaves /admin unrouted.
	Verifier auth.TokenVerifier
	// SaveLinks enables save-link signing on the admin API.
	SaveLinks   *savelink.Issuer
	PushTimeout time.Duration
	Logger      *slog.Logger
}

type api struct {
	Deps
	logger *slog.Logger
}

// NewHandler builds the HTTP handler for the device service, health check
// and, when a verifier is configured, the admin API.
func NewHandler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Ingester == nil {
		d.Ingester = protocol.NewIngester(nil, logger)
	}
	a := &api{Deps: d, logger: logger.With("component", "http")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)

	mux.HandleFunc("POST /v1/devices/{deviceID}/registrations/{typeID}/{passKey}", a.handleRegister)
	mux.HandleFunc("DELETE /v1/devices/{deviceID}/registrations/{typeID}/{passKey}", a.handleUnregister)
	mux.HandleFunc("GET /v1/devices/{deviceID}/registrations/{typeID}", a.handleList)
	mux.HandleFunc("GET /v1/passes/{typeID}/{passKey}", a.handleFetch(bundle.KindPass))
	mux.HandleFunc("GET /v1/orders/{typeID}/{passKey}", a.handleFetch(bundle.KindOrder))
	mux.HandleFunc("POST /v1/log", a.handleLog)

	if d.Verifier != nil {
		a.registerAdminRoutes(mux)
	} else {
		a.logger.Warn("admin API disabled - no jwt_secret configured")
	}

	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	h, err := a.Router.Route(r.PathValue("typeID"), "")
	if err != nil {
		// Authenticated routes never reveal which types exist.
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// A malformed body leaves the push token empty; the handler then picks
	// 401 or 400 in its usual order.
	var body struct {
		PushToken string `json:"pushToken"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDeviceBody)).Decode(&body); err != nil {
		a.logger.Debug("unreadable registration body", "error", err)
	}

	resp, err := h.Register(r.Context(), protocol.DeviceRequest{
		DeviceID:      r.PathValue("deviceID"),
		PassKey:       r.PathValue("passKey"),
		Authorization: r.Header.Get("Authorization"),
		PushToken:     body.PushToken,
	})
	a.respond(w, r, resp, err)
}

func (a *api) handleUnregister(w http.ResponseWriter, r *http.Request) {
	h, err := a.Router.Route(r.PathValue("typeID"), "")
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	resp, err := h.Unregister(r.Context(), protocol.DeviceRequest{
		DeviceID:      r.PathValue("deviceID"),
		PassKey:       r.PathValue("passKey"),
		Authorization: r.Header.Get("Authorization"),
	})
	a.respond(w, r, resp, err)
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	h, err := a.Router.Route(r.PathValue("typeID"), "")
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp, err := h.ListChanged(r.Context(), protocol.ListRequest{
		DeviceID:     r.PathValue("deviceID"),
		UpdatedSince: cursorParam(r),
	})
	a.respond(w, r, resp, err)
}

// cursorParam accepts the per-kind parameter names and a generic fallback.
func cursorParam(r *http.Request) string {
	q := r.URL.Query()
	for _, name := range []string{"passesUpdatedSince", "ordersModifiedSince", "updatedSince"} {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (a *api) handleFetch(kind bundle.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := a.Router.Route(r.PathValue("typeID"), kind)
		switch {
		case errors.Is(err, ErrWrongKind):
			w.WriteHeader(http.StatusNotFound)
			return
		case err != nil:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		resp, err := h.FetchLatest(r.Context(), protocol.FetchRequest{
			PassKey:         r.PathValue("passKey"),
			Authorization:   r.Header.Get("Authorization"),
			IfModifiedSince: r.Header.Get("If-Modified-Since"),
		})
		a.respond(w, r, resp, err)
	}
}

func (a *api) handleLog(w http.ResponseWriter, r *http.Request) {
	var req protocol.LogRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDeviceBody)).Decode(&req); err != nil {
		a.logger.Debug("unreadable log body", "error", err)
	}
	a.write(w, a.Ingester.Log(r.Context(), req))
}

// respond writes resp, or a 500 when the handler failed.
func (a *api) respond(w http.ResponseWriter, r *http.Request, resp protocol.Response, err error) {
	if err != nil {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.write(w, resp)
}

func (a *api) write(w http.ResponseWriter, resp protocol.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// sendJSONError writes a JSON error response.
func (a *api) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (a *api) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("encoding response", "error", err)
	}
}
