// ABOUTME: Operator API for the issuing backend: store records, trigger pushes, sign save links
// ABOUTME: Every route sits behind the bearer JWT middleware

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/protocol"
	"github.com/2389/wallet-gateway/internal/push"
	"github.com/2389/wallet-gateway/internal/savelink"
	"github.com/2389/wallet-gateway/internal/store"
)

// RecordResponse is the JSON response for record reads and writes.
type RecordResponse struct {
	TypeID    string          `json:"typeId"`
	PassKey   string          `json:"passKey"`
	UpdatedAt string          `json:"updatedAt"`
	Data      json.RawMessage `json:"data,omitempty"`
	Push      *push.Result    `json:"push,omitempty"`
	PushError string          `json:"pushError,omitempty"`
}

// SaveLinkRequest is the JSON request body for POST /admin/save-links.
type SaveLinkRequest struct {
	SaveType     string `json:"saveType"`
	ObjectSuffix string `json:"objectSuffix"`
	ClassSuffix  string `json:"classSuffix"`
}

func (a *api) registerAdminRoutes(mux *http.ServeMux) {
	protect := auth.HTTPAuthMiddleware(a.Verifier, a.logger)
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	route("GET /admin/records/{typeID}/{passKey}", a.handleGetRecord)
	route("PUT /admin/records/{typeID}/{passKey}", a.handlePutRecord)
	route("POST /admin/push/{typeID}/{passKey}", a.handlePush)
	if a.SaveLinks != nil {
		route("POST /admin/save-links", a.handleSaveLink)
	}
}

func (a *api) adminRoute(w http.ResponseWriter, r *http.Request) (*protocol.Handlers, bool) {
	h, err := a.Router.Route(r.PathValue("typeID"), "")
	if err != nil {
		a.sendJSONError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return h, true
}

func (a *api) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	h, ok := a.adminRoute(w, r)
	if !ok {
		return
	}

	rec, err := a.Store.GetRecord(r.Context(), h.TypeID(), r.PathValue("passKey"))
	if errors.Is(err, store.ErrNotFound) {
		a.sendJSONError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		a.logger.Error("loading record", "type", h.TypeID(), "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.sendJSON(w, http.StatusOK, RecordResponse{
		TypeID:    rec.TypeID,
		PassKey:   rec.PassKey,
		UpdatedAt: protocol.FormatCursor(rec.UpdatedAt),
		Data:      rec.Data,
	})
}

// handlePutRecord validates the body as a descriptor of the type's kind,
// stores it with a fresh timestamp, and wakes the devices holding it.
func (a *api) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	h, ok := a.adminRoute(w, r)
	if !ok {
		return
	}
	passKey := r.PathValue("passKey")

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBody))
	if err != nil {
		a.sendJSONError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	d, err := bundle.DecodeDescriptor(h.Kind(), passKey, data)
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		var ferr *bundle.FieldError
		if errors.As(err, &ferr) {
			a.sendJSONError(w, http.StatusBadRequest, ferr.Error())
			return
		}
		a.sendJSONError(w, http.StatusBadRequest, "invalid record")
		return
	}

	rec := &store.PassRecord{TypeID: h.TypeID(), PassKey: passKey, Data: data}
	if err := a.Store.PutRecord(r.Context(), rec); err != nil {
		a.logger.Error("storing record", "type", h.TypeID(), "pass", passKey, "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	operator := ""
	if ac := auth.FromContext(r.Context()); ac != nil {
		operator = ac.Subject
	}
	a.logger.Info("record updated", "type", h.TypeID(), "pass", passKey, "operator", operator)

	resp := RecordResponse{
		TypeID:    rec.TypeID,
		PassKey:   rec.PassKey,
		UpdatedAt: protocol.FormatCursor(rec.UpdatedAt),
	}
	res, err := a.dispatch(r.Context(), h.TypeID(), passKey)
	resp.Push = &res
	if err != nil {
		resp.PushError = err.Error()
	}
	a.sendJSON(w, http.StatusOK, resp)
}

func (a *api) handlePush(w http.ResponseWriter, r *http.Request) {
	h, ok := a.adminRoute(w, r)
	if !ok {
		return
	}
	passKey := r.PathValue("passKey")

	if _, exists, err := a.Store.Exists(r.Context(), h.TypeID(), passKey); err != nil {
		a.logger.Error("checking record", "type", h.TypeID(), "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	} else if !exists {
		a.sendJSONError(w, http.StatusNotFound, "record not found")
		return
	}

	res, err := a.dispatch(r.Context(), h.TypeID(), passKey)
	if err != nil {
		var perr *push.ProviderError
		if errors.As(err, &perr) {
			a.sendJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "push": res})
			return
		}
		a.logger.Error("dispatching push", "type", h.TypeID(), "error", err)
		a.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.sendJSON(w, http.StatusOK, res)
}

func (a *api) dispatch(ctx context.Context, typeID, passKey string) (push.Result, error) {
	if a.Dispatcher == nil {
		return push.Result{}, nil
	}
	if a.PushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.PushTimeout)
		defer cancel()
	}
	return a.Dispatcher.Dispatch(ctx, typeID, passKey)
}

func (a *api) handleSaveLink(w http.ResponseWriter, r *http.Request) {
	var req SaveLinkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDeviceBody)).Decode(&req); err != nil {
		a.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SaveType == "" {
		req.SaveType = string(savelink.GenericObjects)
	}
	st, err := savelink.ParseSaveType(req.SaveType)
	if err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := a.SaveLinks.SignedURL(st, req.ObjectSuffix, req.ClassSuffix)
	if err != nil {
		a.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]string{"url": link, "issuedAt": time.Now().UTC().Format(time.RFC3339)})
}
