// ABOUTME: Latest-bundle retrieval: auth, record lookup, optional freshness short-circuit, build
// ABOUTME: Responds with the signed archive as an attachment named after the pass key

package protocol

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/wallet-gateway/internal/store"
)

// FetchLatest builds and returns the current bundle for a pass.
func (h *Handlers) FetchLatest(ctx context.Context, req FetchRequest) (Response, error) {
	if !h.authorized(req.Authorization) {
		return status(http.StatusUnauthorized), nil
	}

	rec, err := h.cfg.Records.GetRecord(ctx, h.cfg.TypeID, req.PassKey)
	if errors.Is(err, store.ErrNotFound) {
		return status(http.StatusNotFound), nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("loading record %s: %w", req.PassKey, err)
	}

	// HTTP dates have one-second resolution.
	modified := rec.UpdatedAt.UTC().Truncate(time.Second)

	if h.cfg.Freshness == FreshnessHonor && req.IfModifiedSince != "" {
		if since, err := http.ParseTime(req.IfModifiedSince); err == nil && !modified.After(since) {
			resp := status(http.StatusNotModified)
			resp.Header.Set("Last-Modified", modified.Format(http.TimeFormat))
			return resp, nil
		}
	}

	data, err := h.cfg.Build(ctx, rec)
	if err != nil {
		return Response{}, fmt.Errorf("building %s: %w", req.PassKey, err)
	}

	h.logger.Info("served bundle", "pass", req.PassKey, "bytes", len(data))

	resp := status(http.StatusOK)
	resp.Header.Set("Content-Type", h.cfg.Kind.ContentType())
	resp.Header.Set("Content-Disposition", attachment(h.cfg.Kind.Filename(req.PassKey)))
	resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
	resp.Header.Set("Last-Modified", modified.Format(http.TimeFormat))
	resp.Body = data
	return resp, nil
}

// attachment formats a Content-Disposition value, quoting or encoding the
// filename as needed.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
