// ABOUTME: Changed-item listing for a device, with the cursor clients send back next time
// ABOUTME: Empty results are 204 with no body; field names follow the bundle kind

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/2389/wallet-gateway/internal/bundle"
)

// CursorFormat is the layout of the lastUpdated / lastModified cursor.
const CursorFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatCursor renders t as a cursor in UTC.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(CursorFormat)
}

// ParseCursor parses a cursor sent by a device. Empty input yields nil.
func ParseCursor(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("parsing cursor %q: %w", s, err)
	}
	return &t, nil
}

type passList struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

type orderList struct {
	OrderIdentifiers []string `json:"orderIdentifiers"`
	LastModified     string   `json:"lastModified"`
}

// ListChanged returns the device's items changed strictly after the cursor,
// ascending by update time. It performs no auth check. An unparseable
// cursor is treated as absent.
func (h *Handlers) ListChanged(ctx context.Context, req ListRequest) (Response, error) {
	since, err := ParseCursor(req.UpdatedSince)
	if err != nil {
		h.logger.Debug("ignoring unparseable cursor", "device", req.DeviceID, "error", err)
		since = nil
	}

	items, err := h.cfg.Store.ListRegistrations(ctx, h.cfg.TypeID, req.DeviceID, since)
	if err != nil {
		return Response{}, fmt.Errorf("listing registrations: %w", err)
	}
	if len(items) == 0 {
		return status(http.StatusNoContent), nil
	}

	keys := make([]string, len(items))
	latest := items[0].UpdatedAt
	for i, it := range items {
		keys[i] = it.PassKey
		if it.UpdatedAt.After(latest) {
			latest = it.UpdatedAt
		}
	}

	var payload any
	if h.cfg.Kind == bundle.KindOrder {
		payload = orderList{OrderIdentifiers: keys, LastModified: FormatCursor(latest)}
	} else {
		payload = passList{SerialNumbers: keys, LastUpdated: FormatCursor(latest)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encoding list: %w", err)
	}

	resp := status(http.StatusOK)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = body
	return resp, nil
}
