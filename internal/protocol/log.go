// ABOUTME: Device diagnostic log ingestion
// ABOUTME: Always answers 200; a missing sink is a silent no-op and sink errors are only logged

package protocol

import (
	"context"
	"log/slog"
	"net/http"
)

// LogSink receives diagnostic lines posted by wallet clients.
type LogSink func(ctx context.Context, lines []string) error

// LogRequest is the body of a log post.
type LogRequest struct {
	Logs []string `json:"logs"`
}

// Ingester forwards device logs to a sink. It is shared by every type
// identifier since the log endpoint is not scoped to one.
type Ingester struct {
	sink   LogSink
	logger *slog.Logger
}

// NewIngester creates an Ingester. A nil sink discards lines.
func NewIngester(sink LogSink, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{sink: sink, logger: logger}
}

// Log forwards req.Logs and returns 200.
func (i *Ingester) Log(ctx context.Context, req LogRequest) Response {
	if i.sink == nil || len(req.Logs) == 0 {
		return status(http.StatusOK)
	}
	if err := i.sink(ctx, req.Logs); err != nil {
		i.logger.Warn("log sink failed", "lines", len(req.Logs), "error", err)
	}
	return status(http.StatusOK)
}
