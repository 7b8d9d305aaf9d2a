// ABOUTME: Glue from stored records to signed bundles, and the device log sink
// ABOUTME: Records are decoded into descriptors per kind; repeated log lines are suppressed

package server

import (
	"context"
	"log/slog"

	"github.com/2389/wallet-gateway/internal/bundle"
	"github.com/2389/wallet-gateway/internal/dedupe"
	"github.com/2389/wallet-gateway/internal/protocol"
	"github.com/2389/wallet-gateway/internal/store"
)

// Assembler is the part of *bundle.Assembler the server needs.
type Assembler interface {
	Assemble(ctx context.Context, req bundle.Request) ([]byte, error)
}

// NewBuildFunc returns a build function that decodes a record as a
// descriptor of kind and assembles it from the assembler's root template.
func NewBuildFunc(kind bundle.Kind, asm Assembler) protocol.BuildFunc {
	return func(ctx context.Context, rec *store.PassRecord) ([]byte, error) {
		d, err := bundle.DecodeDescriptor(kind, rec.PassKey, rec.Data)
		if err != nil {
			return nil, err
		}
		if od, ok := d.(*bundle.OrderDescriptor); ok {
			od.UpdatedAt = rec.UpdatedAt
		}
		return asm.Assemble(ctx, bundle.Request{Descriptor: d})
	}
}

// NewLogSink returns a sink writing device log lines to logger. Lines seen
// within the cache's window are dropped. A nil cache keeps every line.
func NewLogSink(cache *dedupe.Cache, logger *slog.Logger) protocol.LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "device-log")

	return func(ctx context.Context, lines []string) error {
		fresh := lines
		if cache != nil {
			fresh = cache.Fresh(lines)
		}
		for _, line := range fresh {
			logger.InfoContext(ctx, "device log", "line", line)
		}
		if dropped := len(lines) - len(fresh); dropped > 0 {
			logger.DebugContext(ctx, "suppressed repeated device log lines", "count", dropped)
		}
		return nil
	}
}
