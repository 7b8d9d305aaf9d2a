// ABOUTME: Push trigger dispatcher: one payload-less wake-up per device registered for a changed pass
// ABOUTME: Rejected tokens are counted; a provider connection failure aborts the batch without retries

package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/2389/wallet-gateway/internal/store"
)

// ErrTokenRejected marks a per-device failure such as an expired or unknown
// push token. Notifiers wrap it so the dispatcher can count and continue.
var ErrTokenRejected = errors.New("push token rejected")

// Notifier delivers one wake-up. topic is the type identifier.
type Notifier interface {
	Notify(ctx context.Context, topic, pushToken string) error
}

// ProviderError reports a connection-level failure that aborted a dispatch.
type ProviderError struct {
	Token string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("push provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Result counts the outcome of a dispatch.
type Result struct {
	Sent     int      `json:"sent"`
	Failed   int      `json:"failed"`
	Rejected []string `json:"rejected,omitempty"`
}

// Options configures a Dispatcher.
type Options struct {
	// Concurrency bounds in-flight notifications. Zero means 8.
	Concurrency int
	Logger      *slog.Logger
}

// Dispatcher fans wake-ups out to registered devices.
type Dispatcher struct {
	devices  store.DeviceLister
	notifier Notifier
	limit    int
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(devices store.DeviceLister, notifier Notifier, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		devices:  devices,
		notifier: notifier,
		limit:    opts.Concurrency,
		logger:   logger.With("component", "push"),
	}
}

// Dispatch notifies every device registered for the pass. Token rejections
// are counted in Result; any other notifier error cancels the remaining
// sends and is returned as a *ProviderError alongside the partial Result.
func (d *Dispatcher) Dispatch(ctx context.Context, typeID, passKey string) (Result, error) {
	regs, err := d.devices.ListDevices(ctx, typeID, passKey)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}
	if len(regs) == 0 {
		return Result{}, nil
	}

	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)

	for _, reg := range regs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := d.notifier.Notify(gctx, typeID, reg.PushToken)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Sent++
				return nil
			case errors.Is(err, ErrTokenRejected):
				res.Failed++
				res.Rejected = append(res.Rejected, reg.DeviceID)
				return nil
			default:
				return &ProviderError{Token: reg.PushToken, Err: err}
			}
		})
	}

	if err := g.Wait(); err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			perr = &ProviderError{Err: err}
		}
		d.logger.Error("push dispatch aborted",
			"type", typeID, "pass", passKey,
			"sent", res.Sent, "failed", res.Failed, "error", perr.Err,
		)
		return res, perr
	}

	d.logger.Info("push dispatched",
		"type", typeID, "pass", passKey,
		"devices", len(regs), "sent", res.Sent, "failed", res.Failed,
	)
	return res, nil
}

// LogNotifier records wake-ups in the log instead of contacting a push
// provider.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the wake-up.
func (n LogNotifier) Notify(ctx context.Context, topic, pushToken string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("wake-up", "component", "push", "topic", topic, "token", redact(pushToken))
	return nil
}

func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
