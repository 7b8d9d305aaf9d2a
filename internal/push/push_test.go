// ABOUTME: Tests for push fan-out counting and abort semantics
// ABOUTME: Uses a scripted notifier against the in-memory registration store

package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/store"
)

const testType = "pass.com.example.coupon"

type scriptedNotifier struct {
	mu     sync.Mutex
	calls  map[string]int
	topics map[string]bool
	fail   map[string]error
}

func newScriptedNotifier(fail map[string]error) *scriptedNotifier {
	return &scriptedNotifier{calls: map[string]int{}, topics: map[string]bool{}, fail: fail}
}

func (n *scriptedNotifier) Notify(ctx context.Context, topic, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[token]++
	n.topics[topic] = true
	return n.fail[token]
}

func seed(t *testing.T, s *store.MemoryStore, passKey string, tokens ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutRecord(ctx, &store.PassRecord{TypeID: testType, PassKey: passKey, Data: []byte(`{}`)}))
	for i, tok := range tokens {
		_, err := s.UpsertRegistration(ctx, store.DeviceRegistration{
			DeviceID: fmt.Sprintf("device-%d", i), TypeID: testType, PassKey: passKey, PushToken: tok,
		})
		require.NoError(t, err)
	}
}

func TestDispatch_OnePerDevice(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "coupon-001", "t0", "t1", "t2")
	seed(t, s, "coupon-002", "other")
	n := newScriptedNotifier(nil)

	res, err := NewDispatcher(s, n, Options{Concurrency: 2}).Dispatch(context.Background(), testType, "coupon-001")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, map[string]int{"t0": 1, "t1": 1, "t2": 1}, n.calls)
	assert.Equal(t, map[string]bool{testType: true}, n.topics, "topic is the type identifier")
}

func TestDispatch_RejectedTokensAreCounted(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "coupon-001", "good", "expired", "also-good", "unknown")
	n := newScriptedNotifier(map[string]error{
		"expired": fmt.Errorf("410 Unregistered: %w", ErrTokenRejected),
		"unknown": ErrTokenRejected,
	})

	res, err := NewDispatcher(s, n, Options{}).Dispatch(context.Background(), testType, "coupon-001")
	require.NoError(t, err, "per-token failures do not abort the batch")

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.ElementsMatch(t, []string{"device-1", "device-3"}, res.Rejected)
}

func TestDispatch_ProviderFailureIsFatal(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "coupon-001", "t0")
	down := errors.New("dial tcp: connection refused")
	n := newScriptedNotifier(map[string]error{"t0": down})

	_, err := NewDispatcher(s, n, Options{Concurrency: 1}).Dispatch(context.Background(), testType, "coupon-001")
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, n.calls["t0"], "no internal retry")
}

func TestDispatch_NoDevices(t *testing.T) {
	s := store.NewMemoryStore()
	n := newScriptedNotifier(nil)

	res, err := NewDispatcher(s, n, Options{}).Dispatch(context.Background(), testType, "nobody")
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, n.calls)
}

type failingLister struct{}

func (failingLister) ListDevices(ctx context.Context, typeID, passKey string) ([]store.DeviceRegistration, error) {
	return nil, errors.New("database is locked")
}

func TestDispatch_StoreErrorPropagates(t *testing.T) {
	_, err := NewDispatcher(failingLister{}, LogNotifier{}, Options{}).Dispatch(context.Background(), testType, "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	var perr *ProviderError
	assert.False(t, errors.As(err, &perr), "store failures are not provider failures")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), testType, "abcdef0123456789"))
	assert.Equal(t, "****", redact("short"))
	assert.Equal(t, "abcd…6789", redact("abcdef0123456789"))
}
