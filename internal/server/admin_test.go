// ABOUTME: Tests for the admin API: JWT gate, record updates with push fan-out, save links
// ABOUTME: Uses a recording notifier so push counts can be asserted

package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/auth"
	"github.com/2389/wallet-gateway/internal/push"
	"github.com/2389/wallet-gateway/internal/savelink"
	"github.com/2389/wallet-gateway/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const couponJSON = `{
	"description": "Spring sale",
	"coupon": {
		"code": "SPRING20",
		"offerTitle": "20% off",
		"qrCodeUrl": "https://example.com/redeem/SPRING20"
	}
}`

type recordingNotifier struct {
	mu     sync.Mutex
	tokens []string
	fail   error
}

func (n *recordingNotifier) Notify(ctx context.Context, topic, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, token)
	return n.fail
}

func adminToken(t *testing.T) string {
	t.Helper()
	v, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	tok, err := v.Generate("ops@example.com", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func withAdmin(t *testing.T, n push.Notifier) func(*Deps) {
	return func(d *Deps) {
		v, err := auth.NewJWTVerifier([]byte(testSecret))
		require.NoError(t, err)
		d.Verifier = v
		d.Dispatcher = push.NewDispatcher(d.Store, n, push.Options{Concurrency: 2})
		d.PushTimeout = time.Second
	}
}

func TestAdmin_DisabledWithoutVerifier(t *testing.T) {
	f := newFixture(t)
	rec := f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), couponJSON)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := newFixture(t, withAdmin(t, &recordingNotifier{}))

	rec := f.do("PUT", "/admin/records/"+passType+"/coupon-001", "", couponJSON)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do("PUT", "/admin/records/"+passType+"/coupon-001", "Bearer not-a-jwt", couponJSON)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do("PUT", "/admin/records/"+passType+"/coupon-001", "ApplePass "+passToken, couponJSON)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "device secrets do not open the admin API")
}

func TestAdmin_PutRecordDispatchesPush(t *testing.T) {
	n := &recordingNotifier{}
	f := newFixture(t, withAdmin(t, n))
	ctx := context.Background()

	f.putRecord(t, passType, "coupon-001", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, dev := range []string{"device-a", "device-b"} {
		rec := f.do("POST", registrationURL(dev, passType, "coupon-001"), "ApplePass "+passToken, `{"pushToken":"tok-`+dev+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), couponJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RecordResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, passType, resp.TypeID)
	assert.Equal(t, "coupon-001", resp.PassKey)
	require.NotNil(t, resp.Push)
	assert.Equal(t, 2, resp.Push.Sent)
	assert.Empty(t, resp.PushError)
	assert.ElementsMatch(t, []string{"tok-device-a", "tok-device-b"}, n.tokens)

	stored, err := f.st.GetRecord(ctx, passType, "coupon-001")
	require.NoError(t, err)
	assert.JSONEq(t, couponJSON, string(stored.Data))
	assert.True(t, stored.UpdatedAt.After(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), "update bumps the timestamp")

	rec = f.do("GET", "/v1/devices/device-a/registrations/"+passType+"?passesUpdatedSince=2026-01-01T00:00:00.000Z", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "the device sees the change on its next list")
}

func TestAdmin_PutRecordValidates(t *testing.T) {
	f := newFixture(t, withAdmin(t, &recordingNotifier{}))

	rec := f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), `{"coupon":{"code":"X"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "coupon.offerTitle")

	rec = f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("PUT", "/admin/records/"+orderType+"/order-1", adminToken(t), couponJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "order types validate as orders")

	rec = f.do("PUT", "/admin/records/pass.com.other/coupon-001", adminToken(t), couponJSON)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.st.GetRecord(context.Background(), passType, "coupon-001")
	assert.ErrorIs(t, err, store.ErrNotFound, "invalid records are not stored")
}

func TestAdmin_PutRecordReportsPushFailure(t *testing.T) {
	n := &recordingNotifier{fail: errors.New("connection refused")}
	f := newFixture(t, withAdmin(t, n))
	f.putRecord(t, passType, "coupon-001", time.Time{})
	rec := f.do("POST", registrationURL("device-a", passType, "coupon-001"), "ApplePass "+passToken, `{"pushToken":"tok"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), couponJSON)
	require.Equal(t, http.StatusOK, rec.Code, "the record is stored even when push fails")

	var resp RecordResponse
	decodeJSON(t, rec, &resp)
	assert.Contains(t, resp.PushError, "connection refused")
}

func TestAdmin_GetRecord(t *testing.T) {
	f := newFixture(t, withAdmin(t, &recordingNotifier{}))

	rec := f.do("GET", "/admin/records/"+passType+"/coupon-001", adminToken(t), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, f.do("PUT", "/admin/records/"+passType+"/coupon-001", adminToken(t), couponJSON).Code)

	rec = f.do("GET", "/admin/records/"+passType+"/coupon-001", adminToken(t), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RecordResponse
	decodeJSON(t, rec, &resp)
	assert.JSONEq(t, couponJSON, string(resp.Data))
	assert.NotEmpty(t, resp.UpdatedAt)
}

func TestAdmin_Push(t *testing.T) {
	n := &recordingNotifier{}
	f := newFixture(t, withAdmin(t, n))
	f.putRecord(t, passType, "coupon-001", time.Time{})
	rec := f.do("POST", registrationURL("device-a", passType, "coupon-001"), "ApplePass "+passToken, `{"pushToken":"tok"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do("POST", "/admin/push/"+passType+"/coupon-001", adminToken(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":1,"failed":0}`, rec.Body.String())

	rec = f.do("POST", "/admin/push/"+passType+"/coupon-404", adminToken(t), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n.fail = errors.New("provider down")
	rec = f.do("POST", "/admin/push/"+passType+"/coupon-001", adminToken(t), "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdmin_SaveLinks(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	issuer, err := savelink.NewIssuer("3388000000012345678", &savelink.Credentials{
		ClientEmail: "wallet@example.iam.gserviceaccount.com",
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	}, nil)
	require.NoError(t, err)

	f := newFixture(t, withAdmin(t, &recordingNotifier{}), func(d *Deps) { d.SaveLinks = issuer })

	rec := f.do("POST", "/admin/save-links", adminToken(t), `{"saveType":"offerObjects","objectSuffix":"coupon-001","classSuffix":"spring"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.True(t, strings.HasPrefix(resp["url"], savelink.URLPrefix))

	rec = f.do("POST", "/admin/save-links", adminToken(t), `{"saveType":"loyaltyObjects","objectSuffix":"a","classSuffix":"b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/admin/save-links", adminToken(t), `{"objectSuffix":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
