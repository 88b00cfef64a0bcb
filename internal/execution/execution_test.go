package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/pkg/types"
)

func newTestExecutor(t *testing.T, handler http.HandlerFunc) *OKXExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewOKXExecutor(types.OKXConfig{
		RestEndpoint: srv.URL,
		APIKey:       "key",
		SecretKey:    "secret",
		Passphrase:   "pass",
	}, types.NetworkConfig{Timeout: time.Second})
	e.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 123e6, time.UTC) }
	return e
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	var got orderRequest
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/trade/order", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		assert.Equal(t, "2024-05-06T07:08:09.123Z", ts)
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))

		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(ts + "POST" + "/api/v5/trade/order" + string(body)))
		assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("OK-ACCESS-SIGN"))

		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"123","sCode":"0","sMsg":""}]}`))
	})

	res, err := e.PlaceOrder(context.Background(), "BTC-USDT-SWAP", types.OrderSideSell, 2.5, true)
	require.NoError(t, err)
	assert.Equal(t, "123", res.OrderID)
	assert.Equal(t, "2.5", got.Sz)
	assert.Equal(t, "market", got.OrdType)
	assert.True(t, got.ReduceOnly)
}

func TestPlaceOrderRejected(t *testing.T) {
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"1","msg":"Operation failed","data":[{"ordId":"","sCode":"51008","sMsg":"Insufficient margin"}]}`))
	})

	_, err := e.PlaceOrder(context.Background(), "BTC-USDT-SWAP", types.OrderSideBuy, 1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "51008")
}

func TestNotConfigured(t *testing.T) {
	e := NewOKXExecutor(types.OKXConfig{RestEndpoint: "http://127.0.0.1:1"}, types.NetworkConfig{})
	_, err := e.PlaceOrder(context.Background(), "X", types.OrderSideBuy, 1, false)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenPositionAmount(t *testing.T) {
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","pos":"-3"}]}`))
	})

	amt, err := e.OpenPositionAmount(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 3.0, amt)
}

func TestSymbolInfoCached(t *testing.T) {
	var calls atomic.Int32
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT-SWAP","lotSz":"0.1","minSz":"0.1","tickSz":"0.1","ctVal":"0.01"}]}`))
	})

	info, err := e.SymbolInfo(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 0.01, info.ContractSize)
	assert.Equal(t, 0.1, info.LotSize)

	_, err = e.SymbolInfo(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// 100 USDT / (50000 * 0.01) = 0.2 张
	assert.InDelta(t, 0.2, info.Contracts(100, 50000), 1e-9)
	assert.Zero(t, info.Contracts(10, 50000), "below min size")
}

func TestPaperExecutor(t *testing.T) {
	p := NewPaperExecutor()
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, "X", types.OrderSideSell, 1, true)
	assert.Error(t, err, "reduce-only without position")

	res, err := p.PlaceOrder(ctx, "X", types.OrderSideBuy, 2, false)
	require.NoError(t, err)
	assert.Contains(t, res.OrderID, "paper-")

	amt, err := p.OpenPositionAmount(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 2.0, amt)

	_, err = p.PlaceOrder(ctx, "X", types.OrderSideSell, 2, true)
	require.NoError(t, err)
	amt, _ = p.OpenPositionAmount(ctx, "X")
	assert.Zero(t, amt)
}
