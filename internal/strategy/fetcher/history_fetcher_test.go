package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHistoryKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/candles", r.URL.Path)
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		assert.Equal(t, "1H", r.URL.Query().Get("bar"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))

		// 从新到旧，第一根未收盘
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700007200000","103","104","102","103.5","7","0","0","0"],
			["1700003600000","101","104","100","103","9","0","0","1"],
			["1700000000000","100","102","99","101","8","0","0","1"]
		]}`))
	}))
	defer srv.Close()

	f := NewHistoryKlineFetcher(srv.URL, "", time.Second)
	klines, err := f.FetchHistoryKlines(context.Background(), "BTC-USDT-SWAP", "1h", 200)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	assert.Equal(t, time.UnixMilli(1700000000000), klines[0].OpenTime)
	assert.Equal(t, 101.0, klines[0].Close)
	assert.Equal(t, 9.0, klines[1].Volume)
	assert.Equal(t, klines[1].OpenTime.Add(time.Hour), klines[1].CloseTime)
}

func TestFetchHistoryKlinesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusOK, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`},
		{"http error", http.StatusInternalServerError, `oops`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := NewHistoryKlineFetcher(srv.URL, "", time.Second)
			_, err := f.FetchHistoryKlines(context.Background(), "X", "15m", 10)
			assert.Error(t, err)
		})
	}
}
