package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/pkg/types"
)

const candleMsg = `{"arg":{"channel":"candle15m","instId":"BTC-USDT-SWAP"},"data":[["1700000000000","100","105","95","102","12.5","1250","1250","%s"]]}`

func testConfig(endpoint string) types.WebSocketConfig {
	return types.WebSocketConfig{
		OKXEndpoint:       endpoint,
		ReconnectInterval: 20 * time.Millisecond,
		PingInterval:      50 * time.Millisecond,
		HeartbeatTimeout:  time.Second,
		EscalateAfter:     3,
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestParseCandles(t *testing.T) {
	events, err := ParseCandles([]byte(strings.Replace(candleMsg, "%s", "1", 1)))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.Closed)
	assert.Equal(t, "BTC-USDT-SWAP", ev.Symbol)
	assert.Equal(t, "15m", ev.Interval)
	assert.Equal(t, 102.0, ev.Close)
	assert.Equal(t, 12.5, ev.Volume)
	assert.Equal(t, time.UnixMilli(1700000000000), ev.OpenTime)
	assert.Equal(t, ev.OpenTime.Add(15*time.Minute), ev.CloseTime)

	events, err = ParseCandles([]byte(strings.Replace(candleMsg, "%s", "0", 1)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Closed)
}

func TestParseCandlesIgnoresEvents(t *testing.T) {
	events, err := ParseCandles([]byte(`{"event":"subscribe","arg":{"channel":"candle15m","instId":"BTC-USDT-SWAP"}}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = ParseCandles([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`))
	assert.ErrorIs(t, err, ErrSubscriptionRejected)

	_, err = ParseCandles([]byte(`not json`))
	assert.Error(t, err)
}

func TestSubscribeDeliversAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		var sub OKXSubscription
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if len(sub.Args) != 1 || sub.Args[0].Channel != "candle15m" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(strings.Replace(candleMsg, "%s", "0", 1)))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(strings.Replace(candleMsg, "%s", "1", 1)))
		// 主动断开，客户端应重连
	}))
	defer srv.Close()

	client := NewClient("", testConfig(wsURL(srv)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Subscribe(ctx, "BTC-USDT-SWAP", "15m")
	require.NoError(t, err)

	var got []types.CandleEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 4 {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	assert.False(t, got[0].Closed)
	assert.True(t, got[1].Closed)
	assert.GreaterOrEqual(t, connections.Load(), int32(2))

	cancel()
	for range ch {
	}
	assert.Equal(t, StateDisconnected, client.State("BTC-USDT-SWAP", "15m"))
}

func TestEscalatesOncePerOutage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsURL(srv)
	srv.Close()

	var escalations atomic.Int32
	client := NewClient("", testConfig(endpoint), func(symbol string, failures int, lastErr error) {
		assert.Equal(t, "BTC-USDT-SWAP", symbol)
		assert.GreaterOrEqual(t, failures, 3)
		escalations.Add(1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	ch, err := client.Subscribe(ctx, "BTC-USDT-SWAP", "15m")
	require.NoError(t, err)
	for range ch {
	}

	assert.Equal(t, int32(1), escalations.Load())
}

func TestRejectedSubscriptionReconnectsAndEscalates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)

		var sub OKXSubscription
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","code":"60018","msg":"bad instId"}`))
		// 保持连接并回应心跳，只有客户端自己断开才会结束
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "ping" {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		}
	}))
	defer srv.Close()

	var escalations atomic.Int32
	var lastErr atomic.Value
	client := NewClient("", testConfig(wsURL(srv)), func(symbol string, failures int, err error) {
		escalations.Add(1)
		lastErr.Store(err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Subscribe(ctx, "BAD-USDT-SWAP", "15m")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return escalations.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, connections.Load(), int32(3))
	assert.ErrorIs(t, lastErr.Load().(error), ErrSubscriptionRejected)

	cancel()
	for range ch {
	}
	assert.Equal(t, int32(1), escalations.Load(), "one alarm per outage")
}

func TestSubscribeValidates(t *testing.T) {
	client := NewClient("", testConfig("ws://127.0.0.1:1"), nil)
	_, err := client.Subscribe(context.Background(), "", "15m")
	assert.Error(t, err)
}
