package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

// State 连接状态
type State int

const (
	StateDisconnected State = iota
	StateReconnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// EscalateFunc 连续重连失败达到阈值时回调，每次断线只触发一次
type EscalateFunc func(symbol string, failures int, lastErr error)

// ErrSubscriptionRejected 交易所拒绝订阅（例如 instId 无效），按断线处理
var ErrSubscriptionRejected = errors.New("订阅被拒绝")

// OKXKlineResponse OKX K线数据推送
type OKXKlineResponse struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

type subscriptionArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// OKXSubscription OKX订阅消息
type OKXSubscription struct {
	Op   string            `json:"op"`
	Args []subscriptionArg `json:"args"`
}

// Client 行情流客户端。每次 Subscribe 建立一条独立连接，由一个 goroutine 负责读取和重连。
type Client struct {
	endpoint string
	proxy    string
	config   types.WebSocketConfig
	escalate EscalateFunc

	mu     sync.RWMutex
	states map[string]State
}

// NewClient 创建行情流客户端
func NewClient(proxy string, config types.WebSocketConfig, escalate EscalateFunc) *Client {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 10 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 20 * time.Second
	}
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = 30 * time.Second
	}
	if config.EscalateAfter <= 0 {
		config.EscalateAfter = 5
	}

	return &Client{
		endpoint: config.OKXEndpoint,
		proxy:    proxy,
		config:   config,
		escalate: escalate,
		states:   make(map[string]State),
	}
}

// Subscribe 订阅单个交易对的K线，返回的通道在 ctx 取消后关闭
func (c *Client) Subscribe(ctx context.Context, symbol, interval string) (<-chan types.CandleEvent, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("symbol 和 interval 不能为空")
	}

	out := make(chan types.CandleEvent, 64)
	go c.run(ctx, symbol, interval, out)
	return out, nil
}

// State 返回交易对当前的连接状态
func (c *Client) State(symbol, interval string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[subKey(symbol, interval)]
}

func subKey(symbol, interval string) string {
	return symbol + "|" + types.NormalizeBar(interval)
}

func (c *Client) setState(symbol, interval string, s State) {
	c.mu.Lock()
	c.states[subKey(symbol, interval)] = s
	c.mu.Unlock()
}

// run 连接状态机：Connected → Disconnected → Reconnecting → Connected
func (c *Client) run(ctx context.Context, symbol, interval string, out chan<- types.CandleEvent) {
	defer close(out)
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("WebSocket读取panic", zap.String("symbol", symbol), zap.Any("error", r))
		}
	}()
	defer c.setState(symbol, interval, StateDisconnected)

	failures := 0
	escalated := false

	for {
		c.setState(symbol, interval, StateReconnecting)

		conn, err := c.connect(ctx, symbol, interval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			zap.L().Warn("⚠️ WebSocket连接失败",
				zap.String("symbol", symbol),
				zap.Int("failures", failures),
				zap.Error(err))
			c.maybeEscalate(symbol, failures, &escalated, err)

			if !sleepCtx(ctx, c.config.ReconnectInterval) {
				return
			}
			continue
		}

		c.setState(symbol, interval, StateConnected)
		zap.L().Info("✅ WebSocket连接建立成功",
			zap.String("symbol", symbol),
			zap.String("interval", interval))

		err = c.readLoop(ctx, conn, interval, out)
		c.setState(symbol, interval, StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrSubscriptionRejected) {
			// 连上但订阅失败不算恢复
			failures++
			c.maybeEscalate(symbol, failures, &escalated, err)
		} else {
			failures = 0
			escalated = false
		}
		zap.L().Warn("🔌 WebSocket断开，准备重连",
			zap.String("symbol", symbol),
			zap.Duration("backoff", c.config.ReconnectInterval),
			zap.Error(err))

		if !sleepCtx(ctx, c.config.ReconnectInterval) {
			return
		}
	}
}

// maybeEscalate 连续失败达到阈值时告警，同一次断线只告警一次
func (c *Client) maybeEscalate(symbol string, failures int, escalated *bool, err error) {
	if failures < c.config.EscalateAfter || *escalated {
		return
	}
	*escalated = true
	zap.L().Error("🚨 WebSocket连续重连失败",
		zap.String("symbol", symbol),
		zap.Int("failures", failures),
		zap.Error(err))
	if c.escalate != nil {
		c.escalate(symbol, failures, err)
	}
}

// connect 建立连接并发送订阅
func (c *Client) connect(ctx context.Context, symbol, interval string) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return nil, fmt.Errorf("解析代理URL失败: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.HeartbeatTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket连接失败: %w", err)
	}

	subscription := OKXSubscription{
		Op:   "subscribe",
		Args: []subscriptionArg{{Channel: "candle" + types.NormalizeBar(interval), InstID: symbol}},
	}
	if err := conn.WriteJSON(subscription); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("发送订阅消息失败: %w", err)
	}

	return conn, nil
}

// readLoop 读取推送直到连接出错或 ctx 取消；超过心跳超时未收到任何消息视为断线
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, interval string, out chan<- types.CandleEvent) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(connCtx, conn, &writeMu)
	}()

	// ctx 取消时关闭连接以打断阻塞的读
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	defer wg.Wait()
	defer cancel()

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.HeartbeatTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()

		if string(message) == "pong" {
			continue
		}

		events, err := ParseCandles(message)
		if errors.Is(err, ErrSubscriptionRejected) {
			return err
		}
		if err != nil {
			zap.L().Warn("解析K线数据失败", zap.Error(err))
			continue
		}
		for _, ev := range events {
			if ev.Interval == "" {
				ev.Interval = interval
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// pingLoop 心跳循环，OKX 以文本 "ping" / "pong" 保活
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			writeMu.Unlock()
			if err != nil {
				zap.L().Warn("发送心跳失败", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// ParseCandles 解析一条 OKX 推送。订阅回执与非K线频道返回空结果。
func ParseCandles(message []byte) ([]types.CandleEvent, error) {
	var response OKXKlineResponse
	if err := json.Unmarshal(message, &response); err != nil {
		return nil, err
	}

	if response.Event == "error" {
		return nil, fmt.Errorf("%w: code=%s, msg=%s", ErrSubscriptionRejected, response.Code, response.Msg)
	}
	if response.Event != "" || !strings.HasPrefix(response.Arg.Channel, "candle") {
		return nil, nil
	}

	interval := strings.TrimPrefix(response.Arg.Channel, "candle")
	events := make([]types.CandleEvent, 0, len(response.Data))
	for _, data := range response.Data {
		ev, err := parseOKXKlineData(response.Arg.InstID, data, interval)
		if err != nil {
			zap.L().Warn("解析单条K线数据失败", zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseOKXKlineData 解析OKX K线数据格式
// [ts, open, high, low, close, vol, volCcy, volCcyQuote, confirm]
func parseOKXKlineData(symbol string, data []string, interval string) (types.CandleEvent, error) {
	if len(data) < 6 {
		return types.CandleEvent{}, fmt.Errorf("K线数据格式不正确")
	}

	ts, err := strconv.ParseInt(data[0], 10, 64)
	if err != nil {
		return types.CandleEvent{}, fmt.Errorf("解析开盘时间失败: %w", err)
	}

	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(data[i+1], 64)
		if err != nil {
			return types.CandleEvent{}, fmt.Errorf("解析K线字段%d失败: %w", i+1, err)
		}
		values[i] = v
	}

	closed := len(data) > 8 && data[8] == "1"
	openTime := time.UnixMilli(ts)

	return types.CandleEvent{
		KLine: types.KLine{
			Symbol:    symbol,
			OpenTime:  openTime,
			CloseTime: openTime.Add(types.BarDuration(interval)),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
			Interval:  interval,
		},
		Closed:    closed,
		Timestamp: time.Now(),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
