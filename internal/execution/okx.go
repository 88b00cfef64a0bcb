package execution

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

// ErrNotConfigured 未配置 API Key
var ErrNotConfigured = errors.New("okx api key not configured")

// OKXExecutor 通过 OKX v5 REST 接口下单（永续合约，全仓单向持仓）
type OKXExecutor struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	now        func() time.Time

	mu          sync.RWMutex
	instruments map[string]types.SymbolInfo
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewOKXExecutor 创建 OKX 下单器
func NewOKXExecutor(cfg types.OKXConfig, network types.NetworkConfig) *OKXExecutor {
	timeout := network.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if network.Proxy != "" {
		if proxyURL, err := url.Parse(network.Proxy); err == nil {
			client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	zap.L().Info("✅ 初始化OKX下单器",
		zap.String("endpoint", cfg.RestEndpoint),
		zap.Bool("has_key", cfg.APIKey != ""))

	return &OKXExecutor{
		httpClient:  client,
		baseURL:     strings.TrimRight(cfg.RestEndpoint, "/"),
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		passphrase:  cfg.Passphrase,
		now:         time.Now,
		instruments: make(map[string]types.SymbolInfo),
	}
}

// sign base64(HMAC-SHA256(secret, timestamp + method + requestPath + body))
func (e *OKXExecutor) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// do 发送请求并解析 OKX 响应外壳，signed 为 true 时附带鉴权头
func (e *OKXExecutor) do(ctx context.Context, method, requestPath string, payload interface{}, signed bool, out interface{}) error {
	if signed && (e.apiKey == "" || e.secretKey == "") {
		return ErrNotConfigured
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		ts := e.now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", e.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", e.sign(ts, method, requestPath, string(body)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", e.passphrase)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var env okxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("解析响应失败(HTTP %d): %w", resp.StatusCode, err)
	}
	if env.Code != "0" {
		return fmt.Errorf("OKX API错误: code=%s, msg=%s, data=%s", env.Code, env.Msg, string(env.Data))
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("解析响应数据失败: %w", err)
		}
	}
	return nil
}

// SetLeverage 设置全仓杠杆
func (e *OKXExecutor) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		leverage = 1
	}
	payload := map[string]string{
		"instId":  symbol,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": "cross",
	}
	if err := e.do(ctx, http.MethodPost, "/api/v5/account/set-leverage", payload, true, nil); err != nil {
		return fmt.Errorf("设置杠杆失败 %s: %w", symbol, err)
	}
	return nil
}

type orderRequest struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	ReduceOnly bool   `json:"reduceOnly,omitempty"`
}

type orderAck struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

// PlaceOrder 市价单，reduceOnly 用于平仓
func (e *OKXExecutor) PlaceOrder(ctx context.Context, symbol, side string, quantity float64, reduceOnly bool) (types.OrderResult, error) {
	if quantity <= 0 {
		return types.OrderResult{}, fmt.Errorf("下单数量无效: %v", quantity)
	}

	req := orderRequest{
		InstID:     symbol,
		TdMode:     "cross",
		Side:       side,
		OrdType:    "market",
		Sz:         strconv.FormatFloat(quantity, 'f', -1, 64),
		ReduceOnly: reduceOnly,
	}

	var acks []orderAck
	if err := e.do(ctx, http.MethodPost, "/api/v5/trade/order", req, true, &acks); err != nil {
		return types.OrderResult{}, fmt.Errorf("下单失败 %s: %w", symbol, err)
	}
	if len(acks) == 0 {
		return types.OrderResult{}, fmt.Errorf("下单失败 %s: 响应为空", symbol)
	}
	if acks[0].SCode != "" && acks[0].SCode != "0" {
		return types.OrderResult{}, fmt.Errorf("下单被拒绝 %s: sCode=%s, sMsg=%s", symbol, acks[0].SCode, acks[0].SMsg)
	}

	zap.L().Info("📤 订单已提交",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.Bool("reduce_only", reduceOnly),
		zap.String("order_id", acks[0].OrdID))

	return types.OrderResult{
		OrderID:  acks[0].OrdID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
	}, nil
}

// OpenPositionAmount 当前持仓张数（绝对值）
func (e *OKXExecutor) OpenPositionAmount(ctx context.Context, symbol string) (float64, error) {
	var positions []struct {
		InstID string `json:"instId"`
		Pos    string `json:"pos"`
	}
	path := "/api/v5/account/positions?instId=" + url.QueryEscape(symbol)
	if err := e.do(ctx, http.MethodGet, path, nil, true, &positions); err != nil {
		return 0, fmt.Errorf("查询持仓失败 %s: %w", symbol, err)
	}

	total := 0.0
	for _, p := range positions {
		if p.InstID != symbol || p.Pos == "" {
			continue
		}
		v, err := strconv.ParseFloat(p.Pos, 64)
		if err != nil {
			return 0, fmt.Errorf("解析持仓数量失败: %w", err)
		}
		total += v
	}
	return math.Abs(total), nil
}

// SymbolInfo 交易对精度规则，结果缓存
func (e *OKXExecutor) SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	e.mu.RLock()
	info, ok := e.instruments[symbol]
	e.mu.RUnlock()
	if ok {
		return info, nil
	}

	var instruments []struct {
		InstID string `json:"instId"`
		LotSz  string `json:"lotSz"`
		MinSz  string `json:"minSz"`
		TickSz string `json:"tickSz"`
		CtVal  string `json:"ctVal"`
	}
	path := "/api/v5/public/instruments?instType=SWAP&instId=" + url.QueryEscape(symbol)
	if err := e.do(ctx, http.MethodGet, path, nil, false, &instruments); err != nil {
		return types.SymbolInfo{}, fmt.Errorf("查询交易对失败 %s: %w", symbol, err)
	}
	if len(instruments) == 0 {
		return types.SymbolInfo{}, fmt.Errorf("交易对不存在: %s", symbol)
	}

	in := instruments[0]
	info = types.SymbolInfo{
		Symbol:       symbol,
		LotSize:      parseOr(in.LotSz, 1),
		MinSize:      parseOr(in.MinSz, 1),
		TickSize:     parseOr(in.TickSz, 0),
		ContractSize: parseOr(in.CtVal, 1),
	}

	e.mu.Lock()
	e.instruments[symbol] = info
	e.mu.Unlock()
	return info, nil
}

func parseOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
