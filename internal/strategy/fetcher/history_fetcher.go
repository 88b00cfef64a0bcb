package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

// OKX 单次最多返回 300 根（candles）/ 100 根（history-candles）
const maxPerRequest = 300

// HistoryKlineFetcher 历史K线数据获取器
type HistoryKlineFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// OKXHistoryKlineResponse OKX历史K线API响应
type OKXHistoryKlineResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// NewHistoryKlineFetcher 创建历史K线获取器，restEndpoint 形如 https://www.okx.com
func NewHistoryKlineFetcher(restEndpoint, proxy string, timeout time.Duration) *HistoryKlineFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
	}

	// 设置代理
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
		}
	}

	if restEndpoint == "" {
		restEndpoint = "https://www.okx.com"
	}

	return &HistoryKlineFetcher{
		baseURL:    strings.TrimRight(restEndpoint, "/") + "/api/v5/market",
		httpClient: client,
	}
}

// FetchHistoryKlines 获取最近 limit 根已收盘K线，按时间从旧到新排列
func (h *HistoryKlineFetcher) FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error) {
	if limit <= 0 || limit > maxPerRequest {
		limit = maxPerRequest
	}
	bar := types.NormalizeBar(interval)

	requestURL := fmt.Sprintf("%s/candles?instId=%s&bar=%s&limit=%d",
		h.baseURL, url.QueryEscape(symbol), url.QueryEscape(bar), limit)

	zap.L().Debug("📊 获取历史K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", bar),
		zap.Int("limit", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	// 设置请求头
	req.Header.Set("User-Agent", "OKX-Strategy-Fleet/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var okxResponse OKXHistoryKlineResponse
	if err := json.Unmarshal(body, &okxResponse); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %w", err)
	}

	if okxResponse.Code != "0" {
		return nil, fmt.Errorf("OKX API返回错误: code=%s, msg=%s", okxResponse.Code, okxResponse.Msg)
	}

	klines := make([]*types.KLine, 0, len(okxResponse.Data))
	for _, data := range okxResponse.Data {
		// 未收盘的最新一根不进入历史窗口
		if len(data) > 8 && data[8] == "0" {
			continue
		}

		kline, err := parseOKXKlineData(symbol, data, bar)
		if err != nil {
			zap.L().Warn("解析历史K线数据失败", zap.Error(err))
			continue
		}
		klines = append(klines, kline)
	}

	// OKX返回的数据是从新到旧排序，需要反转为从旧到新
	reverseKlines(klines)

	zap.L().Info("✅ 历史K线数据获取完成",
		zap.String("symbol", symbol),
		zap.Int("requested", limit),
		zap.Int("received", len(klines)))

	return klines, nil
}

// parseOKXKlineData 解析OKX K线数据格式
// [ts, open, high, low, close, vol, volCcy, volCcyQuote, confirm]
func parseOKXKlineData(symbol string, data []string, interval string) (*types.KLine, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("K线数据格式不正确")
	}

	timestamp, err := strconv.ParseInt(data[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %w", err)
	}

	open, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return nil, fmt.Errorf("解析开盘价失败: %w", err)
	}

	high, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return nil, fmt.Errorf("解析最高价失败: %w", err)
	}

	low, err := strconv.ParseFloat(data[3], 64)
	if err != nil {
		return nil, fmt.Errorf("解析最低价失败: %w", err)
	}

	closePrice, err := strconv.ParseFloat(data[4], 64)
	if err != nil {
		return nil, fmt.Errorf("解析收盘价失败: %w", err)
	}

	volume := 0.0
	if len(data) > 5 {
		if v, err := strconv.ParseFloat(data[5], 64); err == nil {
			volume = v
		}
	}

	openTime := time.UnixMilli(timestamp)
	return &types.KLine{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(types.BarDuration(interval)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Interval:  interval,
	}, nil
}

// reverseKlines 反转K线数组（从新到旧 → 从旧到新）
func reverseKlines(klines []*types.KLine) {
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
}
