package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

// SentimentFetcher 恐惧贪婪指数获取器
type SentimentFetcher struct {
	url        string
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
}

// fngResponse alternative.me 恐惧贪婪指数响应
type fngResponse struct {
	Name string `json:"name"`
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

// NewSentimentFetcher 创建恐惧贪婪指数获取器
func NewSentimentFetcher(sentimentURL string, networkConfig types.NetworkConfig) *SentimentFetcher {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	// 如果配置了代理，则使用代理
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	return &SentimentFetcher{
		url:      sentimentURL,
		attempts: 3,
		backoff:  time.Second,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// FearGreed 获取当前恐惧贪婪指数（0-100），失败时重试
func (f *SentimentFetcher) FearGreed(ctx context.Context) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			zap.L().Info("🔄 重试获取情绪指数", zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * f.backoff):
			}
		}

		value, err := f.fetchOnce(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = fmt.Errorf("第%d次尝试: %w", attempt, err)
	}

	return 0, lastErr
}

func (f *SentimentFetcher) fetchOnce(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP状态码错误: %d", resp.StatusCode)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return 0, fmt.Errorf("读取响应失败: %w", err)
	}

	var apiResp fngResponse
	if err := json.Unmarshal(body.Bytes(), &apiResp); err != nil {
		return 0, fmt.Errorf("解析API响应失败: %w", err)
	}
	if apiResp.Metadata.Error != nil {
		return 0, fmt.Errorf("API返回错误: %v", apiResp.Metadata.Error)
	}
	if len(apiResp.Data) == 0 {
		return 0, fmt.Errorf("API返回空数据")
	}

	value, err := strconv.Atoi(apiResp.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("解析指数失败: %w", err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("指数超出范围: %d", value)
	}

	zap.L().Debug("📊 获取到恐惧贪婪指数",
		zap.Int("value", value),
		zap.String("classification", apiResp.Data[0].Classification))
	return value, nil
}
