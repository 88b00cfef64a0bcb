package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	fallback   Interface
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkNotifier(webhookURL, secret string) *DingTalkNotifier {
	if secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		fallback: NewConsoleNotifier(),
		now:      time.Now,
	}
}

// Notify 发送钉钉 Markdown 消息，失败时降级为控制台输出并返回错误
func (dtn *DingTalkNotifier) Notify(title, content string) error {
	if err := dtn.sendDingTalkMessage(title, content); err != nil {
		zap.L().Warn("❌ 钉钉发送失败，降级为控制台输出", zap.Error(err))
		_ = dtn.fallback.Notify(title, content)
		return err
	}
	return nil
}

// generateSignature 生成钉钉加签: base64(HMAC-SHA256(secret, timestamp + "\n" + secret))
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() string {
	if dtn.secret == "" {
		return dtn.webhookURL
	}

	timestamp := dtn.now().UnixMilli()
	signature := dtn.generateSignature(timestamp)

	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, url.QueryEscape(signature))
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(title, content string) error {
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false,
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	resp, err := dtn.httpClient.Post(dtn.buildSignedURL(), "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}

	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	return nil
}
