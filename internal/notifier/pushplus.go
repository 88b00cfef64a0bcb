package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const pushPlusEndpoint = "http://www.pushplus.plus/send"

// PushPlusNotifier PushPlus通知器
type PushPlusNotifier struct {
	userToken  string
	to         string // 好友令牌，多人用逗号分隔
	endpoint   string
	httpClient *http.Client
	fallback   Interface
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"`
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

func NewPushPlusNotifier(userToken, to string) *PushPlusNotifier {
	if to != "" {
		zap.L().Info("✅ 已配置PushPlus通知服务（包含好友推送）", zap.String("to", to))
	} else {
		zap.L().Info("✅ 已配置PushPlus通知服务")
	}

	return &PushPlusNotifier{
		userToken: userToken,
		to:        to,
		endpoint:  pushPlusEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		fallback: NewConsoleNotifier(),
	}
}

// Notify 发送 PushPlus markdown 消息，失败时降级为控制台输出并返回错误
func (ppn *PushPlusNotifier) Notify(title, content string) error {
	if err := ppn.sendPushPlusMessage(title, content); err != nil {
		zap.L().Warn("❌ PushPlus发送失败，降级为控制台输出", zap.Error(err))
		_ = ppn.fallback.Notify(title, content)
		return err
	}
	return nil
}

func (ppn *PushPlusNotifier) sendPushPlusMessage(title, content string) error {
	reqData := PushPlusRequest{
		Token:    ppn.userToken,
		Title:    title,
		Content:  content,
		Template: "markdown",
		To:       ppn.to,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("序列化请求数据失败: %w", err)
	}

	resp, err := ppn.httpClient.Post(ppn.endpoint, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	var pushResp PushPlusResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}

	if pushResp.Code != 200 {
		return fmt.Errorf("PushPlus API错误: %s", pushResp.Msg)
	}

	return nil
}
