package notifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/pkg/types"
)

func TestDingTalkSignsAndSends(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)

	var got DingTalkMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "abc", q.Get("access_token"))
		assert.Equal(t, strconv.FormatInt(fixed.UnixMilli(), 10), q.Get("timestamp"))

		mac := hmac.New(sha256.New, []byte("s3cret"))
		mac.Write([]byte(q.Get("timestamp") + "\ns3cret"))
		assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), q.Get("sign"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	n := NewDingTalkNotifier(srv.URL+"/robot/send?access_token=abc", "s3cret")
	n.now = func() time.Time { return fixed }

	require.NoError(t, n.Notify("title", "body"))
	assert.Equal(t, "markdown", got.MsgType)
	assert.Equal(t, "title", got.Markdown.Title)
	assert.Equal(t, "body", got.Markdown.Text)
}

func TestDingTalkAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("sign"))
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer srv.Close()

	n := NewDingTalkNotifier(srv.URL, "")
	err := n.Notify("t", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "310000")
}

func TestPushPlusSends(t *testing.T) {
	var got PushPlusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"code":200,"msg":"ok","data":"x"}`))
	}))
	defer srv.Close()

	n := NewPushPlusNotifier("tok", "friend")
	n.endpoint = srv.URL

	require.NoError(t, n.Notify("t", "c"))
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "friend", got.To)
	assert.Equal(t, "markdown", got.Template)

	n.endpoint = "http://127.0.0.1:1"
	assert.Error(t, n.Notify("t", "c"))
}

func TestNewFromConfigPrecedence(t *testing.T) {
	cfg := &types.Config{}
	assert.IsType(t, &ConsoleNotifier{}, NewFromConfig(cfg))

	cfg.PushPlus.UserToken = "tok"
	assert.IsType(t, &PushPlusNotifier{}, NewFromConfig(cfg))

	cfg.DingTalk.WebhookURL = "https://oapi.dingtalk.com/robot/send"
	assert.IsType(t, &DingTalkNotifier{}, NewFromConfig(cfg))
}

func TestFormatClose(t *testing.T) {
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	title, content := FormatClose("trend-a", types.TradeRecord{
		Symbol: "BTC-USDT-SWAP", Side: types.PositionLong,
		EntryPrice: 100, ExitPrice: 98, ReturnPct: -2, Reason: types.ExitStopLoss,
		Paper: true, OpenedAt: opened, ClosedAt: opened.Add(90 * time.Minute),
	})

	assert.Contains(t, title, "-2.00%")
	assert.Contains(t, content, "STOP_LOSS")
	assert.Contains(t, content, "1.5小时")
	assert.Contains(t, content, "模拟仓")

	title, _ = FormatOpen("trend-a", types.PositionState{Symbol: "ETH-USDT-SWAP", Position: types.PositionShort, EntryPrice: 10})
	assert.Contains(t, title, "做空")
}

func TestSafePadding(t *testing.T) {
	assert.Equal(t, 0, safePadding("一个很长很长很长的标题", 5))
	assert.Equal(t, 4, safePadding("你好", 10))
}
