package notifier

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

// Interface 通知接口
type Interface interface {
	Notify(title, content string) error
}

// NewFromConfig 按配置选择通知渠道：钉钉优先，其次 PushPlus，都未配置时输出到控制台
func NewFromConfig(cfg *types.Config) Interface {
	if cfg.DingTalk.WebhookURL != "" {
		return NewDingTalkNotifier(cfg.DingTalk.WebhookURL, cfg.DingTalk.Secret)
	}
	if cfg.PushPlus.UserToken != "" {
		return NewPushPlusNotifier(cfg.PushPlus.UserToken, cfg.PushPlus.To)
	}
	zap.L().Info("🔧 未配置推送渠道，使用控制台输出模式")
	return NewConsoleNotifier()
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content) - 4 // 4是边框字符数
	if padding < 0 {
		padding = 0
	}
	return padding
}

// formatDuration 格式化持仓时长为中文描述
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0f秒", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0f分钟", d.Minutes())
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1f小时", d.Hours())
	default:
		return fmt.Sprintf("%.1f天", d.Hours()/24)
	}
}

// sideLabel 持仓方向中文描述
func sideLabel(side types.PositionSide) string {
	switch side {
	case types.PositionLong:
		return "做多"
	case types.PositionShort:
		return "做空"
	default:
		return "空仓"
	}
}

// FormatOpen 开仓通知内容（Markdown）
func FormatOpen(strategyName string, st types.PositionState) (string, string) {
	title := fmt.Sprintf("🟢 开仓 %s %s", st.Symbol, sideLabel(st.Position))

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "- **策略**: %s\n", strategyName)
	fmt.Fprintf(&b, "- **入场价**: %.6g\n", st.EntryPrice)
	if st.StopLossPrice > 0 {
		fmt.Fprintf(&b, "- **止损价**: %.6g\n", st.StopLossPrice)
	}
	if st.TP1Price > 0 {
		fmt.Fprintf(&b, "- **TP1**: %.6g\n", st.TP1Price)
	}
	if st.TP2Price > 0 {
		fmt.Fprintf(&b, "- **TP2**: %.6g\n", st.TP2Price)
	}
	if st.Paper {
		b.WriteString("- **模式**: 模拟仓\n")
	}
	fmt.Fprintf(&b, "\n> 时间: %s", st.OpenedAt.Format("2006-01-02 15:04:05"))
	return title, b.String()
}

// FormatClose 平仓通知内容（Markdown）
func FormatClose(strategyName string, rec types.TradeRecord) (string, string) {
	icon := "🔴"
	if rec.ReturnPct >= 0 {
		icon = "💰"
	}
	title := fmt.Sprintf("%s 平仓 %s %+.2f%%", icon, rec.Symbol, rec.ReturnPct)

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "- **策略**: %s\n", strategyName)
	fmt.Fprintf(&b, "- **方向**: %s\n", sideLabel(rec.Side))
	fmt.Fprintf(&b, "- **入场价**: %.6g\n", rec.EntryPrice)
	fmt.Fprintf(&b, "- **出场价**: %.6g\n", rec.ExitPrice)
	fmt.Fprintf(&b, "- **原因**: %s\n", rec.Reason)
	if !rec.OpenedAt.IsZero() {
		fmt.Fprintf(&b, "- **持仓时长**: %s\n", formatDuration(rec.ClosedAt.Sub(rec.OpenedAt)))
	}
	if rec.Paper {
		b.WriteString("- **模式**: 模拟仓\n")
	}
	fmt.Fprintf(&b, "\n> 时间: %s", rec.ClosedAt.Format("2006-01-02 15:04:05"))
	return title, b.String()
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct{}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

// Notify 以边框样式打印到标准输出
func (cn *ConsoleNotifier) Notify(title, content string) error {
	const width = 60
	border := strings.Repeat("═", width-2)

	fmt.Println("╔" + border + "╗")
	fmt.Printf("║ %s%s ║\n", title, strings.Repeat(" ", safePadding(title, width)))
	fmt.Println("╠" + border + "╣")
	for _, line := range strings.Split(content, "\n") {
		fmt.Printf("║ %s%s ║\n", line, strings.Repeat(" ", safePadding(line, width)))
	}
	fmt.Println("╚" + border + "╝")
	fmt.Println()
	return nil
}
