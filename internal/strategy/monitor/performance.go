package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/internal/strategy/engine"
	"okx-strategy-fleet/pkg/types"
)

// PerformanceMetrics 由已平仓交易聚合出的绩效指标
type PerformanceMetrics struct {
	TradeCount   int     `json:"trade_count"`
	MeanReturn   float64 `json:"mean_return"`   // 平均单笔收益率（%）
	ProfitFactor float64 `json:"profit_factor"` // 盈利总和 / 亏损绝对值总和，无亏损时为 +Inf
	WinRate      float64 `json:"win_rate"`      // 0-100
	TotalReturn  float64 `json:"total_return"`
}

// MarshalJSON 无穷大的盈亏比编码为 "inf"
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetrics
	out := struct {
		alias
		ProfitFactor interface{} `json:"profit_factor"`
	}{alias: alias(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	}
	return json.Marshal(out)
}

// Compute 聚合交易记录。没有交易时全部为 0；
// 只有盈利时 ProfitFactor 为 +Inf，调用方自行截断。
func Compute(trades []types.TradeRecord) PerformanceMetrics {
	m := PerformanceMetrics{TradeCount: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var gains, losses float64
	wins := 0
	for _, t := range trades {
		m.TotalReturn += t.ReturnPct
		switch {
		case t.ReturnPct > 0:
			gains += t.ReturnPct
			wins++
		case t.ReturnPct < 0:
			losses += -t.ReturnPct
		}
	}

	m.MeanReturn = m.TotalReturn / float64(len(trades))
	m.WinRate = float64(wins) / float64(len(trades)) * 100

	switch {
	case losses > 0:
		m.ProfitFactor = gains / losses
	case gains > 0:
		m.ProfitFactor = math.Inf(1)
	}
	return m
}

// TradeSource 交易记录来源
type TradeSource interface {
	ListTrades(ctx context.Context, strategyID string) ([]types.TradeRecord, error)
}

// StatsSource 运行中策略的统计来源
type StatsSource interface {
	Stats() []engine.Stats
}

// Row 报告中的一行
type Row struct {
	Stats   engine.Stats
	Metrics PerformanceMetrics
}

// Reporter 周期性输出舰队运行统计与绩效
type Reporter struct {
	stats    StatsSource
	trades   TradeSource
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReporter 创建报告器，interval 为 0 时默认 5 分钟
func NewReporter(stats StatsSource, trades TradeSource, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reporter{
		stats:    stats,
		trades:   trades,
		interval: interval,
	}
}

// Start 启动报告循环
func (r *Reporter) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	zap.L().Info("📊 启动策略性能监控器", zap.Duration("interval", r.interval))

	r.wg.Add(1)
	go r.reportLoop()
}

func (r *Reporter) reportLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.generateReport()
		}
	}
}

// Collect 汇总每个运行中策略的统计与绩效，按策略名称排序
func (r *Reporter) Collect(ctx context.Context) []Row {
	stats := r.stats.Stats()
	rows := make([]Row, 0, len(stats))
	for _, s := range stats {
		row := Row{Stats: s}
		if r.trades != nil {
			trades, err := r.trades.ListTrades(ctx, s.StrategyID)
			if err != nil {
				zap.L().Warn("获取交易记录失败",
					zap.String("strategy", s.Name),
					zap.Error(err))
			} else {
				row.Metrics = Compute(trades)
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Stats.Name < rows[j].Stats.Name })
	return rows
}

// generateReport 生成性能报告
func (r *Reporter) generateReport() {
	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	rows := r.Collect(ctx)
	var klines, signals int64
	positions := 0
	for _, row := range rows {
		klines += row.Stats.ProcessedKlines
		signals += row.Stats.DetectedSignals
		positions += row.Stats.OpenPositions
	}

	zap.L().Info("📈 舰队运行报告",
		zap.Int("strategies", len(rows)),
		zap.Int64("processed_klines", klines),
		zap.Int64("detected_signals", signals),
		zap.Int("open_positions", positions))

	for _, row := range rows {
		zap.L().Info("📊 策略绩效",
			zap.String("strategy", row.Stats.Name),
			zap.Int32("active_symbols", row.Stats.ActiveSymbols),
			zap.Int("open_positions", row.Stats.OpenPositions),
			zap.Int("trades", row.Metrics.TradeCount),
			zap.Float64("mean_return", row.Metrics.MeanReturn),
			zap.Float64("profit_factor", row.Metrics.ProfitFactor),
			zap.Float64("win_rate", row.Metrics.WinRate))
	}
}

// Stop 停止报告循环
func (r *Reporter) Stop() {
	if r.cancel == nil {
		return
	}
	zap.L().Info("🛑 停止策略性能监控器")
	r.cancel()
	r.wg.Wait()
}

// PrintStrategyTable 打印策略绩效表
func PrintStrategyTable(w io.Writer, strategies []types.StrategyConfig, metrics map[string]PerformanceMetrics) {
	fmt.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-38s %-28s %-8s %-9s %-5s %7s %9s %8s\n",
		"ID", "NAME", "STATUS", "ORCH", "LIVE", "TRADES", "PF", "WIN%")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, s := range strategies {
		m := metrics[s.ID]
		live := "no"
		if s.IsTradingEnabled {
			live = "yes"
		}
		fmt.Fprintf(w, "%-38s %-28s %-8s %-9s %-5s %7d %9s %8.1f\n",
			s.ID, truncate(s.Name, 28), s.Status, s.OrchestratorStatus, live,
			m.TradeCount, formatFactor(m.ProfitFactor), m.WinRate)
	}
	fmt.Fprintln(w, strings.Repeat("=", 100))
}

func formatFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
