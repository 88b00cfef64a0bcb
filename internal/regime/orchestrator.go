package regime

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/types"
)

const benchmarkLimit = 200

// CandleFetcher 基准K线来源
type CandleFetcher interface {
	FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error)
}

// SentimentSource 恐惧贪婪指数来源
type SentimentSource interface {
	FearGreed(ctx context.Context) (int, error)
}

// Store 编排器使用的注册表操作
type Store interface {
	ListStrategies(ctx context.Context) ([]types.StrategyConfig, error)
	UpdateOrchestratorStatus(ctx context.Context, strategyID string, status types.OrchestratorStatus) error
}

// MarketContext 汇总市场状态的原始输入
type MarketContext struct {
	candles   CandleFetcher
	sentiment SentimentSource
	symbol    string
	interval  string
}

// NewMarketContext 创建市场环境数据源
func NewMarketContext(candles CandleFetcher, sentiment SentimentSource, symbol, interval string) *MarketContext {
	if symbol == "" {
		symbol = "BTC-USDT-SWAP"
	}
	if interval == "" {
		interval = "4H"
	}
	return &MarketContext{
		candles:   candles,
		sentiment: sentiment,
		symbol:    symbol,
		interval:  interval,
	}
}

// Regime 拉取基准K线和情绪指数并分类。情绪获取失败按中性处理，K线失败返回错误。
func (mc *MarketContext) Regime(ctx context.Context) (types.MarketRegime, error) {
	klines, err := mc.candles.FetchHistoryKlines(ctx, mc.symbol, mc.interval, benchmarkLimit)
	if err != nil {
		return types.MarketRegime{}, fmt.Errorf("获取基准K线失败: %w", err)
	}

	fearGreed := 50
	if mc.sentiment != nil {
		if v, err := mc.sentiment.FearGreed(ctx); err != nil {
			zap.L().Warn("⚠️ 获取恐惧贪婪指数失败，按中性处理", zap.Error(err))
		} else {
			fearGreed = v
		}
	}

	return Classify(klines, fearGreed)
}

// RegimeSource 市场状态来源
type RegimeSource interface {
	Regime(ctx context.Context) (types.MarketRegime, error)
}

// Report 一轮编排的结果
type Report struct {
	Skipped     bool               `json:"skipped"`
	Reason      string             `json:"reason,omitempty"`
	Regime      types.MarketRegime `json:"regime"`
	Activated   []string           `json:"activated"`
	Deactivated []string           `json:"deactivated"`
}

// Orchestrator 按市场状态激活或停用策略
type Orchestrator struct {
	store  Store
	source RegimeSource
	rules  []Rule
}

// NewOrchestrator 创建编排器，使用默认规则表
func NewOrchestrator(store Store, source RegimeSource) *Orchestrator {
	return &Orchestrator{
		store:  store,
		source: source,
		rules:  DefaultRules,
	}
}

// Run 执行一轮编排，只在适配结果与当前状态不同时写回
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	regime, err := o.source.Regime(ctx)
	if err != nil {
		zap.L().Warn("⏭️ 跳过本轮编排", zap.Error(err))
		return Report{Skipped: true, Reason: err.Error()}, nil
	}

	strategies, err := o.store.ListStrategies(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("读取策略注册表失败: %w", err)
	}

	report := Report{Regime: regime}
	for _, s := range strategies {
		dna := DNA(s.Params)
		want := types.OrchestratorInactive
		if Compatible(dna, regime, o.rules) {
			want = types.OrchestratorActive
		}
		if s.OrchestratorStatus == want {
			continue
		}

		if err := o.store.UpdateOrchestratorStatus(ctx, s.ID, want); err != nil {
			zap.L().Error("更新编排状态失败", zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if want == types.OrchestratorActive {
			report.Activated = append(report.Activated, s.Name)
		} else {
			report.Deactivated = append(report.Deactivated, s.Name)
		}
		zap.L().Info("🔀 切换策略编排状态",
			zap.String("strategy", s.Name),
			zap.Strings("dna", dna.Tags()),
			zap.String("status", string(want)))
	}

	zap.L().Info("🧭 市场状态编排完成",
		zap.String("volatility", string(regime.Volatility)),
		zap.String("trend", string(regime.TrendStrength)),
		zap.String("sentiment", string(regime.Sentiment)),
		zap.Float64("atr_pct", regime.ATRPercent),
		zap.Float64("adx", regime.ADX),
		zap.Int("fear_greed", regime.FearGreed),
		zap.Strings("activated", report.Activated),
		zap.Strings("deactivated", report.Deactivated))
	return report, nil
}
