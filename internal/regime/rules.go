package regime

import "okx-strategy-fleet/pkg/types"

// Rule 某类市场状态下受青睐的标签。AnyOf 命中任意一个即可，AllOf 需要全部具备。
type Rule struct {
	Name  string
	Match func(r types.MarketRegime) bool
	AnyOf []types.DNATag
	AllOf []types.DNATag
}

func (r Rule) satisfiedBy(dna types.StrategyDNA) bool {
	if len(r.AllOf) > 0 {
		for _, tag := range r.AllOf {
			if !dna.Has(tag) {
				return false
			}
		}
		return true
	}
	for _, tag := range r.AnyOf {
		if dna.Has(tag) {
			return true
		}
	}
	return false
}

func trendIs(t types.TrendStrength) func(types.MarketRegime) bool {
	return func(r types.MarketRegime) bool { return r.TrendStrength == t }
}

func volatilityIs(v types.VolatilityLevel) func(types.MarketRegime) bool {
	return func(r types.MarketRegime) bool { return r.Volatility == v }
}

func sentimentIs(s types.Sentiment) func(types.MarketRegime) bool {
	return func(r types.MarketRegime) bool { return r.Sentiment == s }
}

// DefaultRules 固定规则表
var DefaultRules = []Rule{
	{Name: "strong_trend", Match: trendIs(types.TrendStrong), AnyOf: []types.DNATag{types.TagTrendFollower, types.TagMomentum}},
	{Name: "emerging_trend", Match: trendIs(types.TrendEmerging), AnyOf: []types.DNATag{types.TagMomentum, types.TagConfirmation}},
	{Name: "trendless", Match: trendIs(types.TrendNone), AnyOf: []types.DNATag{types.TagMeanReversion, types.TagScalper}},
	{Name: "high_volatility", Match: volatilityIs(types.VolatilityHigh), AnyOf: []types.DNATag{types.TagVolatility, types.TagFastSignal}},
	{Name: "low_volatility", Match: volatilityIs(types.VolatilityLow), AnyOf: []types.DNATag{types.TagScalper}},
	{Name: "extreme_fear", Match: sentimentIs(types.SentimentExtremeFear), AllOf: []types.DNATag{types.TagMeanReversion, types.TagConfirmation}},
	{Name: "extreme_greed", Match: sentimentIs(types.SentimentExtremeGreed), AnyOf: []types.DNATag{types.TagScalper, types.TagConfirmation}},
}

// Compatible 策略在当前市场状态下是否适合运行；GENERAL 始终适合
func Compatible(dna types.StrategyDNA, regime types.MarketRegime, rules []Rule) bool {
	if dna.Has(types.TagGeneral) {
		return true
	}
	for _, rule := range rules {
		if rule.Match(regime) && rule.satisfiedBy(dna) {
			return true
		}
	}
	return false
}
