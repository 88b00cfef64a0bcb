package types

import "sort"

// VolatilityLevel 波动率等级
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityNormal VolatilityLevel = "NORMAL"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// TrendStrength 趋势强度
type TrendStrength string

const (
	TrendNone     TrendStrength = "NONE"
	TrendEmerging TrendStrength = "EMERGING"
	TrendStrong   TrendStrength = "STRONG"
)

// Sentiment 市场情绪
type Sentiment string

const (
	SentimentExtremeFear  Sentiment = "EXTREME_FEAR"
	SentimentFear         Sentiment = "FEAR"
	SentimentNeutral      Sentiment = "NEUTRAL"
	SentimentGreed        Sentiment = "GREED"
	SentimentExtremeGreed Sentiment = "EXTREME_GREED"
)

// MarketRegime 市场状态快照
type MarketRegime struct {
	Volatility    VolatilityLevel `json:"volatility"`
	TrendStrength TrendStrength   `json:"trend_strength"`
	Sentiment     Sentiment       `json:"sentiment"`

	ATRPercent float64 `json:"atr_percent"`
	ADX        float64 `json:"adx"`
	FearGreed  int     `json:"fear_greed"`
}

// DNATag 策略行为标签
type DNATag string

const (
	TagTrendFollower DNATag = "TREND_FOLLOWER"
	TagMomentum      DNATag = "MOMENTUM"
	TagMeanReversion DNATag = "MEAN_REVERSION"
	TagScalper       DNATag = "SCALPER"
	TagVolatility    DNATag = "VOLATILITY"
	TagFastSignal    DNATag = "FAST_SIGNAL"
	TagConfirmation  DNATag = "CONFIRMATION"
	TagGeneral       DNATag = "GENERAL"
)

// StrategyDNA 策略行为标签集合
type StrategyDNA map[DNATag]struct{}

// NewDNA 由标签列表构造
func NewDNA(tags ...DNATag) StrategyDNA {
	dna := make(StrategyDNA, len(tags))
	for _, t := range tags {
		dna[t] = struct{}{}
	}
	return dna
}

// Has 是否包含标签
func (d StrategyDNA) Has(tag DNATag) bool {
	_, ok := d[tag]
	return ok
}

// Tags 排序后的标签列表
func (d StrategyDNA) Tags() []string {
	out := make([]string, 0, len(d))
	for t := range d {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
