package regime

import (
	"errors"

	"okx-strategy-fleet/internal/strategy/indicators"
	"okx-strategy-fleet/pkg/types"
)

const (
	atrPeriod = 14
	adxPeriod = 14

	// ADX 分档
	adxEmerging = 20.0
	adxStrong   = 30.0
)

// ErrInsufficientData K线数量不足以计算 ATR% 或 ADX
var ErrInsufficientData = errors.New("基准K线数据不足")

// ClassifyVolatility 当前 ATR% 与自身历史 25/75 分位比较
func ClassifyVolatility(atrPct []float64) types.VolatilityLevel {
	if len(atrPct) == 0 {
		return types.VolatilityNormal
	}
	current := atrPct[len(atrPct)-1]
	p25 := indicators.Percentile(atrPct, 25)
	p75 := indicators.Percentile(atrPct, 75)

	switch {
	case current < p25:
		return types.VolatilityLow
	case current > p75:
		return types.VolatilityHigh
	default:
		return types.VolatilityNormal
	}
}

// ClassifyTrend ADX <20 无趋势，20-30 趋势形成，≥30 强趋势
func ClassifyTrend(adx float64) types.TrendStrength {
	switch {
	case adx >= adxStrong:
		return types.TrendStrong
	case adx >= adxEmerging:
		return types.TrendEmerging
	default:
		return types.TrendNone
	}
}

// ClassifySentiment 恐惧贪婪指数分档
func ClassifySentiment(index int) types.Sentiment {
	switch {
	case index <= 24:
		return types.SentimentExtremeFear
	case index <= 44:
		return types.SentimentFear
	case index <= 55:
		return types.SentimentNeutral
	case index <= 75:
		return types.SentimentGreed
	default:
		return types.SentimentExtremeGreed
	}
}

// Classify 由基准K线和恐惧贪婪指数得出市场状态
func Classify(klines []*types.KLine, fearGreed int) (types.MarketRegime, error) {
	atrPct := indicators.NewATRCalculator(atrPeriod).PercentSeries(klines)
	adx, ok := indicators.ADX(klines, adxPeriod)
	if len(atrPct) == 0 || !ok {
		return types.MarketRegime{}, ErrInsufficientData
	}

	return types.MarketRegime{
		Volatility:    ClassifyVolatility(atrPct),
		TrendStrength: ClassifyTrend(adx),
		Sentiment:     ClassifySentiment(fearGreed),
		ATRPercent:    atrPct[len(atrPct)-1],
		ADX:           adx,
		FearGreed:     fearGreed,
	}, nil
}
