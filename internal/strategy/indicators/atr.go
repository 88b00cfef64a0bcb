package indicators

import (
	"math"
	"sort"

	"okx-strategy-fleet/pkg/types"
)

// ATRValue 最新 ATR
type ATRValue struct {
	Value float64 `json:"value"`
}

// ATRCalculator ATR指标计算器
type ATRCalculator struct {
	length int
}

// NewATRCalculator 创建ATR计算器
func NewATRCalculator(length int) *ATRCalculator {
	return &ATRCalculator{
		length: length,
	}
}

// Calculate 计算最新ATR值，数据不足返回nil
func (ac *ATRCalculator) Calculate(klines []*types.KLine) *ATRValue {
	series := ac.Series(klines)
	if len(series) == 0 {
		return nil
	}
	return &ATRValue{Value: series[len(series)-1]}
}

// Series 计算ATR序列（Wilder 平滑），第 i 个值对应 klines[length+i]
func (ac *ATRCalculator) Series(klines []*types.KLine) []float64 {
	if ac.length <= 0 || len(klines) < ac.length+1 {
		return nil
	}

	trValues := trueRange(klines)

	atr := sma(trValues[:ac.length])
	out := make([]float64, 0, len(trValues)-ac.length+1)
	out = append(out, atr)
	for _, tr := range trValues[ac.length:] {
		atr = (atr*float64(ac.length-1) + tr) / float64(ac.length)
		out = append(out, atr)
	}
	return out
}

// PercentSeries 计算 ATR / 收盘价 × 100 序列
func (ac *ATRCalculator) PercentSeries(klines []*types.KLine) []float64 {
	series := ac.Series(klines)
	offset := len(klines) - len(series)
	out := make([]float64, 0, len(series))
	for i, v := range series {
		price := klines[offset+i].Close
		if price == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, v/price*100)
	}
	return out
}

// trueRange 计算真实波幅序列
func trueRange(klines []*types.KLine) []float64 {
	if len(klines) < 2 {
		return nil
	}

	trValues := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		current := klines[i]
		previous := klines[i-1]

		// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)
		hl := current.High - current.Low
		hc := math.Abs(current.High - previous.Close)
		lc := math.Abs(current.Low - previous.Close)

		trValues = append(trValues, math.Max(hl, math.Max(hc, lc)))
	}

	return trValues
}

// sma 计算简单移动平均
func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}

// Percentile 线性插值分位数，p 取 0-100
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
