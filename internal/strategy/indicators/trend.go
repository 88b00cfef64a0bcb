package indicators

import (
	"math"

	"okx-strategy-fleet/pkg/types"
)

// EMA 计算收盘价指数移动平均序列，首值取前 period 根的 SMA。
// 返回序列与 klines 末尾对齐，长度为 len(klines)-period+1。
func EMA(klines []*types.KLine, period int) []float64 {
	if period <= 0 || len(klines) < period {
		return nil
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	k := 2.0 / float64(period+1)
	ema := sma(closes[:period])
	out := make([]float64, 0, len(closes)-period+1)
	out = append(out, ema)
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// RSI 计算最新 RSI（Wilder 平滑），数据不足返回 false
func RSI(klines []*types.KLine, period int) (float64, bool) {
	if period <= 0 || len(klines) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		g, l := 0.0, 0.0
		if change > 0 {
			g = change
		} else {
			l = -change
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// ADX 计算最新平均趋向指数（Wilder），至少需要 2*period+1 根K线
func ADX(klines []*types.KLine, period int) (float64, bool) {
	if period <= 0 || len(klines) < 2*period+1 {
		return 0, false
	}

	n := len(klines) - 1
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(klines); i++ {
		cur, prev := klines[i], klines[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
	}

	var trSum, plusSum, minusSum float64
	for i := 0; i < period; i++ {
		trSum += tr[i]
		plusSum += plusDM[i]
		minusSum += minusDM[i]
	}

	dx := func() float64 {
		if trSum == 0 {
			return 0
		}
		plusDI := 100 * plusSum / trSum
		minusDI := 100 * minusSum / trSum
		if plusDI+minusDI == 0 {
			return 0
		}
		return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	dxValues := []float64{dx()}
	for i := period; i < n; i++ {
		trSum = trSum - trSum/float64(period) + tr[i]
		plusSum = plusSum - plusSum/float64(period) + plusDM[i]
		minusSum = minusSum - minusSum/float64(period) + minusDM[i]
		dxValues = append(dxValues, dx())
	}

	if len(dxValues) < period {
		return 0, false
	}

	adx := sma(dxValues[:period])
	for _, v := range dxValues[period:] {
		adx = (adx*float64(period-1) + v) / float64(period)
	}
	return adx, true
}

// AverageVolume 最近 bars 根（不含最新一根）K线的平均成交量
func AverageVolume(klines []*types.KLine, bars int) float64 {
	if bars <= 0 || len(klines) < bars+1 {
		return 0
	}
	sum := 0.0
	for _, k := range klines[len(klines)-bars-1 : len(klines)-1] {
		sum += k.Volume
	}
	return sum / float64(bars)
}
