package indicators

import (
	"okx-strategy-fleet/pkg/types"
)

// Channel 唐奇安通道
type Channel struct {
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
	Middle float64 `json:"middle"`
}

// Donchian 用最新一根之前的 length 根K线计算通道，最新K线不参与，数据不足返回 false
func Donchian(klines []*types.KLine, length int) (Channel, bool) {
	if length <= 0 || len(klines) < length+1 {
		return Channel{}, false
	}

	window := klines[len(klines)-1-length : len(klines)-1]
	ch := Channel{Upper: window[0].High, Lower: window[0].Low}
	for _, k := range window[1:] {
		ch.Upper = max(ch.Upper, k.High)
		ch.Lower = min(ch.Lower, k.Low)
	}
	ch.Middle = (ch.Upper + ch.Lower) / 2
	return ch, true
}

// Breakout 收盘价突破上轨为 BUY，跌破下轨为 SELL
func (c Channel) Breakout(close float64) types.Signal {
	switch {
	case close > c.Upper:
		return types.SignalBuy
	case close < c.Lower:
		return types.SignalSell
	default:
		return types.SignalHold
	}
}
