package signals

import (
	"go.uber.org/zap"
	"okx-strategy-fleet/internal/strategy/indicators"
	"okx-strategy-fleet/pkg/types"
)

// volumeLookback 成交量确认使用的均量窗口
const volumeLookback = 20

// Result 信号评估结果，附带风控所需的指标值
type Result struct {
	Signal types.Signal `json:"signal"`
	Close  float64      `json:"close"`
	ATR    float64      `json:"atr"` // 0 表示数据不足
	RSI    float64      `json:"rsi"`
	Reason string       `json:"reason"`
}

// Evaluator 默认的指标+信号评估器，对窗口和参数是纯函数
type Evaluator struct{}

// NewEvaluator 创建信号评估器
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate 根据K线窗口和策略参数给出交易信号
func (e *Evaluator) Evaluate(klines []*types.KLine, params types.StrategyParams) Result {
	params = params.WithDefaults()
	if len(klines) == 0 {
		return Result{Signal: types.SignalHold, Reason: "empty window"}
	}

	latest := klines[len(klines)-1]
	res := Result{Signal: types.SignalHold, Close: latest.Close}

	if atr := indicators.NewATRCalculator(params.ATRPeriod).Calculate(klines); atr != nil {
		res.ATR = atr.Value
	}
	rsi, rsiOK := indicators.RSI(klines, params.RSIPeriod)
	res.RSI = rsi

	switch params.SignalMode {
	case types.ModeReversion:
		if !rsiOK {
			res.Reason = "rsi warming up"
			return res
		}
		res.Signal, res.Reason = reversionSignal(rsi, params)
	default:
		res.Signal, res.Reason = e.trendSignal(klines, params, rsi, rsiOK)
	}

	if res.Signal != types.SignalHold && params.UseVolumeConfirmation {
		avg := indicators.AverageVolume(klines, volumeLookback)
		if avg <= 0 || latest.Volume < avg*params.VolumeMultiplier {
			zap.L().Debug("成交量未确认，忽略信号",
				zap.String("symbol", latest.Symbol),
				zap.String("signal", string(res.Signal)),
				zap.Float64("volume", latest.Volume),
				zap.Float64("avg_volume", avg))
			res.Signal = types.SignalHold
			res.Reason = "volume not confirmed"
		}
	}

	return res
}

// trendSignal EMA 交叉，或在启用唐奇安突破时以突破为触发、EMA 方向为过滤
func (e *Evaluator) trendSignal(klines []*types.KLine, params types.StrategyParams, rsi float64, rsiOK bool) (types.Signal, string) {
	fast := indicators.EMA(klines, params.EMAFast)
	slow := indicators.EMA(klines, params.EMASlow)
	if len(fast) < 2 || len(slow) < 2 {
		return types.SignalHold, "ema warming up"
	}

	curFast, prevFast := fast[len(fast)-1], fast[len(fast)-2]
	curSlow, prevSlow := slow[len(slow)-1], slow[len(slow)-2]

	signal := types.SignalHold
	reason := ""
	if params.UseDonchianBreakout {
		ch, ok := indicators.Donchian(klines, params.DonchianLength)
		if !ok {
			return types.SignalHold, "donchian warming up"
		}
		switch ch.Breakout(klines[len(klines)-1].Close) {
		case types.SignalBuy:
			if curFast > curSlow {
				signal, reason = types.SignalBuy, "donchian breakout up"
			}
		case types.SignalSell:
			if curFast < curSlow {
				signal, reason = types.SignalSell, "donchian breakout down"
			}
		}
	} else {
		switch {
		case prevFast <= prevSlow && curFast > curSlow:
			signal, reason = types.SignalBuy, "ema golden cross"
		case prevFast >= prevSlow && curFast < curSlow:
			signal, reason = types.SignalSell, "ema death cross"
		}
	}

	if signal != types.SignalHold && params.UseRSIFilter && rsiOK {
		if signal == types.SignalBuy && rsi >= params.RSIOverbought {
			return types.SignalHold, "rsi overbought"
		}
		if signal == types.SignalSell && rsi <= params.RSIOversold {
			return types.SignalHold, "rsi oversold"
		}
	}

	return signal, reason
}

// reversionSignal RSI 超卖做多、超买做空
func reversionSignal(rsi float64, params types.StrategyParams) (types.Signal, string) {
	switch {
	case rsi <= params.RSIOversold:
		return types.SignalBuy, "rsi oversold"
	case rsi >= params.RSIOverbought:
		return types.SignalSell, "rsi overbought"
	default:
		return types.SignalHold, ""
	}
}
