package position

import (
	"time"

	"okx-strategy-fleet/pkg/types"
)

// Action 状态机给出的动作
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionClose
)

// Decision 一次信号评估后的转移决定
type Decision struct {
	Action Action
	Side   types.PositionSide // ActionOpen 时的方向
	Reason types.ExitReason   // ActionClose 时的原因
}

// Open 按入场价和 ATR 计算风控价位，返回新持仓。
// ATR 或倍数非正时不设止损，目标百分比非正时不设对应止盈价。
func Open(strategyID, symbol string, side types.PositionSide, entry, atr float64, params types.StrategyParams, now time.Time) types.PositionState {
	st := types.PositionState{
		StrategyID: strategyID,
		Symbol:     symbol,
		Position:   side,
		EntryPrice: entry,
		OpenedAt:   now,
	}

	dir := 1.0
	if side == types.PositionShort {
		dir = -1.0
	}

	if atr > 0 && params.ATRMultiplier > 0 {
		stop := entry - dir*atr*params.ATRMultiplier
		if stop > 0 {
			st.StopLossPrice = stop
		}
	}
	if params.TP1Pct > 0 {
		st.TP1Price = entry * (1 + dir*params.TP1Pct/100)
	}
	if params.TP2Pct > 0 {
		st.TP2Price = entry * (1 + dir*params.TP2Pct/100)
	}

	return st
}

// ReturnPct 已实现收益率（%），做空取反
func ReturnPct(st types.PositionState, exit float64) float64 {
	if st.EntryPrice == 0 {
		return 0
	}
	ret := (exit - st.EntryPrice) / st.EntryPrice * 100
	if st.Position == types.PositionShort {
		ret = -ret
	}
	return ret
}

// StopTriggered 用实时最高/最低价检查止损价是否被穿越，返回成交价（止损价）
func StopTriggered(st types.PositionState, high, low float64) (float64, bool) {
	if st.StopLossPrice <= 0 {
		return 0, false
	}
	switch st.Position {
	case types.PositionLong:
		if low <= st.StopLossPrice {
			return st.StopLossPrice, true
		}
	case types.PositionShort:
		if high >= st.StopLossPrice {
			return st.StopLossPrice, true
		}
	}
	return 0, false
}

// UpdateTargets 检查分批止盈价位：TP1 触发后止损移至保本，TP2 触发后止损移至 TP1。
// TP2 独立判断，未设置 TP1 时止损移至保本。返回状态是否变化。
func UpdateTargets(st *types.PositionState, high, low float64) bool {
	if !st.IsOpen() {
		return false
	}

	reached := func(target float64) bool {
		if target <= 0 {
			return false
		}
		if st.Position == types.PositionLong {
			return high >= target
		}
		return low <= target
	}

	changed := false
	if !st.TP1Hit && reached(st.TP1Price) {
		st.TP1Hit = true
		st.StopLossPrice = st.EntryPrice
		changed = true
	}
	if !st.TP2Hit && reached(st.TP2Price) {
		st.TP2Hit = true
		if st.TP1Price > 0 {
			st.StopLossPrice = st.TP1Price
		} else {
			st.StopLossPrice = st.EntryPrice
		}
		changed = true
	}
	return changed
}

// PctExit 收盘价对应的收益率是否触发百分比止损/止盈
func PctExit(st types.PositionState, price float64, params types.StrategyParams) (types.ExitReason, bool) {
	if !st.IsOpen() {
		return "", false
	}
	ret := ReturnPct(st, price)
	if params.StopLossPct > 0 && ret <= -params.StopLossPct {
		return types.ExitStopLossPct, true
	}
	if params.TakeProfitPct > 0 && ret >= params.TakeProfitPct {
		return types.ExitTakeProfit, true
	}
	return "", false
}

// Decide 根据信号给出转移：空仓时按方向许可开仓，持仓时反向信号平仓
func Decide(st types.PositionState, signal types.Signal, params types.StrategyParams) Decision {
	switch st.Position {
	case types.PositionLong:
		if signal == types.SignalSell {
			return Decision{Action: ActionClose, Reason: types.ExitReversal}
		}
	case types.PositionShort:
		if signal == types.SignalBuy {
			return Decision{Action: ActionClose, Reason: types.ExitReversal}
		}
	default:
		if signal == types.SignalBuy && params.AllowsLong() {
			return Decision{Action: ActionOpen, Side: types.PositionLong}
		}
		if signal == types.SignalSell && params.AllowsShort() {
			return Decision{Action: ActionOpen, Side: types.PositionShort}
		}
	}
	return Decision{Action: ActionNone}
}

// Close 生成交易记录并把持仓重置为空仓，所有风控价位归零
func Close(st *types.PositionState, exit float64, reason types.ExitReason, now time.Time) types.TradeRecord {
	rec := types.TradeRecord{
		StrategyID: st.StrategyID,
		Symbol:     st.Symbol,
		Side:       st.Position,
		EntryPrice: st.EntryPrice,
		ExitPrice:  exit,
		ReturnPct:  ReturnPct(*st, exit),
		Reason:     reason,
		Paper:      st.Paper,
		OpenedAt:   st.OpenedAt,
		ClosedAt:   now,
	}
	*st = Flat(st.StrategyID, st.Symbol)
	return rec
}

// Flat 空仓状态
func Flat(strategyID, symbol string) types.PositionState {
	return types.PositionState{
		StrategyID: strategyID,
		Symbol:     symbol,
		Position:   types.PositionNone,
	}
}
