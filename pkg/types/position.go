package types

import "time"

// PositionSide 持仓方向
type PositionSide string

const (
	PositionNone  PositionSide = "NONE"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionState 单个（策略, 交易对）的持仓状态
type PositionState struct {
	StrategyID    string       `json:"strategy_id"`
	Symbol        string       `json:"symbol"`
	Position      PositionSide `json:"position"`
	EntryPrice    float64      `json:"entry_price"`
	StopLossPrice float64      `json:"stop_loss_price"`
	TP1Price      float64      `json:"tp1_price"`
	TP2Price      float64      `json:"tp2_price"`
	TP1Hit        bool         `json:"tp1_hit"`
	TP2Hit        bool         `json:"tp2_hit"`
	Quantity      float64      `json:"quantity"`
	Paper         bool         `json:"paper"` // 交易所下单失败或未下单的本地仓位
	OpenedAt      time.Time    `json:"opened_at"`
}

// IsOpen 是否持仓
func (p PositionState) IsOpen() bool {
	return p.Position == PositionLong || p.Position == PositionShort
}

// ActionType 人工操作类型
type ActionType string

const (
	ActionClosePosition ActionType = "CLOSE_POSITION"
)

// ManualAction 人工操作队列中的一条指令
type ManualAction struct {
	ID         string     `json:"id"`
	StrategyID string     `json:"strategy_id"`
	Symbol     string     `json:"symbol"`
	Action     ActionType `json:"action"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ExitReason 平仓原因
type ExitReason string

const (
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitStopLossPct ExitReason = "STOP_LOSS_PCT"
	ExitTakeProfit  ExitReason = "TAKE_PROFIT"
	ExitReversal    ExitReason = "REVERSAL"
	ExitManual      ExitReason = "MANUAL"
)

// TradeRecord 已平仓交易记录
type TradeRecord struct {
	ID         string       `json:"id"`
	StrategyID string       `json:"strategy_id"`
	Symbol     string       `json:"symbol"`
	Side       PositionSide `json:"side"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	ReturnPct  float64      `json:"return_pct"`
	Reason     ExitReason   `json:"reason"`
	Paper      bool         `json:"paper"`
	OpenedAt   time.Time    `json:"opened_at"`
	ClosedAt   time.Time    `json:"closed_at"`
}

// AlarmRecord 告警日志
type AlarmRecord struct {
	ID         string    `json:"id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
