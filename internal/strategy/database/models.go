package database

import (
	"time"

	"okx-strategy-fleet/pkg/types"
)

// Strategy 策略注册表模型
type Strategy struct {
	ID                 string               `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name               string               `gorm:"type:varchar(128);not null;index" json:"name"`
	Status             string               `gorm:"type:varchar(16);not null;default:'running'" json:"status"`
	OrchestratorStatus string               `gorm:"type:varchar(16);not null;default:'active'" json:"orchestrator_status"`
	IsTradingEnabled   bool                 `gorm:"not null;default:false" json:"is_trading_enabled"`
	Symbols            []string             `gorm:"type:text;serializer:json" json:"symbols"`
	Interval           string               `gorm:"column:kline_interval;type:varchar(10);not null" json:"interval"`
	Params             types.StrategyParams `gorm:"type:text;serializer:json" json:"strategy_params"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Position 持仓模型，(strategy_id, symbol) 唯一
type Position struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StrategyID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_strategy_symbol" json:"strategy_id"`
	Symbol        string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_strategy_symbol" json:"symbol"`
	Side          string    `gorm:"type:varchar(8);not null" json:"side"`
	EntryPrice    float64   `gorm:"type:decimal(24,10);not null" json:"entry_price"`
	StopLossPrice float64   `gorm:"type:decimal(24,10)" json:"stop_loss_price"`
	TP1Price      float64   `gorm:"column:tp1_price;type:decimal(24,10)" json:"tp1_price"`
	TP2Price      float64   `gorm:"column:tp2_price;type:decimal(24,10)" json:"tp2_price"`
	TP1Hit        bool      `gorm:"column:tp1_hit" json:"tp1_hit"`
	TP2Hit        bool      `gorm:"column:tp2_hit" json:"tp2_hit"`
	Quantity      float64   `gorm:"type:decimal(24,10)" json:"quantity"`
	Paper         bool      `json:"paper"`
	OpenedAt      time.Time `json:"opened_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ManualAction 人工操作队列模型
type ManualAction struct {
	ID         string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	StrategyID string    `gorm:"type:varchar(64);not null;index" json:"strategy_id"`
	Symbol     string    `gorm:"type:varchar(32);not null" json:"symbol"`
	Action     string    `gorm:"type:varchar(32);not null" json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}

// Trade 已平仓交易流水（只追加）
type Trade struct {
	ID         string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	StrategyID string    `gorm:"type:varchar(64);not null;index" json:"strategy_id"`
	Symbol     string    `gorm:"type:varchar(32);not null" json:"symbol"`
	Side       string    `gorm:"type:varchar(8);not null" json:"side"`
	EntryPrice float64   `gorm:"type:decimal(24,10);not null" json:"entry_price"`
	ExitPrice  float64   `gorm:"type:decimal(24,10);not null" json:"exit_price"`
	ReturnPct  float64   `gorm:"type:decimal(12,6);not null" json:"return_pct"`
	Reason     string    `gorm:"type:varchar(32);not null" json:"reason"`
	Paper      bool      `json:"paper"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `gorm:"index" json:"closed_at"`
}

// Alarm 告警流水（只追加）
type Alarm struct {
	ID         string    `gorm:"type:varchar(32);primaryKey" json:"id"`
	StrategyID string    `gorm:"type:varchar(64);index" json:"strategy_id"`
	Symbol     string    `gorm:"type:varchar(32)" json:"symbol"`
	Level      string    `gorm:"type:varchar(16);not null" json:"level"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func strategyFromConfig(cfg types.StrategyConfig) Strategy {
	return Strategy{
		ID:                 cfg.ID,
		Name:               cfg.Name,
		Status:             string(cfg.Status),
		OrchestratorStatus: string(cfg.OrchestratorStatus),
		IsTradingEnabled:   cfg.IsTradingEnabled,
		Symbols:            cfg.Symbols,
		Interval:           cfg.Interval,
		Params:             cfg.Params,
		CreatedAt:          cfg.CreatedAt,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

func (s Strategy) toConfig() types.StrategyConfig {
	return types.StrategyConfig{
		ID:                 s.ID,
		Name:               s.Name,
		Status:             types.StrategyStatus(s.Status),
		OrchestratorStatus: types.OrchestratorStatus(s.OrchestratorStatus),
		IsTradingEnabled:   s.IsTradingEnabled,
		Symbols:            s.Symbols,
		Interval:           s.Interval,
		Params:             s.Params,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func positionFromState(st types.PositionState) Position {
	return Position{
		StrategyID:    st.StrategyID,
		Symbol:        st.Symbol,
		Side:          string(st.Position),
		EntryPrice:    st.EntryPrice,
		StopLossPrice: st.StopLossPrice,
		TP1Price:      st.TP1Price,
		TP2Price:      st.TP2Price,
		TP1Hit:        st.TP1Hit,
		TP2Hit:        st.TP2Hit,
		Quantity:      st.Quantity,
		Paper:         st.Paper,
		OpenedAt:      st.OpenedAt,
	}
}

func (p Position) toState() types.PositionState {
	return types.PositionState{
		StrategyID:    p.StrategyID,
		Symbol:        p.Symbol,
		Position:      types.PositionSide(p.Side),
		EntryPrice:    p.EntryPrice,
		StopLossPrice: p.StopLossPrice,
		TP1Price:      p.TP1Price,
		TP2Price:      p.TP2Price,
		TP1Hit:        p.TP1Hit,
		TP2Hit:        p.TP2Hit,
		Quantity:      p.Quantity,
		Paper:         p.Paper,
		OpenedAt:      p.OpenedAt,
	}
}

func tradeFromRecord(r types.TradeRecord) Trade {
	return Trade{
		ID:         r.ID,
		StrategyID: r.StrategyID,
		Symbol:     r.Symbol,
		Side:       string(r.Side),
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		ReturnPct:  r.ReturnPct,
		Reason:     string(r.Reason),
		Paper:      r.Paper,
		OpenedAt:   r.OpenedAt,
		ClosedAt:   r.ClosedAt,
	}
}

func (t Trade) toRecord() types.TradeRecord {
	return types.TradeRecord{
		ID:         t.ID,
		StrategyID: t.StrategyID,
		Symbol:     t.Symbol,
		Side:       types.PositionSide(t.Side),
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		ReturnPct:  t.ReturnPct,
		Reason:     types.ExitReason(t.Reason),
		Paper:      t.Paper,
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
	}
}
