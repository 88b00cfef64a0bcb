package engine

import (
	"context"

	"okx-strategy-fleet/internal/notifier"
	"okx-strategy-fleet/internal/strategy/signals"
	"okx-strategy-fleet/pkg/types"
)

// Stream 行情流
type Stream interface {
	Subscribe(ctx context.Context, symbol, interval string) (<-chan types.CandleEvent, error)
}

// HistoryFetcher 历史K线
type HistoryFetcher interface {
	FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error)
}

// Evaluator 指标与信号计算
type Evaluator interface {
	Evaluate(klines []*types.KLine, params types.StrategyParams) signals.Result
}

// Executor 交易所下单
type Executor interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, symbol, side string, quantity float64, reduceOnly bool) (types.OrderResult, error)
	OpenPositionAmount(ctx context.Context, symbol string) (float64, error)
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error)
}

// Store Runner 依赖的持久化操作
type Store interface {
	GetStrategy(ctx context.Context, strategyID string) (types.StrategyConfig, error)
	LoadPositions(ctx context.Context, strategyID string) ([]types.PositionState, error)
	SavePosition(ctx context.Context, st types.PositionState) error
	DeletePosition(ctx context.Context, strategyID, symbol string) error
	RecordTrade(ctx context.Context, rec types.TradeRecord) error
	RecordAlarm(ctx context.Context, alarm types.AlarmRecord) error
}

// ActionQueue 人工操作队列（数据库或 Redis）
type ActionQueue interface {
	Enqueue(ctx context.Context, action types.ManualAction) error
	Drain(ctx context.Context, strategyID string) ([]types.ManualAction, error)
}

// Deps Runner 的外部协作者。Executor 为空时所有开仓都记为模拟仓。
type Deps struct {
	Stream    Stream
	History   HistoryFetcher
	Evaluator Evaluator
	Executor  Executor
	Store     Store
	Actions   ActionQueue
	Notifier  notifier.Interface
}
