package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(types.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "fleet.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func sampleStrategy(id string) types.StrategyConfig {
	p := types.DefaultParams()
	p.UseDonchianBreakout = true
	p.StopLossPct = 2.5
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return types.StrategyConfig{
		ID:                 id,
		Name:               "trend-" + id,
		Status:             types.StatusRunning,
		OrchestratorStatus: types.OrchestratorActive,
		IsTradingEnabled:   true,
		Symbols:            []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"},
		Interval:           "15m",
		Params:             p,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	want := sampleStrategy("a")
	require.NoError(t, m.CreateStrategy(ctx, want))

	got, err := m.GetStrategy(ctx, "a")
	require.NoError(t, err)
	assert.True(t, want.SameDefinition(got))
	assert.Equal(t, want.Params, got.Params)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, got.IsTradingEnabled)

	_, err = m.GetStrategy(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatuses(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.CreateStrategy(ctx, sampleStrategy("a")))

	require.NoError(t, m.UpdateStrategyStatus(ctx, "a", types.StatusPaused))
	require.NoError(t, m.UpdateOrchestratorStatus(ctx, "a", types.OrchestratorInactive))
	require.NoError(t, m.SetTradingEnabled(ctx, "a", false))

	got, err := m.GetStrategy(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, got.Status)
	assert.Equal(t, types.OrchestratorInactive, got.OrchestratorStatus)
	assert.False(t, got.IsTradingEnabled)

	assert.ErrorIs(t, m.UpdateStrategyStatus(ctx, "missing", types.StatusPaused), ErrNotFound)
}

func TestListStrategiesOrdered(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := sampleStrategy("b")
	second := sampleStrategy("a")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, m.CreateStrategy(ctx, first))
	require.NoError(t, m.CreateStrategy(ctx, second))

	list, err := m.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestSavePositionUpserts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	st := types.PositionState{
		StrategyID: "a", Symbol: "BTC-USDT-SWAP", Position: types.PositionLong,
		EntryPrice: 100, StopLossPrice: 98, TP1Price: 101, TP2Price: 103,
		OpenedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, m.SavePosition(ctx, st))

	st.TP1Hit = true
	st.StopLossPrice = 100
	require.NoError(t, m.SavePosition(ctx, st))

	loaded, err := m.LoadPositions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].TP1Hit)
	assert.Equal(t, 100.0, loaded[0].StopLossPrice)

	require.NoError(t, m.DeletePosition(ctx, "a", "BTC-USDT-SWAP"))
	loaded, err = m.LoadPositions(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestDeleteStrategyCascades(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateStrategy(ctx, sampleStrategy("a")))
	require.NoError(t, m.SavePosition(ctx, types.PositionState{StrategyID: "a", Symbol: "BTC-USDT-SWAP", Position: types.PositionShort, EntryPrice: 10}))
	require.NoError(t, m.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "BTC-USDT-SWAP", Action: types.ActionClosePosition}))

	require.NoError(t, m.DeleteStrategy(ctx, "a"))

	positions, err := m.LoadPositions(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, positions)

	actions, err := m.Drain(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, actions)

	assert.ErrorIs(t, m.DeleteStrategy(ctx, "a"), ErrNotFound)
}

func TestDrainConsumesOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "BTC-USDT-SWAP", Action: types.ActionClosePosition}))
	require.NoError(t, m.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "ETH-USDT-SWAP", Action: types.ActionClosePosition}))
	require.NoError(t, m.Enqueue(ctx, types.ManualAction{StrategyID: "b", Symbol: "BTC-USDT-SWAP", Action: types.ActionClosePosition}))

	actions, err := m.Drain(ctx, "a")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "BTC-USDT-SWAP", actions[0].Symbol)
	assert.Equal(t, "ETH-USDT-SWAP", actions[1].Symbol)

	again, err := m.Drain(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, again)

	other, err := m.Drain(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestTradesAndAlarms(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	closed := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.RecordTrade(ctx, types.TradeRecord{StrategyID: "a", Symbol: "X", Side: types.PositionLong, EntryPrice: 100, ExitPrice: 98, ReturnPct: -2, Reason: types.ExitStopLoss, ClosedAt: closed}))
	require.NoError(t, m.RecordTrade(ctx, types.TradeRecord{StrategyID: "a", Symbol: "X", Side: types.PositionShort, EntryPrice: 100, ExitPrice: 95, ReturnPct: 5, Reason: types.ExitTakeProfit, ClosedAt: closed.Add(time.Hour)}))

	trades, err := m.ListTrades(ctx, "a")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, types.ExitStopLoss, trades[0].Reason)
	assert.NotEmpty(t, trades[0].ID)
	assert.InDelta(t, 5.0, trades[1].ReturnPct, 1e-9)

	require.NoError(t, m.RecordAlarm(ctx, types.AlarmRecord{StrategyID: "a", Level: "error", Message: "order rejected"}))
	alarms, err := m.ListAlarms(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, "order rejected", alarms[0].Message)

	assert.NoError(t, m.Health())
}
