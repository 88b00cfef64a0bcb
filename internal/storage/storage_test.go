package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/pkg/types"
)

func newTestQueue(t *testing.T) (*ActionQueue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	q, err := NewActionQueue(types.RedisConfig{URL: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestEnqueueDrain(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "BTC-USDT-SWAP", Action: types.ActionClosePosition}))
	require.NoError(t, q.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "ETH-USDT-SWAP", Action: types.ActionClosePosition}))
	require.NoError(t, q.Enqueue(ctx, types.ManualAction{StrategyID: "b", Symbol: "BTC-USDT-SWAP", Action: types.ActionClosePosition}))

	pending, err := mr.List(actionKey("a"))
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	pending, err = mr.List(actionKey("b"))
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	actions, err := q.Drain(ctx, "a")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "BTC-USDT-SWAP", actions[0].Symbol)
	assert.Equal(t, types.ActionClosePosition, actions[1].Action)
	assert.NotEmpty(t, actions[0].ID)
	assert.False(t, mr.Exists(actionKey("a")))

	again, err := q.Drain(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDrainSkipsMalformed(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.RPush(actionKey("a"), "not-json")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, types.ManualAction{StrategyID: "a", Symbol: "X", Action: types.ActionClosePosition}))

	actions, err := q.Drain(ctx, "a")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "X", actions[0].Symbol)
}

func TestNewActionQueueFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewActionQueue(types.RedisConfig{URL: addr})
	assert.Error(t, err)
}
