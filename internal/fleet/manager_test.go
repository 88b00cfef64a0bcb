package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/internal/strategy/engine"
	"okx-strategy-fleet/pkg/types"
)

type memRegistry struct {
	mu         sync.Mutex
	strategies []types.StrategyConfig
	err        error
}

func (r *memRegistry) ListStrategies(context.Context) ([]types.StrategyConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]types.StrategyConfig, len(r.strategies))
	copy(out, r.strategies)
	return out, nil
}

func (r *memRegistry) set(strategies ...types.StrategyConfig) {
	r.mu.Lock()
	r.strategies = strategies
	r.mu.Unlock()
}

type fakeRunner struct {
	cfg      types.StrategyConfig
	startErr error

	mu      sync.Mutex
	started bool
	stopped int
}

func (f *fakeRunner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakeRunner) Config() types.StrategyConfig { return f.cfg }

func (f *fakeRunner) GetStats() engine.Stats {
	return engine.Stats{StrategyID: f.cfg.ID, Name: f.cfg.Name}
}

type recordingFactory struct {
	mu      sync.Mutex
	created map[string][]*fakeRunner
	failIDs map[string]bool
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{created: make(map[string][]*fakeRunner), failIDs: make(map[string]bool)}
}

func (f *recordingFactory) build(cfg types.StrategyConfig) Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRunner{cfg: cfg}
	if f.failIDs[cfg.ID] {
		r.startErr = errors.New("no symbols")
	}
	f.created[cfg.ID] = append(f.created[cfg.ID], r)
	return r
}

func (f *recordingFactory) runners(id string) []*fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[id]
}

func strategy(id, interval string) types.StrategyConfig {
	return types.StrategyConfig{
		ID: id, Name: "s-" + id,
		Status: types.StatusRunning, OrchestratorStatus: types.OrchestratorActive,
		Symbols: []string{"BTC-USDT-SWAP"}, Interval: interval,
		Params: types.DefaultParams(),
	}
}

func TestReconcileRestartsOnlyChangedStrategy(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"), strategy("b", "15m"), strategy("c", "1H"))
	factory := newRecordingFactory()
	m := NewManager(reg, factory.build, 0)
	ctx := context.Background()

	require.NoError(t, m.Reconcile(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, m.Running())

	reg.set(strategy("a", "15m"), strategy("b", "5m"), strategy("c", "1H"))
	require.NoError(t, m.Reconcile(ctx))

	require.Len(t, factory.runners("b"), 2)
	assert.Equal(t, 1, factory.runners("b")[0].stopped)
	assert.Equal(t, "5m", factory.runners("b")[1].cfg.Interval)

	for _, id := range []string{"a", "c"} {
		require.Len(t, factory.runners(id), 1)
		assert.Zero(t, factory.runners(id)[0].stopped)
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Running())
}

func TestReconcileIgnoresStatusChanges(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"))
	factory := newRecordingFactory()
	m := NewManager(reg, factory.build, 0)

	require.NoError(t, m.Reconcile(context.Background()))

	paused := strategy("a", "15m")
	paused.Status = types.StatusPaused
	paused.OrchestratorStatus = types.OrchestratorInactive
	paused.IsTradingEnabled = true
	reg.set(paused)
	require.NoError(t, m.Reconcile(context.Background()))

	assert.Len(t, factory.runners("a"), 1)
}

func TestReconcileStopsRemoved(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"), strategy("b", "15m"))
	factory := newRecordingFactory()
	m := NewManager(reg, factory.build, 0)

	require.NoError(t, m.Reconcile(context.Background()))
	reg.set(strategy("b", "15m"))
	require.NoError(t, m.Reconcile(context.Background()))

	assert.Equal(t, []string{"b"}, m.Running())
	assert.Equal(t, 1, factory.runners("a")[0].stopped)
}

func TestStartFailureRetriedNextCycle(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"))
	factory := newRecordingFactory()
	factory.failIDs["a"] = true
	m := NewManager(reg, factory.build, 0)

	require.NoError(t, m.Reconcile(context.Background()))
	assert.Empty(t, m.Running())

	factory.mu.Lock()
	factory.failIDs["a"] = false
	factory.mu.Unlock()
	require.NoError(t, m.Reconcile(context.Background()))

	assert.Equal(t, []string{"a"}, m.Running())
	assert.Len(t, factory.runners("a"), 2)
}

func TestRegistryErrorKeepsRunners(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"))
	m := NewManager(reg, newRecordingFactory().build, 0)
	require.NoError(t, m.Reconcile(context.Background()))

	reg.mu.Lock()
	reg.err = errors.New("db down")
	reg.mu.Unlock()

	assert.Error(t, m.Reconcile(context.Background()))
	assert.Equal(t, []string{"a"}, m.Running())
}

func TestRunStopsAllOnCancel(t *testing.T) {
	reg := &memRegistry{}
	reg.set(strategy("a", "15m"), strategy("b", "15m"))
	factory := newRecordingFactory()
	m := NewManager(reg, factory.build, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(m.Running()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, m.Stats(), 2)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Empty(t, m.Running())
	for _, id := range []string{"a", "b"} {
		assert.Equal(t, 1, factory.runners(id)[0].stopped)
	}
}
