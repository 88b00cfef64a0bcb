package evolution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"okx-strategy-fleet/internal/strategy/monitor"
	"okx-strategy-fleet/pkg/types"
)

type memStore struct {
	mu         sync.Mutex
	strategies map[string]types.StrategyConfig
	trades     map[string][]types.TradeRecord
	order      []string
}

func newMemStore() *memStore {
	return &memStore{strategies: make(map[string]types.StrategyConfig), trades: make(map[string][]types.TradeRecord)}
}

func (s *memStore) add(cfg types.StrategyConfig, returns ...float64) {
	s.strategies[cfg.ID] = cfg
	s.order = append(s.order, cfg.ID)
	for _, r := range returns {
		s.trades[cfg.ID] = append(s.trades[cfg.ID], types.TradeRecord{StrategyID: cfg.ID, ReturnPct: r})
	}
}

func (s *memStore) ListStrategies(context.Context) ([]types.StrategyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.StrategyConfig, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.strategies[id])
	}
	return out, nil
}

func (s *memStore) ListTrades(_ context.Context, id string) ([]types.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades[id], nil
}

func (s *memStore) UpdateStrategyStatus(_ context.Context, id string, status types.StrategyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.strategies[id]
	cfg.Status = status
	s.strategies[id] = cfg
	return nil
}

func (s *memStore) CreateStrategy(_ context.Context, cfg types.StrategyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[cfg.ID] = cfg
	s.order = append(s.order, cfg.ID)
	return nil
}

func (s *memStore) byName(name string) types.StrategyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range s.strategies {
		if cfg.Name == name {
			return cfg
		}
	}
	return types.StrategyConfig{}
}

func baseStrategy(id string) types.StrategyConfig {
	return types.StrategyConfig{
		ID: id, Name: "trend-" + id,
		Status: types.StatusRunning, OrchestratorStatus: types.OrchestratorActive,
		Symbols: []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, Interval: "15m",
		Params: types.DefaultParams(),
	}
}

// returnsFor 生成 6 笔交易，盈亏比恰为 pf
func returnsFor(pf float64) []float64 {
	out := make([]float64, 0, 6)
	for i := 0; i < 5; i++ {
		out = append(out, pf/5)
	}
	return append(out, -1)
}

func newTestEngine(store Store, seed int64) *Engine {
	e := NewEngine(store, types.EvolutionConfig{Seed: seed, MutationChance: 0.4})
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("child-%d", n)
	}
	return e
}

func TestScenarioFivePopulation(t *testing.T) {
	store := newMemStore()
	for i, pf := range []float64{10, 8, 6, 4, 2} {
		store.add(baseStrategy(fmt.Sprintf("s%d", i)), returnsFor(pf)...)
	}

	report, err := newTestEngine(store, 42).Evolve(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Equal(t, []string{"trend-s4"}, report.Eliminated)
	assert.Equal(t, []string{"trend-s0"}, report.Parents)
	require.Len(t, report.Created, 1)
	assert.Equal(t, "trend-s0-g1700000000-1", report.Created[0])

	assert.Equal(t, types.StatusPaused, store.byName("trend-s4").Status)

	child := store.byName(report.Created[0])
	assert.Equal(t, types.StatusRunning, child.Status)
	assert.Equal(t, types.OrchestratorActive, child.OrchestratorStatus)
	assert.Equal(t, []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}, child.Symbols)
	assert.Equal(t, "15m", child.Interval)
	assert.NotEqual(t, types.DefaultParams(), child.Params, "single parent always mutates")
}

func TestSkipWhenPopulationTooSmall(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 3; i++ {
		store.add(baseStrategy(fmt.Sprintf("s%d", i)))
	}
	paused := baseStrategy("p")
	paused.Status = types.StatusPaused
	store.add(paused)

	report, err := newTestEngine(store, 1).Evolve(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 3, report.Population)
	assert.Empty(t, report.Created)
}

func TestSkipWhenNoParents(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 4; i++ {
		store.add(baseStrategy(fmt.Sprintf("s%d", i)))
	}
	e := newTestEngine(store, 1)
	e.cfg.SelectionRate = 0.1

	report, err := e.Evolve(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, types.StatusRunning, store.byName("trend-s3").Status, "nothing eliminated on skip")
}

func TestUnderSampledRankBelowQualified(t *testing.T) {
	pop := []Candidate{
		{Config: types.StrategyConfig{ID: "lucky"}, Metrics: monitor.PerformanceMetrics{TradeCount: 2}, Score: maxScore},
		{Config: types.StrategyConfig{ID: "steady"}, Metrics: monitor.PerformanceMetrics{TradeCount: 20}, Score: 1.2},
		{Config: types.StrategyConfig{ID: "b"}, Metrics: monitor.PerformanceMetrics{TradeCount: 20}, Score: 0.8},
		{Config: types.StrategyConfig{ID: "a"}, Metrics: monitor.PerformanceMetrics{TradeCount: 20}, Score: 0.8},
	}
	Rank(pop, 5)

	ids := make([]string, 0, len(pop))
	for _, c := range pop {
		ids = append(ids, c.Config.ID)
	}
	assert.Equal(t, []string{"steady", "a", "b", "lucky"}, ids)
}

func TestScoreClampsInfinity(t *testing.T) {
	assert.Equal(t, maxScore, Score(monitor.PerformanceMetrics{ProfitFactor: math.Inf(1)}))
	assert.Equal(t, 1.5, Score(monitor.PerformanceMetrics{ProfitFactor: 1.5}))
}

func TestPoolSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, elim, parents int
	}{
		{4, 1, 1},
		{5, 1, 1},
		{8, 2, 2},
		{3, 1, 0},
	}
	for _, tt := range tests {
		e, p := PoolSizes(tt.n, 0.25, 0.25)
		assert.Equal(t, tt.elim, e, "n=%d", tt.n)
		assert.Equal(t, tt.parents, p, "n=%d", tt.n)
	}
}

func TestEvolveDeterministicUnderSeed(t *testing.T) {
	run := func() ([]types.StrategyConfig, Report) {
		store := newMemStore()
		for i, pf := range []float64{9, 7, 5, 3, 2, 1.5, 1.2, 0.5} {
			store.add(baseStrategy(fmt.Sprintf("s%d", i)), returnsFor(pf)...)
		}
		report, err := newTestEngine(store, 7).Evolve(context.Background())
		require.NoError(t, err)

		var children []types.StrategyConfig
		for _, name := range report.Created {
			children = append(children, store.byName(name))
		}
		return children, report
	}

	c1, r1 := run()
	c2, r2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, []string{"trend-s6", "trend-s7"}, sorted(r1.Eliminated))
	assert.Equal(t, []string{"trend-s0", "trend-s1"}, r1.Parents)
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestMutateChangesOneField(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	base := types.DefaultParams()

	for i := 0; i < 50; i++ {
		child := Mutate(base, rng, 0.15)
		changed := 0
		for _, f := range types.ParamFields() {
			if f.Get(&child) != f.Get(&base) {
				changed++
				if f.Kind != types.ParamBool {
					assert.GreaterOrEqual(t, f.Get(&child), f.Min, f.Name)
				}
			}
		}
		assert.LessOrEqual(t, changed, 1)
	}
}

func TestMutateAlwaysMovesSmallInts(t *testing.T) {
	for _, small := range []int{2, 3} {
		base := types.DefaultParams()
		base.EMAFast, base.EMASlow, base.RSIPeriod = small, small, small
		base.DonchianLength, base.ATRPeriod = small, small
		base.StopLossPct = 0.1 // 贴着下限的浮点参数也必须变化

		rng := rand.New(rand.NewSource(int64(small)))
		for i := 0; i < 2000; i++ {
			child := Mutate(base, rng, 0.15)
			changed := 0
			for _, f := range types.ParamFields() {
				if f.Get(&child) == f.Get(&base) {
					continue
				}
				changed++
				if f.Kind == types.ParamInt {
					assert.GreaterOrEqual(t, math.Abs(f.Get(&child)-f.Get(&base)), 1.0, f.Name)
					assert.GreaterOrEqual(t, f.Get(&child), f.Min, f.Name)
				}
			}
			require.Equal(t, 1, changed, "draw %d with ints at %d", i, small)
		}
	}
}

func TestCrossoverTakesSubsetFromSecondParent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p1 := types.DefaultParams()
	p2 := p1
	p2.EMAFast, p2.EMASlow, p2.RSIPeriod = 5, 60, 7
	p2.UseRSIFilter, p2.UseDonchianBreakout, p2.UseVolumeConfirmation = true, true, true
	p2.ATRMultiplier, p2.StopLossPct, p2.TakeProfitPct = 3, 2, 4

	fields := types.ParamFields()
	for i := 0; i < 50; i++ {
		child := Crossover(p1, p2, rng)
		fromP2 := 0
		for _, f := range fields {
			v := f.Get(&child)
			assert.True(t, v == f.Get(&p1) || v == f.Get(&p2), f.Name)
			if v != f.Get(&p1) {
				fromP2++
			}
		}
		assert.LessOrEqual(t, fromP2, len(fields)/2)
	}
}

func TestChildNameDropsPreviousGeneration(t *testing.T) {
	assert.Equal(t, "trend-a-g200-3", childName("trend-a-g100-1", 200, 3))

	long := childName(strings.Repeat("x", 80), 1700000000, 12)
	assert.Len(t, long, maxNameLen)
	assert.True(t, strings.HasSuffix(long, "-g1700000000-12"))
}
