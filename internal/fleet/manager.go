package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/internal/strategy/engine"
	"okx-strategy-fleet/pkg/types"
)

// Registry 策略注册表
type Registry interface {
	ListStrategies(ctx context.Context) ([]types.StrategyConfig, error)
}

// Runner 由舰队管理的策略运行器
type Runner interface {
	Start(ctx context.Context) error
	Stop()
	Config() types.StrategyConfig
	GetStats() engine.Stats
}

// Factory 按策略定义创建运行器
type Factory func(cfg types.StrategyConfig) Runner

// Manager 舰队管理器：周期性地让运行中的 Runner 集合与注册表保持一致
type Manager struct {
	registry Registry
	factory  Factory
	interval time.Duration

	mu      sync.Mutex
	runners map[string]Runner
}

// NewManager 创建舰队管理器，interval 为 0 时默认 30 秒
func NewManager(registry Registry, factory Factory, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Manager{
		registry: registry,
		factory:  factory,
		interval: interval,
		runners:  make(map[string]Runner),
	}
}

// Run 立即对账一次，之后按周期对账；ctx 取消后并行停止所有 Runner 再返回
func (m *Manager) Run(ctx context.Context) {
	zap.L().Info("🚀 启动策略舰队", zap.Duration("reconcile_interval", m.interval))

	if err := m.Reconcile(ctx); err != nil {
		zap.L().Error("策略对账失败", zap.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.StopAll()
			return
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				zap.L().Error("策略对账失败", zap.Error(err))
			}
		}
	}
}

// Reconcile 对账：新增的启动，删除的停止，定义变化的重启。
// 读取注册表失败时不改动任何 Runner。
func (m *Manager) Reconcile(ctx context.Context) error {
	strategies, err := m.registry.ListStrategies(ctx)
	if err != nil {
		return fmt.Errorf("读取策略注册表失败: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]types.StrategyConfig, len(strategies))
	for _, s := range strategies {
		wanted[s.ID] = s
	}

	var started, stopped, restarted int

	for id, runner := range m.runners {
		cfg, ok := wanted[id]
		if !ok {
			zap.L().Info("🗑️ 策略已从注册表移除，停止运行器",
				zap.String("strategy", runner.Config().Name),
				zap.String("id", id))
			runner.Stop()
			delete(m.runners, id)
			stopped++
			continue
		}
		if !runner.Config().SameDefinition(cfg) {
			zap.L().Info("🔄 策略定义已变更，重启运行器",
				zap.String("strategy", cfg.Name),
				zap.String("id", id))
			runner.Stop()
			delete(m.runners, id)
			restarted++
		}
	}

	for _, s := range strategies {
		if _, ok := m.runners[s.ID]; ok {
			continue
		}
		runner := m.factory(s)
		if err := runner.Start(ctx); err != nil {
			// 下一轮对账重试
			zap.L().Error("❌ 启动策略运行器失败",
				zap.String("strategy", s.Name),
				zap.String("id", s.ID),
				zap.Error(err))
			continue
		}
		m.runners[s.ID] = runner
		started++
	}

	if started+stopped+restarted > 0 {
		zap.L().Info("✅ 策略对账完成",
			zap.Int("running", len(m.runners)),
			zap.Int("started", started),
			zap.Int("stopped", stopped),
			zap.Int("restarted", restarted))
	}
	return nil
}

// Running 运行中的策略 ID（排序）
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats 所有运行器的统计
func (m *Manager) Stats() []engine.Stats {
	m.mu.Lock()
	runners := make([]Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	out := make([]engine.Stats, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.GetStats())
	}
	return out
}

// StopAll 并行停止所有运行器
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]Runner)
	m.mu.Unlock()

	zap.L().Info("🛑 停止策略舰队", zap.Int("runners", len(runners)))

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()

	zap.L().Info("✅ 策略舰队已停止")
}
