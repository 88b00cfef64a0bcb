package evolution

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/internal/strategy/monitor"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/types"
)

// 无亏损交易时的盈亏比上限
const maxScore = 1e9

const maxNameLen = 64

var generationSuffix = regexp.MustCompile(`-g\d+-\d+$`)

// Store 进化引擎使用的注册表操作
type Store interface {
	ListStrategies(ctx context.Context) ([]types.StrategyConfig, error)
	ListTrades(ctx context.Context, strategyID string) ([]types.TradeRecord, error)
	UpdateStrategyStatus(ctx context.Context, strategyID string, status types.StrategyStatus) error
	CreateStrategy(ctx context.Context, cfg types.StrategyConfig) error
}

// Report 一轮进化的结果
type Report struct {
	Skipped    bool     `json:"skipped"`
	Reason     string   `json:"reason,omitempty"`
	Population int      `json:"population"`
	Eliminated []string `json:"eliminated"`
	Parents    []string `json:"parents"`
	Created    []string `json:"created"`
}

// Candidate 参与排名的策略
type Candidate struct {
	Config  types.StrategyConfig
	Metrics monitor.PerformanceMetrics
	Score   float64
}

// Engine 遗传算法进化引擎
type Engine struct {
	store Store
	cfg   types.EvolutionConfig
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// NewEngine 创建进化引擎。cfg.Seed 为 0 时按当前时间取种子。
func NewEngine(store Store, cfg types.EvolutionConfig) *Engine {
	cfg = withDefaults(cfg)
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
		newID: id.NewStrategyID,
	}
}

func withDefaults(cfg types.EvolutionConfig) types.EvolutionConfig {
	if cfg.MinPopulation <= 0 {
		cfg.MinPopulation = 4
	}
	if cfg.EliminationRate <= 0 {
		cfg.EliminationRate = 0.25
	}
	if cfg.SelectionRate <= 0 {
		cfg.SelectionRate = 0.25
	}
	if cfg.MutationChance < 0 {
		cfg.MutationChance = 0
	}
	if cfg.MutationScale <= 0 {
		cfg.MutationScale = 0.15
	}
	if cfg.MinTrades <= 0 {
		cfg.MinTrades = 5
	}
	return cfg
}

// Evolve 执行一轮：评分、淘汰、选择、繁殖。人口不足或没有父代时返回跳过报告。
func (e *Engine) Evolve(ctx context.Context) (Report, error) {
	strategies, err := e.store.ListStrategies(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("读取策略注册表失败: %w", err)
	}

	population := make([]Candidate, 0, len(strategies))
	for _, s := range strategies {
		if s.Status != types.StatusRunning {
			continue
		}
		trades, err := e.store.ListTrades(ctx, s.ID)
		if err != nil {
			return Report{}, fmt.Errorf("读取策略 %s 的交易记录失败: %w", s.Name, err)
		}
		m := monitor.Compute(trades)
		population = append(population, Candidate{Config: s, Metrics: m, Score: Score(m)})
	}

	report := Report{Population: len(population)}
	if len(population) < e.cfg.MinPopulation {
		report.Skipped = true
		report.Reason = fmt.Sprintf("人口不足: %d < %d", len(population), e.cfg.MinPopulation)
		zap.L().Info("⏭️ 跳过进化", zap.String("reason", report.Reason))
		return report, nil
	}

	Rank(population, e.cfg.MinTrades)
	nElim, nParents := PoolSizes(len(population), e.cfg.EliminationRate, e.cfg.SelectionRate)
	if nParents == 0 {
		report.Skipped = true
		report.Reason = "没有可繁殖的父代"
		zap.L().Info("⏭️ 跳过进化", zap.String("reason", report.Reason))
		return report, nil
	}

	parents := population[:nParents]
	eliminated := population[len(population)-nElim:]
	for _, p := range parents {
		report.Parents = append(report.Parents, p.Config.Name)
	}

	for _, c := range eliminated {
		if err := e.store.UpdateStrategyStatus(ctx, c.Config.ID, types.StatusPaused); err != nil {
			zap.L().Error("淘汰策略失败", zap.String("strategy", c.Config.Name), zap.Error(err))
			continue
		}
		report.Eliminated = append(report.Eliminated, c.Config.Name)
		zap.L().Info("🪦 淘汰策略",
			zap.String("strategy", c.Config.Name),
			zap.Int("trades", c.Metrics.TradeCount),
			zap.Float64("score", c.Score))
	}

	stamp := e.now().Unix()
	for i := range eliminated {
		child := e.breed(parents, stamp, i+1)
		if err := e.store.CreateStrategy(ctx, child); err != nil {
			zap.L().Error("创建子代策略失败", zap.String("strategy", child.Name), zap.Error(err))
			continue
		}
		report.Created = append(report.Created, child.Name)
	}

	zap.L().Info("🧬 进化完成",
		zap.Int("population", report.Population),
		zap.Strings("eliminated", report.Eliminated),
		zap.Strings("parents", report.Parents),
		zap.Strings("created", report.Created))
	return report, nil
}

// Score 以盈亏比评分，+Inf 截断为有限值
func Score(m monitor.PerformanceMetrics) float64 {
	if math.IsInf(m.ProfitFactor, 1) || m.ProfitFactor > maxScore {
		return maxScore
	}
	return m.ProfitFactor
}

// Rank 按 (交易数 > minTrades, 评分) 降序排列，评分相同按 ID
func Rank(population []Candidate, minTrades int) {
	sort.SliceStable(population, func(i, j int) bool {
		qi := population[i].Metrics.TradeCount > minTrades
		qj := population[j].Metrics.TradeCount > minTrades
		if qi != qj {
			return qi
		}
		if population[i].Score != population[j].Score {
			return population[i].Score > population[j].Score
		}
		return population[i].Config.ID < population[j].Config.ID
	})
}

// PoolSizes 淘汰数 max(1, floor(n×淘汰率))，父代数 floor(n×选择率)，两者不重叠
func PoolSizes(n int, eliminationRate, selectionRate float64) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	nElim := int(math.Floor(float64(n) * eliminationRate))
	if nElim < 1 {
		nElim = 1
	}
	if nElim > n {
		nElim = n
	}
	nParents := int(math.Floor(float64(n) * selectionRate))
	if nParents > n-nElim {
		nParents = n - nElim
	}
	return nElim, nParents
}

// breed 变异（按概率或父代不足两个时）或交叉产生一个子代
func (e *Engine) breed(parents []Candidate, stamp int64, n int) types.StrategyConfig {
	var (
		p1     types.StrategyConfig
		params types.StrategyParams
		method string
	)

	if len(parents) < 2 || e.rng.Float64() < e.cfg.MutationChance {
		p1 = parents[e.rng.Intn(len(parents))].Config
		params = Mutate(p1.Params, e.rng, e.cfg.MutationScale)
		method = "mutation"
	} else {
		idx := e.rng.Perm(len(parents))
		p1 = parents[idx[0]].Config
		p2 := parents[idx[1]].Config
		params = Crossover(p1.Params, p2.Params, e.rng)
		method = "crossover"
	}

	now := e.now()
	child := types.StrategyConfig{
		ID:                 e.newID(),
		Name:               childName(p1.Name, stamp, n),
		Status:             types.StatusRunning,
		OrchestratorStatus: types.OrchestratorActive,
		IsTradingEnabled:   p1.IsTradingEnabled,
		Symbols:            append([]string(nil), p1.Symbols...),
		Interval:           p1.Interval,
		Params:             params,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	zap.L().Info("🐣 繁殖子代",
		zap.String("child", child.Name),
		zap.String("parent", p1.Name),
		zap.String("method", method))
	return child
}

// Mutate 随机选一个参数：数值型 ±scale 后不低于下限，布尔型取反，子代参数必然与父代不同
func Mutate(p types.StrategyParams, rng *rand.Rand, scale float64) types.StrategyParams {
	fields := types.ParamFields()
	f := fields[rng.Intn(len(fields))]

	if f.Kind == types.ParamBool {
		f.Set(&p, 1-f.Get(&p))
		return p
	}

	up := rng.Intn(2) == 1
	orig := f.Get(&p)
	v := scaleField(f, orig, scale, up)
	if v == orig {
		// 已贴着下限时改为反方向变异
		v = scaleField(f, orig, scale, !up)
	}
	f.Set(&p, v)
	return p
}

// scaleField 数值型参数按 ±scale 缩放；整数至少移动一个单位，结果不低于下限
func scaleField(f types.ParamField, orig, scale float64, up bool) float64 {
	factor := 1 - scale
	if up {
		factor = 1 + scale
	}
	v := orig * factor
	if f.Kind == types.ParamInt {
		if up {
			v = math.Max(math.Round(v), orig+1)
		} else {
			v = math.Min(math.Round(v), orig-1)
		}
	}
	if v < f.Min {
		v = f.Min
	}
	return v
}

// Crossover 把 p2 的随机非空子集（至多一半字段）拷入 p1 的副本
func Crossover(p1, p2 types.StrategyParams, rng *rand.Rand) types.StrategyParams {
	fields := types.ParamFields()
	limit := len(fields) / 2
	if limit < 1 {
		limit = 1
	}
	k := 1 + rng.Intn(limit)

	child := p1
	for _, i := range rng.Perm(len(fields))[:k] {
		f := fields[i]
		f.Set(&child, f.Get(&p2))
	}
	return child
}

func childName(parent string, stamp int64, n int) string {
	base := generationSuffix.ReplaceAllString(parent, "")
	suffix := fmt.Sprintf("-g%d-%d", stamp, n)
	if len(base)+len(suffix) > maxNameLen {
		base = base[:maxNameLen-len(suffix)]
	}
	return base + suffix
}
