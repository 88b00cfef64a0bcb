package types

import (
	"slices"
	"strings"
	"time"
)

// StrategyStatus 策略运行状态
type StrategyStatus string

const (
	StatusRunning StrategyStatus = "running"
	StatusPaused  StrategyStatus = "paused"
)

// OrchestratorStatus 编排器激活状态
type OrchestratorStatus string

const (
	OrchestratorActive   OrchestratorStatus = "active"
	OrchestratorInactive OrchestratorStatus = "inactive"
)

// StrategyConfig 策略注册表中的一条策略
type StrategyConfig struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Status             StrategyStatus     `json:"status"`
	OrchestratorStatus OrchestratorStatus `json:"orchestrator_status"`
	IsTradingEnabled   bool               `json:"is_trading_enabled"`
	Symbols            []string           `json:"symbols"`
	Interval           string             `json:"interval"`
	Params             StrategyParams     `json:"strategy_params"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// CanOpen 是否允许开新仓
func (c StrategyConfig) CanOpen() bool {
	return c.Status == StatusRunning && c.OrchestratorStatus == OrchestratorActive
}

// LiveOrders 开仓时是否向交易所下单，否则只记模拟仓
func (c StrategyConfig) LiveOrders() bool {
	return c.IsTradingEnabled && c.Params.OrderNotional > 0
}

// SameDefinition 判断两份配置的运行定义是否一致（名称、交易对、周期、参数）。
// 状态类字段由 Runner 在每次信号前实时读取，不参与比较。
func (c StrategyConfig) SameDefinition(o StrategyConfig) bool {
	return c.ID == o.ID &&
		c.Name == o.Name &&
		c.Interval == o.Interval &&
		slices.Equal(c.Symbols, o.Symbols) &&
		c.Params == o.Params
}

// NormalizeSymbols 去掉空白、去重并保持原有顺序
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
