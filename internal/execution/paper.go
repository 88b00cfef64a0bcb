package execution

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/types"
)

// PaperExecutor 模拟下单器，只在内存里记录净持仓（dry_run 模式）
type PaperExecutor struct {
	mu        sync.Mutex
	positions map[string]float64
	leverage  map[string]int
}

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{
		positions: make(map[string]float64),
		leverage:  make(map[string]int),
	}
}

func (p *PaperExecutor) SetLeverage(_ context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[symbol] = leverage
	return nil
}

func (p *PaperExecutor) PlaceOrder(_ context.Context, symbol, side string, quantity float64, reduceOnly bool) (types.OrderResult, error) {
	if quantity <= 0 {
		return types.OrderResult{}, fmt.Errorf("下单数量无效: %v", quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delta := quantity
	if side == types.OrderSideSell {
		delta = -quantity
	}
	if reduceOnly {
		cur := p.positions[symbol]
		if cur == 0 || (cur > 0) == (delta > 0) {
			return types.OrderResult{}, fmt.Errorf("reduce-only 订单方向与持仓不符: %s", symbol)
		}
	}
	p.positions[symbol] += delta

	result := types.OrderResult{
		OrderID:  "paper-" + id.New(),
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
	}
	zap.L().Info("📝 模拟下单",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.Bool("reduce_only", reduceOnly))
	return result, nil
}

func (p *PaperExecutor) OpenPositionAmount(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.positions[symbol]
	if v < 0 {
		v = -v
	}
	return v, nil
}

func (p *PaperExecutor) SymbolInfo(_ context.Context, symbol string) (types.SymbolInfo, error) {
	return types.SymbolInfo{Symbol: symbol, LotSize: 0.01, MinSize: 0.01, TickSize: 0.1, ContractSize: 1}, nil
}
