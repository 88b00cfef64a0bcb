package position

import (
	"sync"

	"okx-strategy-fleet/pkg/types"
)

// slot 单个交易对的持仓槽位，每个槽位一把锁
type slot struct {
	mu    sync.Mutex
	state types.PositionState
}

// Book 一个策略下按交易对划分的持仓表。
// 表本身的读写锁只保护 map，持仓状态由各槽位的锁保护。
type Book struct {
	strategyID string

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewBook 创建持仓表，loaded 为从存储恢复的持仓
func NewBook(strategyID string, symbols []string, loaded []types.PositionState) *Book {
	b := &Book{
		strategyID: strategyID,
		slots:      make(map[string]*slot, len(symbols)),
	}
	for _, s := range symbols {
		b.slots[s] = &slot{state: Flat(strategyID, s)}
	}
	for _, st := range loaded {
		if _, ok := b.slots[st.Symbol]; !ok {
			b.slots[st.Symbol] = &slot{}
		}
		st.StrategyID = strategyID
		b.slots[st.Symbol].state = st
	}
	return b
}

func (b *Book) slot(symbol string) *slot {
	b.mu.RLock()
	s, ok := b.slots[symbol]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.slots[symbol]; !ok {
		s = &slot{state: Flat(b.strategyID, symbol)}
		b.slots[symbol] = s
	}
	return s
}

// TryWith 非阻塞地获取槽位锁并执行 fn；锁被占用时直接返回 false
func (b *Book) TryWith(symbol string, fn func(st *types.PositionState)) bool {
	s := b.slot(symbol)
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	fn(&s.state)
	return true
}

// With 阻塞地获取槽位锁并执行 fn
func (b *Book) With(symbol string, fn func(st *types.PositionState)) {
	s := b.slot(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Snapshot 返回持仓副本
func (b *Book) Snapshot(symbol string) types.PositionState {
	var out types.PositionState
	b.With(symbol, func(st *types.PositionState) { out = *st })
	return out
}

// Open 返回所有持仓中的副本
func (b *Book) Open() []types.PositionState {
	b.mu.RLock()
	symbols := make([]string, 0, len(b.slots))
	for s := range b.slots {
		symbols = append(symbols, s)
	}
	b.mu.RUnlock()

	var out []types.PositionState
	for _, s := range symbols {
		if st := b.Snapshot(s); st.IsOpen() {
			out = append(out, st)
		}
	}
	return out
}
