package types

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// KLine K线数据结构（通用市场数据）
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  string    `json:"interval"` // 15m
}

// CandleEvent 行情推送事件，Closed 为 true 表示该K线已收盘
type CandleEvent struct {
	KLine
	Closed    bool      `json:"closed"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal 交易信号方向
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// SymbolInfo 交易对精度规则
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	LotSize      float64 `json:"lot_size"`      // 下单数量步长
	MinSize      float64 `json:"min_size"`      // 最小下单数量
	TickSize     float64 `json:"tick_size"`     // 价格步长
	ContractSize float64 `json:"contract_size"` // 合约面值
}

// OrderResult 下单结果
type OrderResult struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Contracts 按名义价值换算下单张数，向下取整到 LotSize；不足 MinSize 返回 0
func (s SymbolInfo) Contracts(notional, price float64) float64 {
	if notional <= 0 || price <= 0 {
		return 0
	}
	ctVal := s.ContractSize
	if ctVal <= 0 {
		ctVal = 1
	}
	qty := notional / (price * ctVal)
	if s.LotSize > 0 {
		qty = math.Floor(qty/s.LotSize+1e-9) * s.LotSize
	}
	if qty < s.MinSize || qty <= 0 {
		return 0
	}
	return qty
}

// NormalizeBar OKX 周期写法：小时及以上使用大写单位，如 1h → 1H
func NormalizeBar(interval string) string {
	if n := len(interval); n >= 2 {
		switch interval[n-1] {
		case 'h', 'd', 'w':
			return interval[:n-1] + strings.ToUpper(interval[n-1:])
		}
	}
	return interval
}

// BarDuration K线周期时长，无法识别时按 15 分钟
func BarDuration(interval string) time.Duration {
	bar := NormalizeBar(interval)
	if len(bar) < 2 {
		return 15 * time.Minute
	}
	n, err := strconv.Atoi(bar[:len(bar)-1])
	if err != nil || n <= 0 {
		return 15 * time.Minute
	}

	var unit time.Duration
	switch bar[len(bar)-1] {
	case 'm':
		unit = time.Minute
	case 'H':
		unit = time.Hour
	case 'D':
		unit = 24 * time.Hour
	case 'W':
		unit = 7 * 24 * time.Hour
	default:
		return 15 * time.Minute
	}
	return time.Duration(n) * unit
}
