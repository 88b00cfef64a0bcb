package types

// Direction 允许的开仓方向
type Direction string

const (
	DirectionBoth  Direction = "both"
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// SignalMode 信号模式
type SignalMode string

const (
	ModeTrend     SignalMode = "trend"     // EMA 交叉趋势跟随
	ModeReversion SignalMode = "reversion" // RSI 均值回归
)

// StrategyParams 策略调优参数，所有字段都有显式默认值
type StrategyParams struct {
	Direction  Direction  `json:"direction"`
	SignalMode SignalMode `json:"signal_mode"`

	EMAFast int `json:"ema_fast"`
	EMASlow int `json:"ema_slow"`

	RSIPeriod     int     `json:"rsi_period"`
	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`
	UseRSIFilter  bool    `json:"use_rsi_filter"`

	UseDonchianBreakout bool `json:"use_donchian_breakout"`
	DonchianLength      int  `json:"donchian_length"`

	UseVolumeConfirmation bool    `json:"use_volume_confirmation"`
	VolumeMultiplier      float64 `json:"volume_multiplier"`

	ATRPeriod     int     `json:"atr_period"`
	ATRMultiplier float64 `json:"atr_multiplier"` // 止损距离 = ATR × 倍数，0 表示不设

	StopLossPct   float64 `json:"stop_loss_pct"`   // 按收益率止损，0 表示不设
	TakeProfitPct float64 `json:"take_profit_pct"` // 按收益率止盈，0 表示不设
	TP1Pct        float64 `json:"tp1_pct"`
	TP2Pct        float64 `json:"tp2_pct"`

	Leverage      int     `json:"leverage"`
	OrderNotional float64 `json:"order_notional"` // 每次开仓的计价金额，0 只做模拟仓
}

// DefaultParams 默认参数
func DefaultParams() StrategyParams {
	return StrategyParams{
		Direction:        DirectionBoth,
		SignalMode:       ModeTrend,
		EMAFast:          12,
		EMASlow:          26,
		RSIPeriod:        14,
		RSIOverbought:    70,
		RSIOversold:      30,
		DonchianLength:   20,
		VolumeMultiplier: 1.5,
		ATRPeriod:        14,
		ATRMultiplier:    2.0,
		Leverage:         1,
	}
}

// WithDefaults 用默认值补齐缺失（零值）的周期类参数
func (p StrategyParams) WithDefaults() StrategyParams {
	d := DefaultParams()
	if p.Direction == "" {
		p.Direction = d.Direction
	}
	if p.SignalMode == "" {
		p.SignalMode = d.SignalMode
	}
	if p.EMAFast <= 0 {
		p.EMAFast = d.EMAFast
	}
	if p.EMASlow <= 0 {
		p.EMASlow = d.EMASlow
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.RSIOverbought <= 0 {
		p.RSIOverbought = d.RSIOverbought
	}
	if p.RSIOversold <= 0 {
		p.RSIOversold = d.RSIOversold
	}
	if p.DonchianLength <= 0 {
		p.DonchianLength = d.DonchianLength
	}
	if p.VolumeMultiplier <= 0 {
		p.VolumeMultiplier = d.VolumeMultiplier
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
	if p.Leverage <= 0 {
		p.Leverage = d.Leverage
	}
	return p
}

// AllowsLong 是否允许做多
func (p StrategyParams) AllowsLong() bool {
	return p.Direction != DirectionShort
}

// AllowsShort 是否允许做空
func (p StrategyParams) AllowsShort() bool {
	return p.Direction != DirectionLong
}

// ParamKind 参数类型
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamFloat
	ParamBool
)

// ParamField 可被遗传算法操作的参数描述
type ParamField struct {
	Name string
	Kind ParamKind
	Min  float64 // 数值型参数变异后的最小正值

	Get func(p *StrategyParams) float64
	Set func(p *StrategyParams, v float64)
}

func intField(name string, min float64, ptr func(p *StrategyParams) *int) ParamField {
	return ParamField{
		Name: name,
		Kind: ParamInt,
		Min:  min,
		Get:  func(p *StrategyParams) float64 { return float64(*ptr(p)) },
		Set:  func(p *StrategyParams, v float64) { *ptr(p) = int(v + 0.5) },
	}
}

func floatField(name string, min float64, ptr func(p *StrategyParams) *float64) ParamField {
	return ParamField{
		Name: name,
		Kind: ParamFloat,
		Min:  min,
		Get:  func(p *StrategyParams) float64 { return *ptr(p) },
		Set:  func(p *StrategyParams, v float64) { *ptr(p) = v },
	}
}

func boolField(name string, ptr func(p *StrategyParams) *bool) ParamField {
	return ParamField{
		Name: name,
		Kind: ParamBool,
		Get: func(p *StrategyParams) float64 {
			if *ptr(p) {
				return 1
			}
			return 0
		},
		Set: func(p *StrategyParams, v float64) { *ptr(p) = v != 0 },
	}
}

var paramFields = []ParamField{
	intField("ema_fast", 2, func(p *StrategyParams) *int { return &p.EMAFast }),
	intField("ema_slow", 3, func(p *StrategyParams) *int { return &p.EMASlow }),
	intField("rsi_period", 2, func(p *StrategyParams) *int { return &p.RSIPeriod }),
	floatField("rsi_overbought", 50, func(p *StrategyParams) *float64 { return &p.RSIOverbought }),
	floatField("rsi_oversold", 1, func(p *StrategyParams) *float64 { return &p.RSIOversold }),
	boolField("use_rsi_filter", func(p *StrategyParams) *bool { return &p.UseRSIFilter }),
	boolField("use_donchian_breakout", func(p *StrategyParams) *bool { return &p.UseDonchianBreakout }),
	intField("donchian_length", 2, func(p *StrategyParams) *int { return &p.DonchianLength }),
	boolField("use_volume_confirmation", func(p *StrategyParams) *bool { return &p.UseVolumeConfirmation }),
	floatField("volume_multiplier", 0.1, func(p *StrategyParams) *float64 { return &p.VolumeMultiplier }),
	intField("atr_period", 2, func(p *StrategyParams) *int { return &p.ATRPeriod }),
	floatField("atr_multiplier", 0.1, func(p *StrategyParams) *float64 { return &p.ATRMultiplier }),
	floatField("stop_loss_pct", 0.1, func(p *StrategyParams) *float64 { return &p.StopLossPct }),
	floatField("take_profit_pct", 0.1, func(p *StrategyParams) *float64 { return &p.TakeProfitPct }),
	floatField("tp1_pct", 0.1, func(p *StrategyParams) *float64 { return &p.TP1Pct }),
	floatField("tp2_pct", 0.1, func(p *StrategyParams) *float64 { return &p.TP2Pct }),
}

// ParamFields 返回可调参数描述表（副本）
func ParamFields() []ParamField {
	out := make([]ParamField, len(paramFields))
	copy(out, paramFields)
	return out
}
