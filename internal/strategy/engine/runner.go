package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/internal/notifier"
	"okx-strategy-fleet/internal/strategy/position"
	"okx-strategy-fleet/internal/strategy/signals"
	"okx-strategy-fleet/pkg/types"
)

const (
	defaultWindowSize   = 200
	defaultPollInterval = 5 * time.Second
	defaultStopTimeout  = 30 * time.Second
	ioTimeout           = 15 * time.Second
)

// Options Runner 运行参数
type Options struct {
	WindowSize   int           // 每个交易对保留的K线数
	PollInterval time.Duration // 人工操作轮询间隔
	StopTimeout  time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Runner 单个策略的运行器：每个交易对一个行情协程，外加一个人工操作轮询协程
type Runner struct {
	config  types.StrategyConfig // 注册表中的原始定义，供舰队比较
	params  types.StrategyParams
	symbols []string
	deps    Deps
	opts    Options

	book *position.Book

	// 数据管道
	klineBuffer map[string][]*types.KLine
	bufferMutex sync.RWMutex

	// 控制
	lifecycleMu sync.Mutex // 保护 ctx、cancel 的赋值
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once

	// 统计
	processedKlines atomic.Int64
	detectedSignals atomic.Int64
	activeSymbols   atomic.Int32
}

// NewRunner 创建策略运行器
func NewRunner(config types.StrategyConfig, deps Deps, opts Options) *Runner {
	if deps.Evaluator == nil {
		deps.Evaluator = signals.NewEvaluator()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.NewConsoleNotifier()
	}
	return &Runner{
		config:      config,
		params:      config.Params.WithDefaults(),
		symbols:     types.NormalizeSymbols(config.Symbols),
		deps:        deps,
		opts:        opts.withDefaults(),
		klineBuffer: make(map[string][]*types.KLine),
	}
}

// Config 启动时加载的策略定义
func (r *Runner) Config() types.StrategyConfig {
	return r.config
}

// Start 加载持仓、初始化历史K线并启动各协程。单个交易对初始化失败只跳过该交易对。
func (r *Runner) Start(ctx context.Context) error {
	err := errors.New("runner already started")
	r.startOnce.Do(func() {
		err = r.start(ctx)
	})
	return err
}

func (r *Runner) start(parent context.Context) error {
	r.lifecycleMu.Lock()
	r.ctx, r.cancel = context.WithCancel(parent)
	r.lifecycleMu.Unlock()

	zap.L().Info("🚀 启动策略运行器",
		zap.String("strategy", r.config.Name),
		zap.String("id", r.config.ID),
		zap.Strings("symbols", r.symbols),
		zap.String("interval", r.config.Interval))

	loaded, err := r.deps.Store.LoadPositions(r.ctx, r.config.ID)
	if err != nil {
		r.cancel()
		return fmt.Errorf("加载持仓失败: %w", err)
	}
	r.book = position.NewBook(r.config.ID, r.symbols, loaded)

	for _, symbol := range r.symbols {
		if !r.initializeHistoryData(symbol) {
			continue
		}

		ch, err := r.deps.Stream.Subscribe(r.ctx, symbol, r.config.Interval)
		if err != nil {
			zap.L().Error("订阅K线失败，跳过交易对",
				zap.String("strategy", r.config.Name),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		r.activeSymbols.Add(1)
		r.wg.Add(1)
		go r.klineProcessor(symbol, ch)
	}

	r.wg.Add(1)
	go r.actionPoller()

	zap.L().Info("✅ 策略运行器启动成功",
		zap.String("strategy", r.config.Name),
		zap.Int32("active_symbols", r.activeSymbols.Load()),
		zap.Int("restored_positions", len(loaded)))
	return nil
}

// initializeHistoryData 初始化单个交易对的历史K线
func (r *Runner) initializeHistoryData(symbol string) bool {
	klines, err := r.deps.History.FetchHistoryKlines(r.ctx, symbol, r.config.Interval, r.opts.WindowSize)
	if err != nil {
		zap.L().Error("获取历史K线失败，跳过交易对",
			zap.String("strategy", r.config.Name),
			zap.String("symbol", symbol),
			zap.Error(err))
		return false
	}
	if len(klines) == 0 {
		zap.L().Warn("⚠️ 历史数据为空，跳过交易对",
			zap.String("strategy", r.config.Name),
			zap.String("symbol", symbol))
		return false
	}

	if len(klines) > r.opts.WindowSize {
		klines = klines[len(klines)-r.opts.WindowSize:]
	}

	r.bufferMutex.Lock()
	r.klineBuffer[symbol] = klines
	r.bufferMutex.Unlock()

	zap.L().Debug("✅ 历史数据初始化完成",
		zap.String("symbol", symbol),
		zap.Int("klines_count", len(klines)),
		zap.Time("oldest", klines[0].OpenTime),
		zap.Time("newest", klines[len(klines)-1].OpenTime))
	return true
}

// Stop 停止运行器，可重复调用。未启动时调用不产生任何效果
func (r *Runner) Stop() {
	r.lifecycleMu.Lock()
	cancel := r.cancel
	r.lifecycleMu.Unlock()
	if cancel == nil {
		return
	}

	r.stopOnce.Do(func() {
		zap.L().Info("🛑 停止策略运行器", zap.String("strategy", r.config.Name))
		cancel()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			zap.L().Info("✅ 策略运行器已停止", zap.String("strategy", r.config.Name))
		case <-time.After(r.opts.StopTimeout):
			zap.L().Warn("⚠️ 停止超时，强制退出", zap.String("strategy", r.config.Name))
		}
	})
}

// klineProcessor 单个交易对的行情消费协程，保证同一交易对按顺序处理
func (r *Runner) klineProcessor(symbol string, ch <-chan types.CandleEvent) {
	defer r.wg.Done()
	defer r.activeSymbols.Add(-1)

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Symbol == "" {
				ev.Symbol = symbol
			}
			r.handleEvent(ev)
		}
	}
}

// handleEvent 未收盘推送只做风控检查；收盘推送更新窗口并走完整的状态转换
func (r *Runner) handleEvent(ev types.CandleEvent) {
	if !ev.Closed {
		r.checkRisk(ev.Symbol, ev.High, ev.Low)
		return
	}

	r.updateKlineBuffer(ev.KLine)
	r.processedKlines.Add(1)

	// 止损优先于信号
	r.checkRisk(ev.Symbol, ev.High, ev.Low)

	params := r.params
	result := r.deps.Evaluator.Evaluate(r.getKlineHistory(ev.Symbol), params)
	if result.Close == 0 {
		result.Close = ev.Close
	}
	if result.Signal != types.SignalHold {
		r.detectedSignals.Add(1)
		zap.L().Info("🎯 发现交易信号",
			zap.String("strategy", r.config.Name),
			zap.String("symbol", ev.Symbol),
			zap.String("signal", string(result.Signal)),
			zap.String("reason", result.Reason),
			zap.Float64("close", result.Close))
	}

	r.applyExits(ev.Symbol, result, params)
	r.tryEnter(ev.Symbol, result)
}

// checkRisk 止损与分批目标检查
func (r *Runner) checkRisk(symbol string, high, low float64) {
	r.book.With(symbol, func(st *types.PositionState) {
		if !st.IsOpen() {
			return
		}
		if exit, hit := position.StopTriggered(*st, high, low); hit {
			r.closeLocked(st, exit, types.ExitStopLoss)
			return
		}
		if position.UpdateTargets(st, high, low) {
			zap.L().Info("🎯 触达止盈目标，上移止损",
				zap.String("strategy", r.config.Name),
				zap.String("symbol", symbol),
				zap.Bool("tp1_hit", st.TP1Hit),
				zap.Bool("tp2_hit", st.TP2Hit),
				zap.Float64("stop_loss", st.StopLossPrice))
			r.persist(*st)
		}
	})
}

// applyExits 收盘价的百分比止盈止损与反向信号平仓
func (r *Runner) applyExits(symbol string, result signals.Result, params types.StrategyParams) {
	r.book.With(symbol, func(st *types.PositionState) {
		if !st.IsOpen() {
			return
		}
		if reason, hit := position.PctExit(*st, result.Close, params); hit {
			r.closeLocked(st, result.Close, reason)
			return
		}
		if d := position.Decide(*st, result.Signal, params); d.Action == position.ActionClose {
			r.closeLocked(st, result.Close, d.Reason)
		}
	})
}

// tryEnter 非阻塞开仓：槽位被占用时直接跳过
func (r *Runner) tryEnter(symbol string, result signals.Result) {
	flat := position.Flat(r.config.ID, symbol)
	d := position.Decide(flat, result.Signal, r.params)
	if d.Action != position.ActionOpen {
		return
	}
	if r.book.Snapshot(symbol).IsOpen() {
		return
	}

	// 开仓前重新读取策略状态，暂停或停用立即生效
	current, err := r.readConfig()
	if err != nil {
		zap.L().Warn("读取策略状态失败，跳过开仓",
			zap.String("strategy", r.config.Name),
			zap.String("symbol", symbol),
			zap.Error(err))
		return
	}
	if !current.CanOpen() {
		zap.L().Debug("策略未激活，跳过开仓",
			zap.String("strategy", r.config.Name),
			zap.String("status", string(current.Status)),
			zap.String("orchestrator_status", string(current.OrchestratorStatus)))
		return
	}

	ok := r.book.TryWith(symbol, func(st *types.PositionState) {
		if st.IsOpen() {
			return
		}
		r.openLocked(st, symbol, d.Side, result, current)
	})
	if !ok {
		zap.L().Debug("开仓锁被占用，跳过",
			zap.String("strategy", r.config.Name),
			zap.String("symbol", symbol))
	}
}

// openLocked 在持有槽位锁时开仓；下单失败记为模拟仓并告警，不重试
func (r *Runner) openLocked(st *types.PositionState, symbol string, side types.PositionSide, result signals.Result, current types.StrategyConfig) {
	params := r.params
	next := position.Open(r.config.ID, symbol, side, result.Close, result.ATR, params, r.opts.Now())
	next.Paper = true

	if r.deps.Executor != nil && current.LiveOrders() {
		qty, err := r.placeEntry(symbol, side, result.Close, params)
		if err != nil {
			zap.L().Error("❌ 开仓下单失败，记为模拟仓",
				zap.String("strategy", r.config.Name),
				zap.String("symbol", symbol),
				zap.Error(err))
			r.alarm(symbol, "error", fmt.Sprintf("开仓下单失败，已记为模拟仓: %v", err))
			_ = r.notify(fmt.Sprintf("⚠️ 下单失败 %s", symbol), fmt.Sprintf("策略 %s 开仓下单失败，已记为模拟仓。\n\n错误: %v", r.config.Name, err))
		} else {
			next.Paper = false
			next.Quantity = qty
		}
	}

	*st = next
	r.persist(next)

	zap.L().Info("🟢 开仓",
		zap.String("strategy", r.config.Name),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", next.EntryPrice),
		zap.Float64("stop_loss", next.StopLossPrice),
		zap.Bool("paper", next.Paper))

	title, content := notifier.FormatOpen(r.config.Name, next)
	_ = r.notify(title, content)
}

func (r *Runner) placeEntry(symbol string, side types.PositionSide, price float64, params types.StrategyParams) (float64, error) {
	ctx, cancel := context.WithTimeout(r.ctx, ioTimeout)
	defer cancel()

	info, err := r.deps.Executor.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	qty := info.Contracts(params.OrderNotional, price)
	if qty <= 0 {
		return 0, fmt.Errorf("下单数量不足最小张数: notional=%.2f price=%.6g", params.OrderNotional, price)
	}

	if err := r.deps.Executor.SetLeverage(ctx, symbol, params.Leverage); err != nil {
		zap.L().Warn("设置杠杆失败，继续下单", zap.String("symbol", symbol), zap.Error(err))
	}

	orderSide := types.OrderSideBuy
	if side == types.PositionShort {
		orderSide = types.OrderSideSell
	}
	if _, err := r.deps.Executor.PlaceOrder(ctx, symbol, orderSide, qty, false); err != nil {
		return 0, err
	}
	return qty, nil
}

// closeLocked 在持有槽位锁时平仓：实盘仓位先下 reduce-only 单，再记录流水、删除持仓并通知
func (r *Runner) closeLocked(st *types.PositionState, exit float64, reason types.ExitReason) {
	if !st.Paper && r.deps.Executor != nil {
		if err := r.placeExit(*st); err != nil {
			zap.L().Error("❌ 平仓下单失败",
				zap.String("strategy", r.config.Name),
				zap.String("symbol", st.Symbol),
				zap.Error(err))
			r.alarm(st.Symbol, "error", fmt.Sprintf("平仓下单失败(%s): %v", reason, err))
		}
	}

	rec := position.Close(st, exit, reason, r.opts.Now())

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := r.deps.Store.RecordTrade(ctx, rec); err != nil {
		zap.L().Error("保存交易记录失败", zap.String("symbol", rec.Symbol), zap.Error(err))
	}
	if err := r.deps.Store.DeletePosition(ctx, r.config.ID, rec.Symbol); err != nil {
		zap.L().Error("删除持仓失败", zap.String("symbol", rec.Symbol), zap.Error(err))
	}

	zap.L().Info("🔴 平仓",
		zap.String("strategy", r.config.Name),
		zap.String("symbol", rec.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("entry", rec.EntryPrice),
		zap.Float64("exit", rec.ExitPrice),
		zap.Float64("return_pct", rec.ReturnPct))

	title, content := notifier.FormatClose(r.config.Name, rec)
	_ = r.notify(title, content)
}

func (r *Runner) placeExit(st types.PositionState) error {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	qty, err := r.deps.Executor.OpenPositionAmount(ctx, st.Symbol)
	if err != nil {
		return err
	}
	if qty <= 0 {
		qty = st.Quantity
	}
	if qty <= 0 {
		return nil
	}

	side := types.OrderSideSell
	if st.Position == types.PositionShort {
		side = types.OrderSideBuy
	}
	_, err = r.deps.Executor.PlaceOrder(ctx, st.Symbol, side, qty, true)
	return err
}

// actionPoller 周期性消费人工操作
func (r *Runner) actionPoller() {
	defer r.wg.Done()
	if r.deps.Actions == nil {
		return
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drainActions()
		}
	}
}

func (r *Runner) drainActions() {
	ctx, cancel := context.WithTimeout(r.ctx, ioTimeout)
	defer cancel()

	actions, err := r.deps.Actions.Drain(ctx, r.config.ID)
	if err != nil {
		zap.L().Warn("读取人工操作失败", zap.String("strategy", r.config.Name), zap.Error(err))
		return
	}

	for _, action := range actions {
		switch action.Action {
		case types.ActionClosePosition:
			r.manualClose(action.Symbol)
		default:
			zap.L().Warn("未知的人工操作", zap.String("action", string(action.Action)))
		}
	}
}

// manualClose 人工平仓，价格取窗口内最新收盘价
func (r *Runner) manualClose(symbol string) {
	r.book.With(symbol, func(st *types.PositionState) {
		if !st.IsOpen() {
			zap.L().Info("人工平仓：当前无持仓，忽略",
				zap.String("strategy", r.config.Name),
				zap.String("symbol", symbol))
			return
		}
		exit := r.lastClose(symbol)
		if exit <= 0 {
			exit = st.EntryPrice
		}
		r.closeLocked(st, exit, types.ExitManual)
	})
}

// updateKlineBuffer 收盘K线开盘时间与最后一根相同时替换，否则追加并淘汰最旧的
func (r *Runner) updateKlineBuffer(kline types.KLine) {
	r.bufferMutex.Lock()
	defer r.bufferMutex.Unlock()

	k := kline
	buf := r.klineBuffer[k.Symbol]
	if n := len(buf); n > 0 && buf[n-1].OpenTime.Equal(k.OpenTime) {
		buf[n-1] = &k
		return
	}

	buf = append(buf, &k)
	if len(buf) > r.opts.WindowSize {
		buf = buf[len(buf)-r.opts.WindowSize:]
	}
	r.klineBuffer[k.Symbol] = buf
}

// getKlineHistory 返回副本避免并发修改
func (r *Runner) getKlineHistory(symbol string) []*types.KLine {
	r.bufferMutex.RLock()
	defer r.bufferMutex.RUnlock()

	klines := r.klineBuffer[symbol]
	result := make([]*types.KLine, len(klines))
	copy(result, klines)
	return result
}

func (r *Runner) lastClose(symbol string) float64 {
	r.bufferMutex.RLock()
	defer r.bufferMutex.RUnlock()

	buf := r.klineBuffer[symbol]
	if len(buf) == 0 {
		return 0
	}
	return buf[len(buf)-1].Close
}

func (r *Runner) readConfig() (types.StrategyConfig, error) {
	ctx, cancel := context.WithTimeout(r.ctx, ioTimeout)
	defer cancel()
	return r.deps.Store.GetStrategy(ctx, r.config.ID)
}

func (r *Runner) persist(st types.PositionState) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := r.deps.Store.SavePosition(ctx, st); err != nil {
		zap.L().Error("保存持仓失败", zap.String("symbol", st.Symbol), zap.Error(err))
	}
}

func (r *Runner) alarm(symbol, level, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	err := r.deps.Store.RecordAlarm(ctx, types.AlarmRecord{
		StrategyID: r.config.ID,
		Symbol:     symbol,
		Level:      level,
		Message:    message,
		CreatedAt:  r.opts.Now(),
	})
	if err != nil {
		zap.L().Error("保存告警失败", zap.Error(err))
	}
}

func (r *Runner) notify(title, content string) error {
	if err := r.deps.Notifier.Notify(title, content); err != nil {
		zap.L().Warn("发送通知失败", zap.String("title", title), zap.Error(err))
		return err
	}
	return nil
}

// Positions 当前持仓快照
func (r *Runner) Positions() []types.PositionState {
	if r.book == nil {
		return nil
	}
	return r.book.Open()
}

// Stats 运行统计
type Stats struct {
	StrategyID      string         `json:"strategy_id"`
	Name            string         `json:"name"`
	ProcessedKlines int64          `json:"processed_klines"`
	DetectedSignals int64          `json:"detected_signals"`
	ActiveSymbols   int32          `json:"active_symbols"`
	BufferSizes     map[string]int `json:"buffer_sizes"`
	OpenPositions   int            `json:"open_positions"`
}

// GetStats 获取统计信息
func (r *Runner) GetStats() Stats {
	r.bufferMutex.RLock()
	bufferSizes := make(map[string]int, len(r.klineBuffer))
	for symbol, klines := range r.klineBuffer {
		bufferSizes[symbol] = len(klines)
	}
	r.bufferMutex.RUnlock()

	return Stats{
		StrategyID:      r.config.ID,
		Name:            r.config.Name,
		ProcessedKlines: r.processedKlines.Load(),
		DetectedSignals: r.detectedSignals.Load(),
		ActiveSymbols:   r.activeSymbols.Load(),
		BufferSizes:     bufferSizes,
		OpenPositions:   len(r.Positions()),
	}
}
