package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"okx-strategy-fleet/internal/api"
	"okx-strategy-fleet/internal/evolution"
	"okx-strategy-fleet/internal/execution"
	"okx-strategy-fleet/internal/fetcher"
	"okx-strategy-fleet/internal/fleet"
	"okx-strategy-fleet/internal/notifier"
	"okx-strategy-fleet/internal/regime"
	"okx-strategy-fleet/internal/scheduler"
	"okx-strategy-fleet/internal/storage"
	"okx-strategy-fleet/internal/strategy/database"
	"okx-strategy-fleet/internal/strategy/engine"
	stratfetcher "okx-strategy-fleet/internal/strategy/fetcher"
	"okx-strategy-fleet/internal/strategy/monitor"
	"okx-strategy-fleet/internal/strategy/websocket"
	"okx-strategy-fleet/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	db     *database.Manager
	redis  *storage.ActionQueue // 未配置 Redis 时为 nil
	notify notifier.Interface

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp 创建应用程序实例，打开数据库并选择人工操作队列
func NewApp(config *types.Config) (*App, error) {
	db, err := database.NewManager(config.Database)
	if err != nil {
		return nil, err
	}

	app := &App{
		config: config,
		db:     db,
		notify: notifier.NewFromConfig(config),
	}

	if config.Redis.URL != "" {
		queue, err := storage.NewActionQueue(config.Redis)
		if err != nil {
			zap.L().Warn("⚠️ Redis 不可用，人工操作队列使用数据库", zap.Error(err))
		} else {
			app.redis = queue
		}
	}

	return app, nil
}

// actions 人工操作队列：Redis 优先，否则落在数据库
func (app *App) actions() engine.ActionQueue {
	if app.redis != nil {
		return app.redis
	}
	return app.db
}

// executor 按配置选择实盘或模拟下单
func (app *App) executor() engine.Executor {
	if app.config.OKX.DryRun || app.config.OKX.APIKey == "" {
		zap.L().Info("🧪 模拟下单模式")
		return execution.NewPaperExecutor()
	}
	return execution.NewOKXExecutor(app.config.OKX, app.config.Network)
}

func (app *App) history() *stratfetcher.HistoryKlineFetcher {
	return stratfetcher.NewHistoryKlineFetcher(app.config.OKX.RestEndpoint, app.config.Network.Proxy, app.config.Network.Timeout)
}

// escalate 行情流长时间断线时记录告警并推送
func (app *App) escalate(symbol string, failures int, lastErr error) {
	message := fmt.Sprintf("行情流连续重连失败 %d 次: %v", failures, lastErr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.db.RecordAlarm(ctx, types.AlarmRecord{
		Symbol:    symbol,
		Level:     "error",
		Message:   message,
		CreatedAt: time.Now(),
	}); err != nil {
		zap.L().Error("记录告警失败", zap.Error(err))
	}
	if err := app.notify.Notify("🚨 行情流断线 "+symbol, message); err != nil {
		zap.L().Error("发送告警通知失败", zap.Error(err))
	}
}

func (app *App) evolutionEngine() *evolution.Engine {
	return evolution.NewEngine(app.db, app.config.Evolution)
}

func (app *App) orchestrator() *regime.Orchestrator {
	cfg := app.config.Orchestrator
	sentiment := fetcher.NewSentimentFetcher(cfg.SentimentURL, app.config.Network)
	market := regime.NewMarketContext(app.history(), sentiment, cfg.BenchmarkSymbol, cfg.BenchmarkInterval)
	return regime.NewOrchestrator(app.db, market)
}

// Start 启动舰队、调度任务、性能监控和运维接口
func (app *App) Start(parent context.Context) error {
	zap.L().Info("🚀 OKX Strategy Fleet 启动中...")

	app.ctx, app.cancel = context.WithCancel(parent)

	deps := engine.Deps{
		Stream:   websocket.NewClient(app.config.Network.Proxy, app.config.WebSocket, app.escalate),
		History:  app.history(),
		Executor: app.executor(),
		Store:    app.db,
		Actions:  app.actions(),
		Notifier: app.notify,
	}
	opts := engine.Options{
		WindowSize:   app.config.Fleet.WindowSize,
		PollInterval: app.config.Fleet.PollInterval,
	}
	manager := fleet.NewManager(app.db, func(cfg types.StrategyConfig) fleet.Runner {
		return engine.NewRunner(cfg, deps, opts)
	}, app.config.Fleet.ReconcileInterval)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		manager.Run(app.ctx)
	}()

	sched := scheduler.NewScheduler()
	if app.config.Evolution.Enabled {
		evo := app.evolutionEngine()
		if err := sched.Add(scheduler.Job{
			Name:     "evolution",
			Interval: app.config.Evolution.Interval,
			Align:    true,
			Run: func(ctx context.Context) {
				if _, err := evo.Evolve(ctx); err != nil {
					zap.L().Error("❌ 策略进化失败", zap.Error(err))
				}
			},
		}); err != nil {
			return err
		}
	}
	if app.config.Orchestrator.Enabled {
		orch := app.orchestrator()
		if err := sched.Add(scheduler.Job{
			Name:      "orchestrator",
			Interval:  app.config.Orchestrator.Interval,
			Immediate: true,
			Align:     true,
			Run: func(ctx context.Context) {
				if _, err := orch.Run(ctx); err != nil {
					zap.L().Error("❌ 市场状态编排失败", zap.Error(err))
				}
			},
		}); err != nil {
			return err
		}
	}
	sched.Start(app.ctx)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		sched.Wait()
	}()

	reporter := monitor.NewReporter(manager, app.db, app.config.Fleet.StatsInterval)
	reporter.Start(app.ctx)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		<-app.ctx.Done()
		reporter.Stop()
	}()

	if app.config.API.Enabled {
		router := api.NewRouter(app.db, app.actions(), manager, 0)
		server := api.NewServer(app.config.API.Addr, router)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := server.Run(app.ctx); err != nil {
				zap.L().Error("❌ 运维接口异常退出", zap.Error(err))
			}
		}()
	}

	zap.L().Info("✅ OKX Strategy Fleet 已启动")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	if app.cancel != nil {
		app.cancel()
	}

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ OKX Strategy Fleet 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	app.Close()
}

// Close 释放数据库和 Redis 连接
func (app *App) Close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			zap.L().Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
	if err := app.db.Close(); err != nil {
		zap.L().Warn("关闭数据库失败", zap.Error(err))
	}
}
