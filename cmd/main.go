package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"okx-strategy-fleet/internal/strategy/monitor"
	"okx-strategy-fleet/pkg/config"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/logger"
	"okx-strategy-fleet/pkg/types"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fleet",
		Short:        "OKX 永续合约策略舰队",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径（默认查找 configs/config.local.yaml、configs/config.yaml）")

	root.AddCommand(
		newRunCmd(),
		newEvolveCmd(),
		newOrchestrateCmd(),
		newStrategiesCmd(),
		newCloseCmd(),
	)
	return root
}

// setup 加载配置、初始化日志并打开存储
func setup() (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if _, err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return NewApp(cfg)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "运行策略舰队、调度任务和运维接口，直到收到停止信号",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = zap.L().Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Start(ctx); err != nil {
				app.Stop()
				return err
			}
			<-ctx.Done()
			app.Stop()
			return nil
		},
	}
}

func newEvolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evolve",
		Short: "立即执行一轮策略进化",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.evolutionEngine().Evolve(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newOrchestrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrate",
		Short: "立即识别一次市场状态并更新策略激活状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.orchestrator().Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newStrategiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "列出策略及其绩效",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			strategies, err := app.db.ListStrategies(ctx)
			if err != nil {
				return err
			}
			metrics := make(map[string]monitor.PerformanceMetrics, len(strategies))
			for _, s := range strategies {
				trades, err := app.db.ListTrades(ctx, s.ID)
				if err != nil {
					return err
				}
				metrics[s.ID] = monitor.Compute(trades)
			}
			monitor.PrintStrategyTable(cmd.OutOrStdout(), strategies, metrics)
			return nil
		},
	}
	cmd.AddCommand(newStrategyCreateCmd(), newStrategySetCmd(), newStrategyDeleteCmd())
	return cmd
}

func newStrategyCreateCmd() *cobra.Command {
	var (
		name     string
		symbols  string
		interval string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "以默认参数登记一个新策略",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := types.StrategyConfig{
				ID:                 id.NewStrategyID(),
				Name:               name,
				Status:             types.StatusRunning,
				OrchestratorStatus: types.OrchestratorActive,
				Symbols:            types.NormalizeSymbols(strings.Split(symbols, ",")),
				Interval:           interval,
				Params:             types.DefaultParams(),
			}
			if len(cfg.Symbols) == 0 {
				return errors.New("至少需要一个交易对")
			}
			if err := app.db.CreateStrategy(cmd.Context(), cfg); err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "策略名称")
	cmd.Flags().StringVar(&symbols, "symbols", "BTC-USDT-SWAP", "交易对，逗号分隔")
	cmd.Flags().StringVar(&interval, "interval", "15m", "K线周期")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newStrategySetCmd() *cobra.Command {
	var (
		status       string
		orchestrator string
		trading      string
	)
	cmd := &cobra.Command{
		Use:   "set <strategy-id>",
		Short: "修改策略状态（例如恢复被淘汰的策略）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" && orchestrator == "" && trading == "" {
				return errors.New("没有需要修改的字段")
			}
			if status != "" && !slices.Contains([]string{string(types.StatusRunning), string(types.StatusPaused)}, status) {
				return fmt.Errorf("无效的 status: %s", status)
			}
			if orchestrator != "" && !slices.Contains([]string{string(types.OrchestratorActive), string(types.OrchestratorInactive)}, orchestrator) {
				return fmt.Errorf("无效的 orchestrator: %s", orchestrator)
			}
			if trading != "" && trading != "on" && trading != "off" {
				return fmt.Errorf("无效的 trading: %s（on/off）", trading)
			}

			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			strategyID := args[0]
			if status != "" {
				if err := app.db.UpdateStrategyStatus(ctx, strategyID, types.StrategyStatus(status)); err != nil {
					return err
				}
			}
			if orchestrator != "" {
				if err := app.db.UpdateOrchestratorStatus(ctx, strategyID, types.OrchestratorStatus(orchestrator)); err != nil {
					return err
				}
			}
			if trading != "" {
				if err := app.db.SetTradingEnabled(ctx, strategyID, trading == "on"); err != nil {
					return err
				}
			}

			cfg, err := app.db.GetStrategy(ctx, strategyID)
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "running / paused")
	cmd.Flags().StringVar(&orchestrator, "orchestrator", "", "active / inactive")
	cmd.Flags().StringVar(&trading, "trading", "", "实盘开关 on / off")
	return cmd
}

func newStrategyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <strategy-id>",
		Short: "删除策略及其持仓和未处理的人工操作，交易流水保留",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.db.DeleteStrategy(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已删除策略 %s\n", args[0])
			return nil
		},
	}
}

func newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <strategy-id> <symbol>",
		Short: "人工平仓：写入操作队列，由运行中的策略执行",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			cfg, err := app.db.GetStrategy(ctx, args[0])
			if err != nil {
				return err
			}
			symbol := strings.TrimSpace(args[1])
			if !slices.Contains(cfg.Symbols, symbol) {
				return fmt.Errorf("策略 %s 未交易 %s", cfg.Name, symbol)
			}

			action := types.ManualAction{
				ID:         id.New(),
				StrategyID: cfg.ID,
				Symbol:     symbol,
				Action:     types.ActionClosePosition,
				CreatedAt:  time.Now(),
			}
			if err := app.actions().Enqueue(ctx, action); err != nil {
				return err
			}
			return printJSON(cmd, action)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
