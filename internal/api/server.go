package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"okx-strategy-fleet/internal/regime"
	"okx-strategy-fleet/internal/strategy/database"
	"okx-strategy-fleet/internal/strategy/engine"
	"okx-strategy-fleet/internal/strategy/monitor"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/types"
)

// Store 运维接口使用的存储操作
type Store interface {
	ListStrategies(ctx context.Context) ([]types.StrategyConfig, error)
	GetStrategy(ctx context.Context, strategyID string) (types.StrategyConfig, error)
	LoadPositions(ctx context.Context, strategyID string) ([]types.PositionState, error)
	ListTrades(ctx context.Context, strategyID string) ([]types.TradeRecord, error)
	ListAlarms(ctx context.Context, limit int) ([]types.AlarmRecord, error)
	UpdateStrategyStatus(ctx context.Context, strategyID string, status types.StrategyStatus) error
	UpdateOrchestratorStatus(ctx context.Context, strategyID string, status types.OrchestratorStatus) error
	SetTradingEnabled(ctx context.Context, strategyID string, enabled bool) error
	Health() error
}

// ActionQueue 人工操作入队
type ActionQueue interface {
	Enqueue(ctx context.Context, action types.ManualAction) error
}

// Handler 运维接口
type Handler struct {
	store   Store
	actions ActionQueue
	stats   monitor.StatsSource
	timeout time.Duration
	now     func() time.Time
}

type closeRequest struct {
	Symbol string `json:"symbol"`
}

type patchRequest struct {
	Status             *types.StrategyStatus     `json:"status"`
	OrchestratorStatus *types.OrchestratorStatus `json:"orchestrator_status"`
	IsTradingEnabled   *bool                     `json:"is_trading_enabled"`
}

type strategyView struct {
	types.StrategyConfig
	DNA     []string                   `json:"dna,omitempty"`
	Metrics monitor.PerformanceMetrics `json:"metrics"`
}

// NewRouter 创建路由。stats 为空时不提供 /fleet。
func NewRouter(store Store, actions ActionQueue, stats monitor.StatsSource, timeout time.Duration) *gin.Engine {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	h := &Handler{
		store:   store,
		actions: actions,
		stats:   stats,
		timeout: timeout,
		now:     time.Now,
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.health)
		v1.GET("/strategies", h.listStrategies)
		v1.GET("/strategies/:id", h.getStrategy)
		v1.PATCH("/strategies/:id", h.patchStrategy)
		v1.GET("/strategies/:id/positions", h.listPositions)
		v1.GET("/strategies/:id/trades", h.listTrades)
		v1.POST("/strategies/:id/close", h.closePosition)
		v1.GET("/alarms", h.listAlarms)
		if stats != nil {
			v1.GET("/fleet", h.fleet)
		}
	}

	return router
}

// requestLogger 用 zap 记录请求
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (h *Handler) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handler) health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.now().UTC(),
	})
}

func (h *Handler) view(ctx context.Context, cfg types.StrategyConfig) strategyView {
	v := strategyView{StrategyConfig: cfg, DNA: regime.DNA(cfg.Params).Tags()}
	if trades, err := h.store.ListTrades(ctx, cfg.ID); err == nil {
		v.Metrics = monitor.Compute(trades)
	}
	return v
}

func (h *Handler) listStrategies(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	strategies, err := h.store.ListStrategies(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	status := c.Query("status")
	out := make([]strategyView, 0, len(strategies))
	for _, s := range strategies {
		if status != "" && string(s.Status) != status {
			continue
		}
		out = append(out, h.view(ctx, s))
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (h *Handler) getStrategy(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	cfg, err := h.store.GetStrategy(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	positions, err := h.store.LoadPositions(ctx, cfg.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"strategy":  h.view(ctx, cfg),
		"positions": positions,
	})
}

// patchStrategy 手动修改运行状态、编排状态或实盘开关（包括恢复被淘汰的策略）
func (h *Handler) patchStrategy(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == nil && req.OrchestratorStatus == nil && req.IsTradingEnabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "没有需要修改的字段"})
		return
	}
	if req.Status != nil && *req.Status != types.StatusRunning && *req.Status != types.StatusPaused {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 status: " + string(*req.Status)})
		return
	}
	if req.OrchestratorStatus != nil && *req.OrchestratorStatus != types.OrchestratorActive && *req.OrchestratorStatus != types.OrchestratorInactive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 orchestrator_status: " + string(*req.OrchestratorStatus)})
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	strategyID := c.Param("id")

	if req.Status != nil {
		if err := h.store.UpdateStrategyStatus(ctx, strategyID, *req.Status); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.OrchestratorStatus != nil {
		if err := h.store.UpdateOrchestratorStatus(ctx, strategyID, *req.OrchestratorStatus); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.IsTradingEnabled != nil {
		if err := h.store.SetTradingEnabled(ctx, strategyID, *req.IsTradingEnabled); err != nil {
			writeError(c, err)
			return
		}
	}

	cfg, err := h.store.GetStrategy(ctx, strategyID)
	if err != nil {
		writeError(c, err)
		return
	}
	zap.L().Info("✏️ 手动修改策略状态",
		zap.String("strategy", cfg.Name),
		zap.String("status", string(cfg.Status)),
		zap.String("orchestrator_status", string(cfg.OrchestratorStatus)),
		zap.Bool("trading_enabled", cfg.IsTradingEnabled))
	c.JSON(http.StatusOK, gin.H{"strategy": cfg})
}

func (h *Handler) listPositions(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	cfg, err := h.store.GetStrategy(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	positions, err := h.store.LoadPositions(ctx, cfg.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (h *Handler) listTrades(c *gin.Context) {
	ctx, cancel := h.ctx(c)
	defer cancel()

	trades, err := h.store.ListTrades(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades":  trades,
		"metrics": monitor.Compute(trades),
	})
}

// closePosition 人工平仓入队，由对应的运行器在下一次轮询时执行
func (h *Handler) closePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	cfg, err := h.store.GetStrategy(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !slices.Contains(cfg.Symbols, req.Symbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "策略未交易该交易对: " + req.Symbol})
		return
	}

	action := types.ManualAction{
		ID:         id.New(),
		StrategyID: cfg.ID,
		Symbol:     req.Symbol,
		Action:     types.ActionClosePosition,
		CreatedAt:  h.now(),
	}
	if err := h.actions.Enqueue(ctx, action); err != nil {
		writeError(c, err)
		return
	}

	zap.L().Info("📥 人工平仓已入队",
		zap.String("strategy", cfg.Name),
		zap.String("symbol", req.Symbol))
	c.JSON(http.StatusAccepted, gin.H{"action": action})
}

func (h *Handler) listAlarms(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	ctx, cancel := h.ctx(c)
	defer cancel()

	alarms, err := h.store.ListAlarms(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alarms": alarms})
}

func (h *Handler) fleet(c *gin.Context) {
	stats := h.stats.Stats()
	if stats == nil {
		stats = []engine.Stats{}
	}
	c.JSON(http.StatusOK, gin.H{"runners": stats})
}

// Server 运维 HTTP 服务
type Server struct {
	srv *http.Server
}

// NewServer 创建 HTTP 服务
func NewServer(addr string, handler http.Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run 阻塞运行，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("🌐 运维接口已启动", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zap.L().Info("✅ 运维接口已关闭")
	return nil
}
