package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/types"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Manager 数据库管理器。所有读写都经过同一把粗粒度锁，单条策略记录的写入是原子的。
type Manager struct {
	db     *gorm.DB
	config types.DatabaseConfig
	mu     sync.Mutex
}

// NewManager 创建数据库管理器
func NewManager(config types.DatabaseConfig) (*Manager, error) {
	dialector, err := openDialector(config)
	if err != nil {
		return nil, err
	}

	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	switch config.Driver {
	case "sqlite":
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	default:
		if config.MySQL.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(config.MySQL.MaxIdleConns)
		}
		if config.MySQL.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(config.MySQL.MaxOpenConns)
		}
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	manager := &Manager{
		db:     db,
		config: config,
	}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ 数据库连接成功", zap.String("driver", config.Driver))

	return manager, nil
}

func openDialector(config types.DatabaseConfig) (gorm.Dialector, error) {
	switch config.Driver {
	case "mysql":
		dsn := config.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				config.MySQL.Username,
				config.MySQL.Password,
				config.MySQL.Host,
				config.MySQL.Port,
				config.MySQL.Database,
			)
		}
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(config.DSN), nil
	case "sqlite", "":
		dsn := config.DSN
		if dsn == "" {
			dsn = "fleet.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", config.Driver)
	}
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&Strategy{},
		&Position{},
		&ManualAction{},
		&Trade{},
		&Alarm{},
	)
}

// CreateStrategy 新建策略
func (m *Manager) CreateStrategy(ctx context.Context, cfg types.StrategyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := strategyFromConfig(cfg)
	return m.db.WithContext(ctx).Create(&rec).Error
}

// GetStrategy 读取单条策略
func (m *Manager) GetStrategy(ctx context.Context, strategyID string) (types.StrategyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rec Strategy
	err := m.db.WithContext(ctx).Where("id = ?", strategyID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.StrategyConfig{}, fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	if err != nil {
		return types.StrategyConfig{}, err
	}
	return rec.toConfig(), nil
}

// ListStrategies 读取全部策略，按创建时间排序
func (m *Manager) ListStrategies(ctx context.Context) ([]types.StrategyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []Strategy
	if err := m.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]types.StrategyConfig, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toConfig())
	}
	return out, nil
}

// UpdateStrategyStatus 更新策略运行状态
func (m *Manager) UpdateStrategyStatus(ctx context.Context, strategyID string, status types.StrategyStatus) error {
	return m.updateStrategy(ctx, strategyID, map[string]interface{}{"status": string(status)})
}

// UpdateOrchestratorStatus 更新编排器激活状态
func (m *Manager) UpdateOrchestratorStatus(ctx context.Context, strategyID string, status types.OrchestratorStatus) error {
	return m.updateStrategy(ctx, strategyID, map[string]interface{}{"orchestrator_status": string(status)})
}

// SetTradingEnabled 更新实盘开关
func (m *Manager) SetTradingEnabled(ctx context.Context, strategyID string, enabled bool) error {
	return m.updateStrategy(ctx, strategyID, map[string]interface{}{"is_trading_enabled": enabled})
}

func (m *Manager) updateStrategy(ctx context.Context, strategyID string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates["updated_at"] = time.Now()
	result := m.db.WithContext(ctx).Model(&Strategy{}).Where("id = ?", strategyID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
	}
	return nil
}

// DeleteStrategy 删除策略，级联删除其持仓和未消费的人工操作
func (m *Manager) DeleteStrategy(ctx context.Context, strategyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("strategy_id = ?", strategyID).Delete(&Position{}).Error; err != nil {
			return err
		}
		if err := tx.Where("strategy_id = ?", strategyID).Delete(&ManualAction{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", strategyID).Delete(&Strategy{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("strategy %s: %w", strategyID, ErrNotFound)
		}
		return nil
	})
}

// LoadPositions 读取策略的全部持仓
func (m *Manager) LoadPositions(ctx context.Context, strategyID string) ([]types.PositionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []Position
	if err := m.db.WithContext(ctx).Where("strategy_id = ?", strategyID).Order("symbol ASC").Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]types.PositionState, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toState())
	}
	return out, nil
}

// SavePosition 按 (strategy_id, symbol) 写入持仓
func (m *Manager) SavePosition(ctx context.Context, st types.PositionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := positionFromState(st)
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "strategy_id"}, {Name: "symbol"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

// DeletePosition 平仓后删除持仓记录
func (m *Manager) DeletePosition(ctx context.Context, strategyID, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.WithContext(ctx).Where("strategy_id = ? AND symbol = ?", strategyID, symbol).Delete(&Position{}).Error
}

// Enqueue 写入一条人工操作
func (m *Manager) Enqueue(ctx context.Context, action types.ManualAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if action.ID == "" {
		action.ID = id.New()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	rec := ManualAction{
		ID:         action.ID,
		StrategyID: action.StrategyID,
		Symbol:     action.Symbol,
		Action:     string(action.Action),
		CreatedAt:  action.CreatedAt,
	}
	return m.db.WithContext(ctx).Create(&rec).Error
}

// Drain 取出并删除策略的全部人工操作，每条最多被消费一次
func (m *Manager) Drain(ctx context.Context, strategyID string) ([]types.ManualAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []ManualAction
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("strategy_id = ?", strategyID).Order("id ASC").Find(&recs).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		ids := make([]string, 0, len(recs))
		for _, r := range recs {
			ids = append(ids, r.ID)
		}
		return tx.Where("id IN ?", ids).Delete(&ManualAction{}).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.ManualAction, 0, len(recs))
	for _, r := range recs {
		out = append(out, types.ManualAction{
			ID:         r.ID,
			StrategyID: r.StrategyID,
			Symbol:     r.Symbol,
			Action:     types.ActionType(r.Action),
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// RecordTrade 追加一条交易流水
func (m *Manager) RecordTrade(ctx context.Context, rec types.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = id.New()
	}
	row := tradeFromRecord(rec)
	return m.db.WithContext(ctx).Create(&row).Error
}

// ListTrades 读取策略的全部已平仓交易
func (m *Manager) ListTrades(ctx context.Context, strategyID string) ([]types.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []Trade
	if err := m.db.WithContext(ctx).Where("strategy_id = ?", strategyID).Order("closed_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

// RecordAlarm 追加一条告警
func (m *Manager) RecordAlarm(ctx context.Context, alarm types.AlarmRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alarm.ID == "" {
		alarm.ID = id.New()
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = time.Now()
	}
	row := Alarm{
		ID:         alarm.ID,
		StrategyID: alarm.StrategyID,
		Symbol:     alarm.Symbol,
		Level:      alarm.Level,
		Message:    alarm.Message,
		CreatedAt:  alarm.CreatedAt,
	}
	return m.db.WithContext(ctx).Create(&row).Error
}

// ListAlarms 读取最近的告警
func (m *Manager) ListAlarms(ctx context.Context, limit int) ([]types.AlarmRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []Alarm
	if err := m.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.AlarmRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.AlarmRecord{
			ID:         r.ID,
			StrategyID: r.StrategyID,
			Symbol:     r.Symbol,
			Level:      r.Level,
			Message:    r.Message,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
