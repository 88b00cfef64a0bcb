package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"okx-strategy-fleet/pkg/id"
	"okx-strategy-fleet/pkg/types"
)

const keyPrefix = "fleet:actions:"

// ActionQueue 基于 Redis List 的人工操作队列，每个策略一个 key
type ActionQueue struct {
	client *redis.Client
}

// NewActionQueue 连接 Redis 并返回队列
func NewActionQueue(redisConfig types.RedisConfig) (*ActionQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	return &ActionQueue{client: client}, nil
}

func actionKey(strategyID string) string {
	return keyPrefix + strategyID
}

// Enqueue 追加一条人工操作
func (q *ActionQueue) Enqueue(ctx context.Context, action types.ManualAction) error {
	if action.ID == "" {
		action.ID = id.New()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	value, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("序列化人工操作失败: %w", err)
	}
	return q.client.RPush(ctx, actionKey(action.StrategyID), value).Err()
}

// Drain 在一个 MULTI 事务里读取并删除整条队列，每条操作最多被消费一次
func (q *ActionQueue) Drain(ctx context.Context, strategyID string) ([]types.ManualAction, error) {
	key := actionKey(strategyID)

	var lrange *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取人工操作失败: %w", err)
	}

	raw := lrange.Val()
	out := make([]types.ManualAction, 0, len(raw))
	for _, item := range raw {
		var action types.ManualAction
		if err := json.Unmarshal([]byte(item), &action); err != nil {
			zap.L().Warn("⚠️ 丢弃无法解析的人工操作", zap.String("strategy", strategyID), zap.Error(err))
			continue
		}
		out = append(out, action)
	}
	return out, nil
}

// Close 关闭连接
func (q *ActionQueue) Close() error {
	return q.client.Close()
}
