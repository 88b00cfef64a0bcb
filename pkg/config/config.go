package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"okx-strategy-fleet/pkg/types"
)

// Load 加载配置，path 非空时直接读取该文件
func Load(path string) (*types.Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，log.level → LOG_LEVEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		// 优先尝试读取本地配置文件
		v.SetConfigName("config.local")
		if err := v.ReadInConfig(); err != nil {
			// 如果本地配置文件不存在，尝试读取默认配置文件
			v.SetConfigName("config")
			if err := v.ReadInConfig(); err != nil {
				var configFileNotFoundError viper.ConfigFileNotFoundError
				if !errors.As(err, &configFileNotFoundError) {
					return nil, err
				}
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "fleet.db")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 20)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)

	v.SetDefault("websocket.okx_endpoint", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("websocket.reconnect_interval", 10*time.Second)
	v.SetDefault("websocket.ping_interval", 20*time.Second)
	v.SetDefault("websocket.heartbeat_timeout", 30*time.Second)
	v.SetDefault("websocket.escalate_after", 5)

	v.SetDefault("okx.rest_endpoint", "https://www.okx.com")
	v.SetDefault("okx.dry_run", true)

	v.SetDefault("fleet.reconcile_interval", 30*time.Second)
	v.SetDefault("fleet.poll_interval", 5*time.Second)
	v.SetDefault("fleet.window_size", 200)
	v.SetDefault("fleet.stats_interval", 5*time.Minute)

	v.SetDefault("evolution.enabled", true)
	v.SetDefault("evolution.interval", 24*time.Hour)
	v.SetDefault("evolution.min_population", 4)
	v.SetDefault("evolution.elimination_rate", 0.25)
	v.SetDefault("evolution.selection_rate", 0.25)
	v.SetDefault("evolution.mutation_chance", 0.4)
	v.SetDefault("evolution.mutation_scale", 0.15)
	v.SetDefault("evolution.min_trades", 5)
	v.SetDefault("evolution.seed", 0)

	v.SetDefault("orchestrator.enabled", true)
	v.SetDefault("orchestrator.interval", 4*time.Hour)
	v.SetDefault("orchestrator.benchmark_symbol", "BTC-USDT-SWAP")
	v.SetDefault("orchestrator.benchmark_interval", "1H")
	v.SetDefault("orchestrator.sentiment_url", "https://api.alternative.me/fng/?limit=1")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8080")
}
