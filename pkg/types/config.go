package types

import "time"

// Config 主配置结构
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	DingTalk     DingTalkConfig     `mapstructure:"dingtalk"`
	PushPlus     PushPlusConfig     `mapstructure:"pushplus"`
	Network      NetworkConfig      `mapstructure:"network"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	OKX          OKXConfig          `mapstructure:"okx"`
	Fleet        FleetConfig        `mapstructure:"fleet"`
	Evolution    EvolutionConfig    `mapstructure:"evolution"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	API          APIConfig          `mapstructure:"api"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// RedisConfig Redis配置，URL 为空时人工操作队列落在数据库
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// PushPlusConfig PushPlus配置
type PushPlusConfig struct {
	UserToken string `mapstructure:"user_token"`
	To        string `mapstructure:"to"` // 好友令牌，多人用逗号分隔
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // mysql / postgres / sqlite
	DSN    string      `mapstructure:"dsn"`    // postgres、sqlite 使用；mysql 未填时由 MySQL 段拼接
	MySQL  MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	OKXEndpoint       string        `mapstructure:"okx_endpoint"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"` // 固定重连间隔
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"` // 超时未收到任何消息视为断线
	EscalateAfter     int           `mapstructure:"escalate_after"`    // 连续失败多少次后告警
}

// OKXConfig OKX REST 配置
type OKXConfig struct {
	RestEndpoint string `mapstructure:"rest_endpoint"`
	APIKey       string `mapstructure:"api_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Passphrase   string `mapstructure:"passphrase"`
	DryRun       bool   `mapstructure:"dry_run"` // true 时只做模拟仓
}

// FleetConfig 策略舰队配置
type FleetConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"` // 人工操作轮询间隔
	WindowSize        int           `mapstructure:"window_size"`   // 每个交易对保留的K线数
	StatsInterval     time.Duration `mapstructure:"stats_interval"`
}

// EvolutionConfig 进化引擎配置
type EvolutionConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	MinPopulation   int           `mapstructure:"min_population"`
	EliminationRate float64       `mapstructure:"elimination_rate"`
	SelectionRate   float64       `mapstructure:"selection_rate"`
	MutationChance  float64       `mapstructure:"mutation_chance"`
	MutationScale   float64       `mapstructure:"mutation_scale"`
	MinTrades       int           `mapstructure:"min_trades"`
	Seed            int64         `mapstructure:"seed"` // 0 表示按时间取种子
}

// OrchestratorConfig 市场状态编排器配置
type OrchestratorConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	BenchmarkSymbol   string        `mapstructure:"benchmark_symbol"`
	BenchmarkInterval string        `mapstructure:"benchmark_interval"`
	SentimentURL      string        `mapstructure:"sentiment_url"`
}

// APIConfig 运维接口配置
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}
