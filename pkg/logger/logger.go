package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"okx-strategy-fleet/pkg/types"
)

// Init 初始化全局 zap 日志：控制台输出 + lumberjack 切割的 JSON 文件
func Init(cfg types.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(cfg.FilePath, 0o755); err != nil {
			return nil, err
		}
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.FilePath, "fleet.log"),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(l)
	return l, nil
}
