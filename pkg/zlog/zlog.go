package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"EchoDesk/internal/config"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// getLogger 懒加载全局日志器，日志同时输出到控制台和滚动文件
func getLogger() *zap.Logger {
	once.Do(func() {
		logPath := config.GetConfig().LogConfig.LogPath
		if logPath == "" {
			logPath = "logs"
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(logPath, "server.log"),
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
			Compress:   true,
		})

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		core := zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, zapcore.InfoLevel),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zapcore.DebugLevel),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	})
	return logger
}

func Debug(msg string, fields ...zap.Field) {
	getLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	getLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	getLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	getLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	getLogger().Fatal(msg, fields...)
}

func Sync() {
	_ = getLogger().Sync()
}
