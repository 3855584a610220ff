package common

import (
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Basic project metadata
const (
	ProjectName    = "campus-desk"
	ProjectVersion = "0.3.0"
)

var Logger *zap.Logger

// InitLogger builds the production zap logger once; level is one of debug/info/warn/error.
func InitLogger(level string) {
	if Logger != nil {
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	l, err := cfg.Build(zap.Fields(zap.String("service", ProjectName)))
	if err != nil {
		l = zap.NewNop()
	}
	Logger = l
}

// InitHertzLogger keeps hertz's internal logger at the same verbosity as zap.
func InitHertzLogger(level string) {
	switch parseLevel(level) {
	case zapcore.DebugLevel:
		hlog.SetLevel(hlog.LevelDebug)
	case zapcore.WarnLevel:
		hlog.SetLevel(hlog.LevelWarn)
	case zapcore.ErrorLevel:
		hlog.SetLevel(hlog.LevelError)
	default:
		hlog.SetLevel(hlog.LevelInfo)
	}
}

// L returns the global logger or a no-op logger before InitLogger ran.
func L() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}

func parseLevel(l string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logError(ctx *app.RequestContext, msg string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error(msg,
		zap.Error(err),
		zap.String("path", string(ctx.Path())),
		zap.String("request_id", RequestID(ctx)),
	)
}
