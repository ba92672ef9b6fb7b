package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otikev/health-app/internal/config"
)

// New builds the process logger. Every entry carries the service, version and
// environment so scheduler logs from different deployments can be told apart.
func New(cfg config.LogConfig, app config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{cfg.OutputPath}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	zapCfg.InitialFields = Fields(cfg, app)

	return zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// Fields are the static fields attached to every entry.
func Fields(cfg config.LogConfig, app config.AppConfig) map[string]any {
	service := cfg.Service
	if service == "" {
		service = app.Name
	}
	fields := map[string]any{"service": service}
	if app.Version != "" {
		fields["version"] = app.Version
	}
	if app.Environment != "" {
		fields["env"] = app.Environment
	}
	return fields
}
