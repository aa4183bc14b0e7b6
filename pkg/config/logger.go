package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level       string
	Env         string
	ServiceName string
}

// NewLogger builds a production logger for the "prod" env and a development
// logger otherwise. The service name is attached to every entry.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Env == "prod" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.ServiceName != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": cfg.ServiceName}
	}

	return zapCfg.Build()
}

func (c *Config) LoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:       c.Logger.Level,
		Env:         c.Env,
		ServiceName: c.ServiceName,
	}
}
