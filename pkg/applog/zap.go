package applog

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a Logger backed by zap, configured the way production
// services are: JSON encoding and capitalized levels in production,
// colorized console encoding otherwise, level driven by LOG_LEVEL.
func NewZap(envName string) Logger {
	var cfg zap.Config

	if envName == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if val, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var lvl zapcore.Level
		if err := lvl.Set(val); err != nil {
			log.Printf("invalid LOG_LEVEL %q, falling back to info: %v", val, err)

			lvl = zapcore.InfoLevel
		}

		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}

	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Info(args ...any)                  { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Error(args ...any)                 { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Warn(args ...any)                  { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *zapLogger) WithFields(fields ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(fields...)}
}

func (l *zapLogger) Sync() error { return l.sugar.Sync() }
