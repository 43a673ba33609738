package mlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts *zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger using a production encoder for "production"
// env names and a development (colored, console) encoder otherwise, mirroring
// the teacher's environment-driven zap setup.
func NewZapLogger(envName string, logLevel string) (*ZapLogger, error) {
	var cfg zap.Config

	if envName == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if logLevel != "" {
		var lvl zapcore.Level
		if err := lvl.Set(logLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)                    { l.sugar.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any)    { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warn(args ...any)                    { l.sugar.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any)    { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Error(args ...any)                   { l.sugar.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Debug(args ...any)                   { l.sugar.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
