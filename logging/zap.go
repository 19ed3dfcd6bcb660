package logging

import (
	"context"
	"maps"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to the Logger interface
type ZapLogger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

// NewZapLogger wraps an existing zap logger. The returned logger filters on
// its own level in addition to whatever the zap core enables.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{
		logger: logger,
		level:  zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
}

// NewZapProductionLogger builds a JSON zap logger at the given level
func NewZapProductionLogger(level Level) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zl := NewZapLogger(logger)
	zl.level.SetLevel(toZapLevel(level))
	return zl, nil
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZapFields(fields []Fields) []zap.Field {
	merged := make(Fields)
	for _, f := range fields {
		maps.Copy(merged, f)
	}
	out := make([]zap.Field, 0, len(merged))
	for k, v := range merged {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (z *ZapLogger) write(level zapcore.Level, msg string, extra []zap.Field, fields []Fields) {
	if !z.level.Enabled(level) {
		return
	}
	ce := z.logger.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(extra, toZapFields(fields)...)...)
}

func (z *ZapLogger) Debug(msg string, fields ...Fields) {
	z.write(zapcore.DebugLevel, msg, nil, fields)
}

func (z *ZapLogger) Info(msg string, fields ...Fields) {
	z.write(zapcore.InfoLevel, msg, nil, fields)
}

func (z *ZapLogger) Warn(msg string, fields ...Fields) {
	z.write(zapcore.WarnLevel, msg, nil, fields)
}

func (z *ZapLogger) Error(err error, msg string, fields ...Fields) {
	z.write(zapcore.ErrorLevel, msg, []zap.Field{zap.Error(err)}, fields)
}

func (z *ZapLogger) Fatal(err error, msg string, fields ...Fields) {
	z.write(zapcore.FatalLevel, msg, []zap.Field{zap.Error(err)}, fields)
}

func (z *ZapLogger) WithFields(fields Fields) Logger {
	return &ZapLogger{
		logger: z.logger.With(toZapFields([]Fields{fields})...),
		level:  z.level,
	}
}

func (z *ZapLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return z.WithFields(fields)
	}
	return z
}

func (z *ZapLogger) SetLevel(level Level) {
	z.level.SetLevel(toZapLevel(level))
}

// Sync flushes buffered zap output
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
