// Package log provides structured logging for otaguard using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with otaguard-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Same timestamp key and ISO 8601 timestamps in both configs
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Check logs a named check verdict. Failed checks log at warn so they
// surface in the default production config.
func (l *Logger) Check(name string, pass bool, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("check", name), zap.Bool("pass", pass)}, fields...)
	if pass {
		l.Info("check", fields...)
	} else {
		l.Warn("check", fields...)
	}
}

// WithRun returns a logger with the run identifier preset.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("run", id))}
}

// Hex formats a uint32 as hex string for logging.
func Hex(v uint32) string {
	return "0x" + hexString(uint64(v))
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint32) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint32) zap.Field {
	return zap.Uint32("size", size)
}

// Reg creates a named register-value field rendered as hex.
func Reg(name string, v uint32) zap.Field {
	return zap.String(name, Hex(v))
}
