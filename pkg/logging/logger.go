package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// Options configure the process logger.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is json or text.
	Format string
	Output io.Writer
}

// Logger is a slog front end over a zap core.
type Logger struct {
	*slog.Logger
	zap     *zap.Logger
	undoStd func()
}

// Sync flushes buffered entries and restores the standard library logger.
func (l *Logger) Sync() error {
	if l.undoStd != nil {
		l.undoStd()
	}
	return l.zap.Sync()
}

// New builds the process logger. Output from the standard library log
// package is redirected into it.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "text", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, errorsx.New(errorsx.ReasonConfiguration, "unknown log format %q", opts.Format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), zapLevel(level))
	zl := zap.New(core, zap.AddCaller())
	return &Logger{
		Logger:  slog.New(zapslog.NewHandler(core, zapslog.WithCaller(true))),
		zap:     zl,
		undoStd: zap.RedirectStdLog(zl),
	}, nil
}

// InitLogger initializes a JSON logger with the specified level.
func InitLogger(level slog.Level) *slog.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		zapLevel(level),
	)
	return slog.New(zapslog.NewHandler(core, zapslog.WithCaller(true)))
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errorsx.New(errorsx.ReasonConfiguration, "unknown log level %q", name)
	}
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	return base.With(
		slog.String("component", component),
	)
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
