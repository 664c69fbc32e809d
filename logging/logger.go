package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level is a backend independent log level.
type Level int

const (
	// LevelDebug is the debug logging level.
	LevelDebug Level = iota
	// LevelInfo is the informational logging level.
	LevelInfo
	// LevelWarn is the warning logging level.
	LevelWarn
	// LevelError is the error logging level.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a configuration string ("debug", "INFO", "warning", ...)
// into a Level. Unknown or empty values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger defines the minimal structured logging interface used across
// InsightMesh. args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// ZerologAdapter wraps a zerolog.Logger to implement the Logger interface.
// Key/value args become typed zerolog fields; error values are attached with Err.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger from a zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) Logger {
	return &ZerologAdapter{logger: logger}
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { z.emit(z.logger.Debug(), msg, args) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { z.emit(z.logger.Info(), msg, args) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { z.emit(z.logger.Warn(), msg, args) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { z.emit(z.logger.Error(), msg, args) }

func (z *ZerologAdapter) emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			ev = ev.Str("!BADKEY", key)
			break
		}
		switch v := args[i+1].(type) {
		case error:
			if key == "error" || key == "err" {
				ev = ev.Err(v)
			} else {
				ev = ev.AnErr(key, v)
			}
		case string:
			ev = ev.Str(key, v)
		case int:
			ev = ev.Int(key, v)
		case float64:
			ev = ev.Float64(key, v)
		case bool:
			ev = ev.Bool(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// Config configures construction of a Logger via New.
type Config struct {
	Level   Level
	Format  string // json, text or console
	Backend string // zerolog or slog
	Output  io.Writer
}

// DefaultConfig returns an info level zerolog console configuration on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "console", Backend: "zerolog", Output: os.Stderr}
}

// New builds a Logger from cfg. Zero values fall back to DefaultConfig.
func New(cfg Config) Logger {
	def := DefaultConfig()
	if cfg.Output == nil {
		cfg.Output = def.Output
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}

	if cfg.Backend == "slog" {
		opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level)}
		var handler slog.Handler
		if cfg.Format == "json" {
			handler = slog.NewJSONHandler(cfg.Output, opts)
		} else {
			handler = slog.NewTextHandler(cfg.Output, opts)
		}
		return NewSlogAdapter(slog.New(handler))
	}

	out := cfg.Output
	if cfg.Format == "console" || cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).With().Timestamp().Logger().Level(zerologLevel(cfg.Level))
	return NewZerologAdapter(zl)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type levelFilter struct {
	next Logger
	min  Level
}

// WithLevel returns a Logger that drops messages below min before handing
// them to next. Used for per-agent log levels on a shared sink.
func WithLevel(next Logger, min Level) Logger {
	if next == nil {
		return NoOpLogger{}
	}
	return &levelFilter{next: next, min: min}
}

func (f *levelFilter) Debug(msg string, args ...any) {
	if f.min <= LevelDebug {
		f.next.Debug(msg, args...)
	}
}

func (f *levelFilter) Info(msg string, args ...any) {
	if f.min <= LevelInfo {
		f.next.Info(msg, args...)
	}
}

func (f *levelFilter) Warn(msg string, args ...any) {
	if f.min <= LevelWarn {
		f.next.Warn(msg, args...)
	}
}

func (f *levelFilter) Error(msg string, args ...any) {
	if f.min <= LevelError {
		f.next.Error(msg, args...)
	}
}

type withFields struct {
	next   Logger
	fields []any
}

// With returns a Logger that prepends the given key/value pairs to every entry.
func With(next Logger, args ...any) Logger {
	if next == nil {
		next = NoOpLogger{}
	}
	if len(args) == 0 {
		return next
	}
	return &withFields{next: next, fields: args}
}

func (w *withFields) merge(args []any) []any {
	out := make([]any, 0, len(w.fields)+len(args))
	out = append(out, w.fields...)
	return append(out, args...)
}

func (w *withFields) Debug(msg string, args ...any) { w.next.Debug(msg, w.merge(args)...) }
func (w *withFields) Info(msg string, args ...any)  { w.next.Info(msg, w.merge(args)...) }
func (w *withFields) Warn(msg string, args ...any)  { w.next.Warn(msg, w.merge(args)...) }
func (w *withFields) Error(msg string, args ...any) { w.next.Error(msg, w.merge(args)...) }

// LogLLMCall records completer latency, token usage and success.
func LogLLMCall(l Logger, model string, tokens int, dur time.Duration, err error) {
	if err != nil {
		l.Error("LLM call failed", "model", model, "token_count", tokens, "duration", dur, "error", err)
		return
	}
	l.Debug("LLM call completed", "model", model, "token_count", tokens, "duration", dur)
}

// LogFlowExecution records aggregate flow run metrics.
func LogFlowExecution(l Logger, sessionID string, steps []string, dur time.Duration, err error) {
	if err != nil {
		l.Error("Flow execution failed", "session_id", sessionID, "steps", strings.Join(steps, ">"), "duration", dur, "error", err)
		return
	}
	l.Info("Flow execution completed", "session_id", sessionID, "steps", strings.Join(steps, ">"), "duration", dur)
}
