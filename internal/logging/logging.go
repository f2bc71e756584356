// Package logging builds the zerolog loggers used across markyt and the
// helpers that attach request, tool and symbol fields to them.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"markyt-agent/internal/security"
)

// LogConfig mirrors the [logging] section of config.toml.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days

	// Console output goes to Stderr when nil.
	Output io.Writer
}

var levelLabels = map[string]string{
	"debug": "DBG",
	"info":  "INF",
	"warn":  "WRN",
	"error": "ERR",
	"fatal": "FTL",
}

// NewLoggerWithConfig creates the process logger and sets the global level.
// Console lines are colored only when written to a terminal; the rotated
// file always receives JSON.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, consoleWriter(cfg.Output))
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	ctx := zerolog.New(writer).With().Timestamp().Str("service", "markyt")
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	if out == nil {
		out = os.Stderr
	}
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       !color,
		TimeFormat:    time.TimeOnly,
		FieldsExclude: []string{"service"},
		FormatLevel: func(i interface{}) string {
			ll, _ := i.(string)
			label, ok := levelLabels[ll]
			if !ok {
				label = strings.ToUpper(ll)
			}
			if !color {
				return label
			}
			switch ll {
			case "debug":
				return "\033[36m" + label + "\033[0m"
			case "warn":
				return "\033[33m" + label + "\033[0m"
			case "error", "fatal":
				return "\033[31m" + label + "\033[0m"
			default:
				return "\033[32m" + label + "\033[0m"
			}
		},
	}
}

// parseLevel accepts the level names of config.toml, case-insensitively.
// Unknown names log at info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// SetInfoLevel sets the global log level to info.
func SetInfoLevel() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

type loggerKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithTool adds a tool name to the logger context.
func WithTool(logger zerolog.Logger, tool string) zerolog.Logger {
	return logger.With().Str("tool", tool).Logger()
}

// WithRequestID adds a request ID to the logger context.
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// WithAgent adds an agent name to the logger context.
func WithAgent(logger zerolog.Logger, agentName string) zerolog.Logger {
	return logger.With().Str("agent", agentName).Logger()
}

// LogToolCall logs a tool invocation requested by the model.
func LogToolCall(logger zerolog.Logger, callID, tool string, duration time.Duration, failed bool) {
	logger.Info().
		Str("event", "tool_call").
		Str("call_id", callID).
		Str("tool", tool).
		Dur("duration", duration).
		Bool("failed", failed).
		Msg("Tool executed")
}

// LogChatTurn logs the outcome of one advisor turn.
func LogChatTurn(logger zerolog.Logger, iterations, toolCalls int, exhausted bool, duration time.Duration) {
	logger.Info().
		Str("event", "chat_turn").
		Int("iterations", iterations).
		Int("tool_calls", toolCalls).
		Bool("exhausted", exhausted).
		Dur("duration", duration).
		Msg("Chat turn completed")
}

// LogAPICall logs an API call. Credentials echoed in the error text are masked.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Str("error", security.MaskSensitive(err.Error())).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
