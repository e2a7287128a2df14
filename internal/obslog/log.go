// Package obslog is relayd's ambient structured logging wrapper around
// zerolog: one process-wide logger, with child loggers carrying the
// fields the runtime tags every log line with — module, event, trace.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level is a logging verbosity threshold.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init sets up the global Logger from cfg. Call once at startup before
// any component takes a child logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithModule returns a child logger tagged with the owning module name.
func WithModule(module string) zerolog.Logger {
	return Logger.With().Str("module", module).Logger()
}

// WithEvent returns a child logger tagged with an event id.
func WithEvent(eventID string) zerolog.Logger {
	return Logger.With().Str("event_id", eventID).Logger()
}

// WithTrace returns a child logger tagged with a trace id, the identifier
// that threads a request through sources, transforms, and actors.
func WithTrace(traceID string) zerolog.Logger {
	return Logger.With().Str("trace_id", traceID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
