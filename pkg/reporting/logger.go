package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// Logger provides structured logging for the experiment driver.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(cfg LoggerConfig) *Logger {
	// Set default output if not specified
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	// Configure output format
	var output io.Writer = cfg.Output
	if cfg.Format == LogFormatText {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	// Create logger
	zlog := zerolog.New(output).With().Timestamp().Logger()

	// Set log level
	switch cfg.Level {
	case LogLevelDebug:
		zlog = zlog.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		zlog = zlog.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		zlog = zlog.Level(zerolog.WarnLevel)
	case LogLevelError:
		zlog = zlog.Level(zerolog.ErrorLevel)
	default:
		zlog = zlog.Level(zerolog.InfoLevel)
	}

	return &Logger{logger: zlog}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	event := l.logger.Debug()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) {
	event := l.logger.Info()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	event := l.logger.Warn()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) {
	event := l.logger.Error()
	l.addFields(event, fields...)
	event.Msg(msg)
}

// WithField creates a child logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// Round logs one completed round at info level, keyed off the same
// RoundSummary a CSVWriter row is built from, so a log line and its CSV
// row always carry matching fields.
func (l *Logger) Round(msg string, s RoundSummary) {
	l.logger.Info().
		Str("method", s.Method).
		Int("n", s.N).
		Int("k", s.K).
		Int("data_size", s.DataSize).
		Int("throttle", s.Throttle).
		Str("policy", s.Policy).
		Dur("rank0_total", s.Rank0.Total).
		Dur("max_total", s.Max.Total).
		Msg(msg)
}

// Report logs a persisted RoundReport's identity, for correlating a run's
// log stream with the JSON file pkg/reporting.Storage wrote for it.
func (l *Logger) Report(msg string, r *RoundReport) {
	l.logger.Info().
		Str("id", r.ID).
		Str("variant", r.Variant).
		Int("n", r.N).
		Int("k", r.K).
		Int("ranks", len(r.PerRank)).
		Time("started_at", r.StartedAt).
		Msg(msg)
}

// addFields adds key-value pairs to a log event
func (l *Logger) addFields(event *zerolog.Event, fields ...interface{}) {
	if len(fields)%2 != 0 {
		event.Str("error", "odd number of fields")
		return
	}

	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			event.Str("error", fmt.Sprintf("field key at index %d is not a string", i))
			continue
		}

		value := fields[i+1]
		event.Interface(key, value)
	}
}
