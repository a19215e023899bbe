// Package logger provides the structured logging interface used across the
// server, backed by zerolog, with optional daily-rotated file output.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Logger writes leveled, structured log entries. Implementations are safe for
// concurrent use by the network goroutines and the tick loop.
type Logger interface {
	// Debug logs msg at debug level.
	Debug(msg string, fields ...Field)

	// Info logs msg at info level.
	Info(msg string, fields ...Field)

	// Warn logs msg at warn level.
	Warn(msg string, fields ...Field)

	// Error logs msg at error level.
	Error(msg string, fields ...Field)

	// With returns a child Logger that adds fields to every entry. The
	// receiver is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs attached to the derived logger
	//
	// Returns:
	//   - The derived Logger
	With(fields ...Field) Logger

	// Close releases any file held by the logger. Derived loggers never own
	// the file, so only the root logger needs closing. Safe to call more than
	// once.
	Close() error
}

// Options selects where and how much a Logger writes.
type Options struct {
	// Service is added to every entry and names the rotated log files.
	Service string
	// Level is a zerolog level name such as "debug" or "info".
	Level string
	// Dir enables daily-rotated files in this directory when non-empty.
	Dir string
	// Console switches stdout output to zerolog's human-readable writer.
	Console bool
}

type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *DailyFileWriter
}

// New builds a Logger from opts. Entries always go to stdout; when opts.Dir is
// set they are also written to {service}_{date}.log inside it.
//
// Parameters:
//   - opts: Output and level settings
//
// Returns:
//   - The Logger
//   - An error if the level is unknown or the log directory cannot be used
func New(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	}

	var fileWriter *DailyFileWriter
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}

		w, err := NewDailyFileWriter(opts.Service, opts.Dir)
		if err != nil {
			return nil, err
		}

		fileWriter = w
		out = io.MultiWriter(out, w)
	}

	return &zerologLogger{
		logger:     zerolog.New(out).With().Str("service", opts.Service).Timestamp().Logger().Level(level),
		fileWriter: fileWriter,
	}, nil
}

// NewZerologLogger wraps an existing zerolog.Logger.
//
// Parameters:
//   - l: The zerolog logger to write through
//   - service: Added to every entry as the "service" field
//   - level: Minimum level written
//
// Returns:
//   - A Logger that owns no files
func NewZerologLogger(l zerolog.Logger, service string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", service).Timestamp().Logger().Level(level),
	}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{logger: z.logger.With().Fields(toMap(fields)).Logger()}
}

func (z *zerologLogger) Close() error {
	if z.fileWriter != nil {
		return z.fileWriter.Close()
	}

	return nil
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
