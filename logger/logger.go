package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogFile is the log file name used by Init.
const DefaultLogFile = "niblit.log"

// Init initializes the file logger, writing to niblit.log inside dir.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func Init(dir string) (zerolog.Logger, io.Closer, error) {
	return InitWithOptions(filepath.Join(dir, DefaultLogFile), false)
}

// InitWithOptions initializes the logger with the specified options.
// If logFile is empty, logs go to stderr so stdout stays free for replies.
// If pretty is true, uses ConsoleWriter for human-readable output (only valid when logFile is empty).
// The returned Closer releases the log file and is a no-op otherwise.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)

	switch {
	case logFile != "":
		if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
		closer = file
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log := New(output, level)

	switch {
	case logFile != "":
		log.Info().Str("path", logFile).Str("level", level.String()).Msg("Logger initialized")
	case pretty:
		log.Info().Str("output", "stderr").Str("format", "pretty").Str("level", level.String()).Msg("Logger initialized")
	default:
		log.Debug().Str("output", "stderr").Str("level", level.String()).Msg("Logger initialized")
	}

	return log, closer, nil
}

// New builds a timestamped logger writing to w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
