// Package logger provides the leveled logging used throughout the migrator.
// It is backed by zerolog. Every sink is wrapped in zerolog.SyncWriter, so each log event reaches
// the underlying writer as one uninterrupted write even when many jobs log at the same time.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FormatConsole renders human readable lines.
	FormatConsole = "console"
	// FormatJSON renders one JSON object per line.
	FormatJSON = "json"
)

// Logger is the logging capability injected into the engines.
// Fatalf records a FATAL entry and returns; it never terminates the process.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

type zerologLogger struct {
	zl zerolog.Logger
}

var _ Logger = (*zerologLogger)(nil)

func (l *zerologLogger) Debugf(format string, v ...interface{}) { l.zl.Debug().Msgf(format, v...) }
func (l *zerologLogger) Infof(format string, v ...interface{})  { l.zl.Info().Msgf(format, v...) }
func (l *zerologLogger) Warnf(format string, v ...interface{})  { l.zl.Warn().Msgf(format, v...) }
func (l *zerologLogger) Errorf(format string, v ...interface{}) { l.zl.Error().Msgf(format, v...) }

// Fatalf uses WithLevel so that zerolog does not call os.Exit.
func (l *zerologLogger) Fatalf(format string, v ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
}

var (
	mu   sync.RWMutex
	root = newZerolog(os.Stderr, FormatConsole)
)

// newZerolog builds a zerolog.Logger whose writes are serialized.
func newZerolog(w io.Writer, format string) zerolog.Logger {
	sink := zerolog.SyncWriter(w)
	if strings.EqualFold(format, FormatJSON) {
		return zerolog.New(sink).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        sink,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// New creates a standalone Logger writing to w in the given format ("console" or "json").
func New(w io.Writer, format string) Logger {
	return &zerologLogger{zl: newZerolog(w, format)}
}

// Configure replaces the process-wide sink. It is expected to be called once at startup,
// before any job starts.
//
// Parameters:
//
//	w: The destination of all log lines.
//	format: "console" or "json". Anything else falls back to console.
func Configure(w io.Writer, format string) {
	mu.Lock()
	defer mu.Unlock()
	root = newZerolog(w, format)
}

// Zerolog returns the process-wide zerolog.Logger, for libraries that take one directly.
func Zerolog() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// For returns a Logger on the process-wide sink whose entries carry a "job" field.
func For(job string) Logger {
	return &zerologLogger{zl: Zerolog().With().Str("job", job).Logger()}
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" (case-insensitive).
// If an invalid value is specified, INFO is used and a warning is printed.
func SetLogLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "FATAL":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Debugf formats and outputs a DEBUG level log message on the process-wide sink.
func Debugf(format string, v ...interface{}) {
	l := Zerolog()
	l.Debug().Msgf(format, v...)
}

// Infof formats and outputs an INFO level log message on the process-wide sink.
func Infof(format string, v ...interface{}) {
	l := Zerolog()
	l.Info().Msgf(format, v...)
}

// Warnf formats and outputs a WARN level log message on the process-wide sink.
func Warnf(format string, v ...interface{}) {
	l := Zerolog()
	l.Warn().Msgf(format, v...)
}

// Errorf formats and outputs an ERROR level log message on the process-wide sink.
func Errorf(format string, v ...interface{}) {
	l := Zerolog()
	l.Error().Msgf(format, v...)
}

// Fatalf outputs a FATAL level log message, then terminates the program by calling os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	l := Zerolog()
	l.Fatal().Msgf(format, v...)
}

// Exitf outputs a FATAL level log message and terminates the program with the given exit code.
func Exitf(code int, format string, v ...interface{}) {
	l := Zerolog()
	l.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(code)
}
