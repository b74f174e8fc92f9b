// Package logging is a thin layer over zerolog that hands out
// subsystem-scoped child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/soyeahso/agentos/internal/config"
)

// Logger wraps a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger at the given level. A nil writer means
// human-readable output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter()
	}
	return &Logger{zl: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// FromConfig builds the root logger described by cfg. The returned closer
// releases the log file, if one was opened; it is never nil.
func FromConfig(cfg config.LoggingConfig) (*Logger, io.Closer, error) {
	var console io.Writer = os.Stderr
	if cfg.ConsoleStyle != "json" {
		console = consoleWriter()
	}
	if cfg.File == "" {
		return New(console, cfg.Level), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	// The file always gets JSON lines.
	return New(zerolog.MultiLevelWriter(console, f), cfg.Level), f, nil
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return l.With("subsystem", subsystem)
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Level reports the minimum level this logger emits.
func (l *Logger) Level() zerolog.Level { return l.zl.GetLevel() }

// parseLevel maps a config level name to zerolog. "silent" disables
// output; empty or unknown names mean info.
func parseLevel(s string) zerolog.Level {
	if s == "silent" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel || s != strings.ToLower(s) {
		return zerolog.InfoLevel
	}
	return lvl
}
