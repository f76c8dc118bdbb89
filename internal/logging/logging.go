// Package logging provides structured logging for Osiris using stdlib slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// LogConfig controls logger creation.
type LogConfig struct {
	Level  string    // "debug", "info", "warn", "error"
	Format string    // "json", "text", or "auto" (text on a terminal)
	Output io.Writer // defaults to os.Stdout
}

// New creates a configured *slog.Logger.
func New(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	format := cfg.Format
	if format == "" || strings.EqualFold(format, "auto") {
		format = "json"
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// WithFields returns a child logger with additional context fields.
func WithFields(logger *slog.Logger, fields ...any) *slog.Logger {
	return logger.With(fields...)
}

// ValidateLevel reports whether s names a known log level.
func ValidateLevel(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level: %q", s)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DaemonConfig controls daemon log output.
type DaemonConfig struct {
	File     string // empty means stdout; "syslog" forwards to syslog
	Level    string
	Format   string
	MaxBytes string // rotation threshold ("50MB"), "0" disables
	Backups  int
}

// swapWriter is an io.Writer whose destination can be replaced at
// runtime, used to reopen log files on SIGUSR2.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

func (sw *swapWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(p)
}

func (sw *swapWriter) swap(w io.Writer, c io.Closer) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.c != nil {
		sw.c.Close()
	}
	sw.w = w
	sw.c = c
}

// DaemonLogger builds the daemon logger from config. The returned
// reopen function rotates if needed and reopens the log file; it is a
// no-op for stdout and syslog output.
func DaemonLogger(cfg DaemonConfig) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }

	switch cfg.File {
	case "":
		return New(LogConfig{Level: cfg.Level, Format: cfg.Format}), noop, nil

	case "syslog":
		sf, err := NewSyslogForwarder("osiris")
		if err != nil {
			return nil, nil, err
		}
		// Syslog adds its own timestamps; text format reads better there.
		logger := New(LogConfig{Level: cfg.Level, Format: "text", Output: sf})
		return logger, noop, nil
	}

	rot := RotationConfig{Maxbytes: cfg.MaxBytes, Backups: cfg.Backups}
	open := func() (*os.File, error) {
		if err := RotateIfNeeded(cfg.File, rot); err != nil {
			return nil, fmt.Errorf("log rotation failed: %s: %w", cfg.File, err)
		}
		return os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	}

	f, err := open()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file: %s: %w", cfg.File, err)
	}

	sw := &swapWriter{w: f, c: f}
	logger := New(LogConfig{Level: cfg.Level, Format: cfg.Format, Output: sw})

	reopen := func() error {
		nf, err := open()
		if err != nil {
			return err
		}
		sw.swap(nf, nf)
		return nil
	}
	return logger, reopen, nil
}
