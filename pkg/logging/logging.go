// Package logging builds the structured slog.Logger collabd uses
// everywhere — stderr by default, optional JSON output for container
// deployments, and an optional mirrored log file for operators who want a
// durable trail alongside stdout capture.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Level is collabd's minimum-severity knob, translated to slog.Level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
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

// Config configures the logger New builds. A zero-value Config yields a
// Debug-level text logger on stderr, since LevelDebug is the zero Level.
type Config struct {
	// Level is the minimum level that is emitted.
	Level Level

	// Service names the component generating logs (e.g. "collabd"),
	// attached to every record.
	Service string

	// JSON selects JSON output instead of slog's default text handler.
	// Useful for log aggregation in a container deployment.
	JSON bool

	// LogFile additionally mirrors every record, as JSON, to this path.
	// The containing directory is created if missing. Empty disables it.
	LogFile string
}

// New builds a *slog.Logger from cfg. The returned logger is safe for
// concurrent use, as slog.Logger always is.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	if cfg.LogFile != "" {
		if f, err := openLogFile(cfg.LogFile); err == nil {
			fileHandler := slog.NewJSONHandler(f, opts)
			handler = &fanoutHandler{handlers: []slog.Handler{handler, fileHandler}}
		}
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	return slog.New(handler)
}

// Default returns an Info-level text logger on stderr tagged "collabd".
func Default() *slog.Logger {
	return New(Config{Level: LevelInfo, Service: "collabd"})
}

func openLogFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

// fanoutHandler fans a record out to every wrapped handler, so stderr and a
// mirrored log file can run side by side with independent formats.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hd := range h.handlers {
		if hd.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hd := range h.handlers {
		if hd.Enabled(ctx, r.Level) {
			if err := hd.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		out[i] = hd.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		out[i] = hd.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}
