// Package logger wraps log/slog with a colorized console handler for
// interactive use and a plain JSON handler for production/CI, matching the
// two logging modes spectracluster's config.LogConfig.Format selects
// between.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	debugColor = color.New(color.FgCyan)
	infoColor  = color.New(color.FgWhite)
	greenColor = color.New(color.FgGreen) // persistence/store milestones
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
)

// greenKeywords are substrings in a log message that get the "good news"
// green treatment instead of the default info color, e.g. successful store
// writes or cluster flushes.
var greenKeywords = []string{"persist", "flush", "complete", "saved"}

// colorHandler is a minimal slog.Handler that writes one colorized line per
// record: "HH:MM:SS LEVEL message key=value key=value".
type colorHandler struct {
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
}

// NewDefaultLogger returns a *slog.Logger backed by the colorized console
// handler at the given minimum level.
func NewDefaultLogger(level slog.Leveler) *slog.Logger {
	return slog.New(&colorHandler{w: os.Stderr, level: level})
}

// NewJSONLogger returns a *slog.Logger using slog's standard JSON handler,
// for production/CI output that downstream tooling can parse.
func NewJSONLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// New builds a logger from format ("console" or "json") and a level name
// ("debug", "info", "warn", "error"), the shape pkg/config.LogConfig
// carries. Unrecognized values fall back to info/console.
func New(format, levelName string) *slog.Logger {
	level := parseLevel(levelName)
	if format == "json" {
		return NewJSONLogger(level)
	}
	return NewDefaultLogger(level)
}

func parseLevel(name string) slog.Level {
	switch name {
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

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	levelColor, levelLabel := h.levelStyle(r.Level, r.Message)

	line := fmt.Sprintf("%s %s %s", r.Time.Format(time.TimeOnly), levelLabel, r.Message)

	r.AddAttrs(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})

	_, err := levelColor.Fprintln(h.w, line)
	return err
}

func (h *colorHandler) levelStyle(level slog.Level, msg string) (*color.Color, string) {
	switch {
	case level >= slog.LevelError:
		return errColor, "ERROR"
	case level >= slog.LevelWarn:
		return warnColor, "WARN "
	case level >= slog.LevelInfo:
		if containsAny(msg, greenKeywords) {
			return greenColor, "INFO "
		}
		return infoColor, "INFO "
	default:
		return debugColor, "DEBUG"
	}
}

func containsAny(msg string, keywords []string) bool {
	lower := strings.ToLower(msg)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{w: h.w, level: h.level, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *colorHandler) WithGroup(_ string) slog.Handler {
	// Groups are rare in this codebase's logging calls; flatten instead of
	// nesting to keep the console line format simple.
	return h
}
