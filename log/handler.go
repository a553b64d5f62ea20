package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO ",
	LevelWarn:  "WARN ",
	LevelError: "ERROR",
	LevelCrit:  "CRIT ",
}

var levelColor = map[slog.Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgBlue),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelCrit:  color.New(color.FgHiRed, color.Bold),
}

// terminalHandler renders records as human-readable, optionally colored
// single lines, the default handler for interactive use.
type terminalHandler struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	minLvl slog.Level
}

// NewTerminalHandler returns a handler writing to w; useColor forces ANSI
// color on or off regardless of terminal detection.
func NewTerminalHandler(w io.Writer, useColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(w, LevelInfo, useColor)
}

// NewTerminalHandlerWithLevel is like NewTerminalHandler but also sets the
// minimum level emitted.
func NewTerminalHandlerWithLevel(w io.Writer, level slog.Level, useColor bool) slog.Handler {
	if f, ok := w.(*os.File); ok {
		if useColor && !isatty.IsTerminal(f.Fd()) {
			useColor = false
		}
		if useColor {
			w = colorable.NewColorable(f)
		}
	}
	return &terminalHandler{out: w, color: useColor, minLvl: level}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLvl
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := levelNames[r.Level]
	if name == "" {
		name = r.Level.String()
	}
	if h.color {
		if c, ok := levelColor[r.Level]; ok {
			name = c.Sprint(name)
		}
	}
	line := fmt.Sprintf("%s[%s] %s", r.Time.Format(time.RFC3339Nano), name, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})
	_, err := fmt.Fprintln(h.out, line)
	return err
}

func (h *terminalHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *terminalHandler) WithGroup(_ string) slog.Handler      { return h }

// glogHandler wraps another handler, supporting the classic glog-style
// per-package/per-vmodule verbosity override on top of a global level.
type glogHandler struct {
	mu      sync.RWMutex
	inner   slog.Handler
	verbosity slog.Level
}

// NewGlogHandler wraps h with a dynamically adjustable verbosity level.
func NewGlogHandler(h slog.Handler) *glogHandler {
	return &glogHandler{inner: h, verbosity: LevelInfo}
}

func (g *glogHandler) Verbosity(level slog.Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verbosity = level
}

func (g *glogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return level >= g.verbosity
}

func (g *glogHandler) Handle(ctx context.Context, r slog.Record) error {
	return g.inner.Handle(ctx, r)
}

func (g *glogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &glogHandler{inner: g.inner.WithAttrs(attrs), verbosity: g.verbosity}
}

func (g *glogHandler) WithGroup(name string) slog.Handler {
	return &glogHandler{inner: g.inner.WithGroup(name), verbosity: g.verbosity}
}

// JSONHandler returns a handler emitting newline-delimited JSON records.
func JSONHandler(w io.Writer) slog.Handler {
	return JSONHandlerWithLevel(w, LevelInfo)
}

// JSONHandlerWithLevel is like JSONHandler but also sets the minimum level.
func JSONHandlerWithLevel(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}
