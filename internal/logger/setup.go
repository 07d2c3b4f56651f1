package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/rileyhilliard/pb/internal/ui"
)

const componentKey = "component"

// Options configures the process logger.
type Options struct {
	// File receives every record at debug level. Empty disables the file sink.
	File string
	// Console receives the short stream. Nil disables the console sink.
	Console io.Writer
	// ConsoleLevel is the minimum level written to Console.
	ConsoleLevel slog.Level
	// Color forces level coloring on or off. Nil means color only when
	// Console is a terminal.
	Color *bool
}

// Setup builds the process logger once at startup and installs it as both
// the slog default and this package's Default. The returned close func
// flushes and closes the log file; nothing else needs tearing down.
func Setup(opts Options) (Logger, func() error, error) {
	var handlers []slog.Handler
	closeFn := func() error { return nil }

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.WrapWithCode(err, errors.ErrIO,
				fmt.Sprintf("Couldn't open log file %s", opts.File),
				"Pick a writable path with --log")
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeFn = f.Close
	}

	if opts.Console != nil {
		color := ui.IsTerminal(opts.Console)
		if opts.Color != nil {
			color = *opts.Color
		}
		handlers = append(handlers, NewConsoleHandler(opts.Console, opts.ConsoleLevel, color))
	}

	var root *slog.Logger
	switch len(handlers) {
	case 0:
		root = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		root = slog.New(handlers[0])
	default:
		root = slog.New(&teeHandler{handlers: handlers})
	}

	slog.SetDefault(root)
	l := FromSlog(root, "")
	SetDefault(l)
	return l, closeFn, nil
}

// teeHandler fans each record out to every enabled child handler.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}

// ConsoleHandler writes short human-oriented lines:
//
//	14:02:11 INFO  Starting bench on alpha [dispatch]
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	styles map[slog.Level]lipgloss.Style
	muted  lipgloss.Style
	attrs  []slog.Attr
}

// NewConsoleHandler creates a console handler writing to w at or above level.
func NewConsoleHandler(w io.Writer, level slog.Leveler, color bool) *ConsoleHandler {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		styles: map[slog.Level]lipgloss.Style{
			slog.LevelDebug: r.NewStyle().Foreground(ui.ColorMuted),
			slog.LevelInfo:  r.NewStyle().Foreground(ui.ColorInfo),
			slog.LevelWarn:  r.NewStyle().Foreground(ui.ColorWarning),
			slog.LevelError: r.NewStyle().Foreground(ui.ColorError).Bold(true),
		},
		muted: r.NewStyle().Foreground(ui.ColorMuted),
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(h.muted.Render(r.Time.Format("15:04:05")))
		b.WriteByte(' ')
	}

	level := r.Level.String()
	pad := strings.Repeat(" ", max(0, 5-len(level)))
	if style, ok := h.styles[r.Level]; ok {
		level = style.Render(level)
	}
	b.WriteString(level)
	b.WriteString(pad)
	b.WriteByte(' ')
	b.WriteString(r.Message)

	var component string
	write := func(a slog.Attr) {
		if a.Key == componentKey {
			component = a.Value.String()
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	if component != "" {
		b.WriteString(h.muted.Render(" [" + component + "]"))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup is a no-op; console lines are flat.
func (h *ConsoleHandler) WithGroup(string) slog.Handler {
	return h
}
