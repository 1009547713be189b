// Package logging implements the semicolon-delimited log line format
// viddup's operators grep and tail: "<iso-timestamp>;<level>;<message>".
// It is a log/slog.Handler, so every package logs through the standard
// slog.Logger API and only main wiring needs to know about the format.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Handler formats records as "<iso-timestamp>;<level>;<message>",
// attributes appended as "key=value" pairs space-separated after the
// message. It ignores grouping — WithGroup returns a handler that
// prefixes attribute keys with the group name instead of nesting.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string // group-name prefix applied to attribute keys
	attrs  []slog.Attr
}

// New returns a Handler writing to w at the given minimum level. A nil
// level defaults to slog.LevelInfo.
func New(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether level is at or above the handler's minimum.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes one formatted line for r.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format(time.RFC3339Nano))
	b.WriteByte(';')
	b.WriteString(r.Level.String())
	b.WriteByte(';')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	fmt.Fprintf(b, "%v", a.Value.Any())
}

// WithAttrs returns a new Handler with attrs appended to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a new Handler whose attribute keys are prefixed
// with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	next := *h
	if h.prefix == "" {
		next.prefix = name
	} else {
		next.prefix = h.prefix + "." + name
	}
	return &next
}

// NewLogger builds a slog.Logger using Handler as its formatter, at the
// given level, writing to w.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(New(w, level))
}
