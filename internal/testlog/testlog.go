// Package testlog provides a slog.Handler whose output is deterministic, so
// tests can assert on what a component logged.
package testlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/patternkit/patternkit/pkg/logger"
)

// sink is shared by a handler and every handler derived from it with
// WithAttrs or WithGroup, so the line index keeps counting across them.
type sink struct {
	mu    sync.Mutex
	lines []string
}

// Handler renders records as "[index] LEVEL: message k=v, k=v" without
// timestamps and keeps them in memory.
type Handler struct {
	sink        *sink
	attrs       []slog.Attr
	groups      []string
	minLevel    slog.Level
	ignoreDebug bool
	ignore      []string
}

type Option func(*Handler)

// WithIgnoreDebug drops DEBUG records.
func WithIgnoreDebug() Option {
	return func(h *Handler) {
		h.ignoreDebug = true
	}
}

// WithIgnorePrefixes drops records whose message starts with one of prefixes.
func WithIgnorePrefixes(prefixes ...string) Option {
	return func(h *Handler) {
		h.ignore = append(h.ignore, prefixes...)
	}
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{sink: &sink{}, minLevel: slog.LevelDebug}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// New returns a logger.Logger writing into a fresh Handler, and the handler.
func New(opts ...Option) (*logger.SlogHandler, *Handler) {
	h := NewHandler(opts...)
	return logger.New(h), h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.ignoreDebug && level == slog.LevelDebug {
		return false
	}
	return level >= h.minLevel
}

//nolint:gocritic
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	for _, prefix := range h.ignore {
		if strings.HasPrefix(r.Message, prefix) {
			return nil
		}
	}

	attrs := h.attrsToString(&r)

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	line := fmt.Sprintf("[%d] %s: %s", len(h.sink.lines), r.Level, r.Message)
	if attrs != "" {
		line += " " + attrs
	}
	h.sink.lines = append(h.sink.lines, line)
	return nil
}

func (h *Handler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *Handler) attrsToString(r *slog.Record) string {
	var parts []string
	for _, a := range h.attrs {
		parts = append(parts, formatAttr(a, ""))
	}
	prefix := h.prefix()
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(a, prefix))
		return true
	})
	return strings.Join(parts, ", ")
}

func formatAttr(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		var parts []string
		for _, ga := range a.Value.Group() {
			parts = append(parts, formatAttr(ga, prefix+a.Key+"."))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value.Resolve())
}

func (h *Handler) clone() *Handler {
	c := *h
	c.attrs = h.attrs[:len(h.attrs):len(h.attrs)]
	c.groups = h.groups[:len(h.groups):len(h.groups)]
	return &c
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	prefix := h.prefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	return c
}

// Lines returns a copy of everything logged so far.
func (h *Handler) Lines() []string {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]string(nil), h.sink.lines...)
}

// String joins the lines with newlines.
func (h *Handler) String() string {
	return strings.Join(h.Lines(), "\n")
}

// Contains reports whether any line contains substr.
func (h *Handler) Contains(substr string) bool {
	for _, l := range h.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// Reset forgets the recorded lines and restarts the index.
func (h *Handler) Reset() {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.lines = nil
}
