// Package testenv holds helpers shared by package tests.
package testenv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogHandler is a slog.Handler that records "LEVEL: message k=v, ..." lines
// without timestamps so tests can assert on log output deterministically.
type LogHandler struct {
	sink  *logSink
	attrs []slog.Attr
	level slog.Level
}

type logSink struct {
	mu    sync.Mutex
	lines []string
}

// NewLogHandler records messages at level and above.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{sink: &logSink{}, level: level}
}

//nolint:gocritic
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	var parts []string
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})

	line := fmt.Sprintf("%s: %s", r.Level, r.Message)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}

	h.sink.mu.Lock()
	h.sink.lines = append(h.sink.lines, line)
	h.sink.mu.Unlock()
	return nil
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		sink:  h.sink,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		level: h.level,
	}
}

// WithGroup is not needed by any logger in this module; groups are flattened.
func (h *LogHandler) WithGroup(string) slog.Handler {
	return h
}

// Lines returns every recorded line in order.
func (h *LogHandler) Lines() []string {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]string(nil), h.sink.lines...)
}

// Contains reports whether a line at level mentions substr.
func (h *LogHandler) Contains(level slog.Level, substr string) bool {
	prefix := level.String() + ": "
	for _, l := range h.Lines() {
		if strings.HasPrefix(l, prefix) && strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
