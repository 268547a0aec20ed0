package logging

import (
	"context"
	"log/slog"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// ContextProvider returns attributes evaluated at log time.
type ContextProvider func() []slog.Attr

// SessionContext reports the active race session on every record. current
// returns false when no race is running.
func SessionContext(current func() (core.Session, bool)) ContextProvider {
	return func() []slog.Attr {
		s, ok := current()
		if !ok {
			return nil
		}
		return []slog.Attr{
			slog.Group("session",
				slog.String("id", s.ID),
				slog.String("player", s.Player),
				slog.String("track", s.Track),
			),
		}
	}
}

// ContextHandler wraps another handler and injects dynamic context attributes.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
