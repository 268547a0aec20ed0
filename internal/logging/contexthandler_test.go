package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHandler_InjectsAttrs(t *testing.T) {
	var buf bytes.Buffer
	lap := 1
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Int("lap", lap)}
	})
	logger := slog.New(h)

	logger.Info("first")
	lap = 2
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "msg=first lap=1")
	assert.Contains(t, out, "msg=second lap=2")
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), nil)

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "sim")}).WithGroup("kart"))
	logger.Info("tick", "speed", 4)

	assert.Contains(t, buf.String(), "component=sim")
	assert.Contains(t, buf.String(), "kart.speed=4")
	assert.Same(t, h, h.WithGroup(""))
}
