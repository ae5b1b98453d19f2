package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_DefaultArgs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelDebug)
	ctx := WithDefaultArgs(context.Background(), "replica", "alice")
	ctx2 := WithDefaultArgs(ctx, "field", "text")

	log.InfoCtx(ctx2, "op applied", "seq", 3)
	out := buf.String()
	assert.Contains(t, out, "[verdoc] op applied")
	assert.Contains(t, out, "seq=3")
	assert.Contains(t, out, "replica=alice")
	assert.Contains(t, out, "field=text")

	buf.Reset()
	log.DebugCtx(ctx, "parent ctx keeps its own args")
	assert.NotContains(t, buf.String(), "field=text")
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelWarn)
	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
	lvl, err = ParseLevel("")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
