package debug

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestStart(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newTestLogger(&buf))

	ctx, done := Start(ctx, "scan", slog.String("root", "/ws"))
	Info.Log(ctx, "inside")
	done()

	out := buf.String()
	assert.Contains(t, out, "scan Starting...")
	assert.Contains(t, out, "scan.root=/ws")
	assert.Contains(t, out, "msg=inside")
	assert.Contains(t, out, "scan Done")
	assert.Contains(t, out, "scan.elapsed=")
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := WithLogger(context.Background(), logger)

	Debug.Log(ctx, "hidden")
	Warning.Log(ctx, "shown")
	LogError(ctx, "failed", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN msg=shown")
	assert.Contains(t, out, `level=ERROR msg=failed error=boom`)
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newTestLogger(&buf))
	ctx, logger := With(ctx, slog.String("uri", "file:///a.txt"))
	assert.Same(t, logger, Logger(ctx))

	Info.Log(ctx, "hello")
	assert.Contains(t, buf.String(), "uri=file:///a.txt")
}
