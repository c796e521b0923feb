package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/cctx"
	"github.com/imattdu/orbitrace/errorx"
)

func newBufferLogger(t *testing.T, level slog.Level) (*loggerImpl, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := New(Config{AppName: "test", Level: level, Writer: buf})
	require.NoError(t, err)
	return l.(*loggerImpl), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesTraceFields(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)

	tid, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	sid, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
	}))
	ctx = cctx.With(ctx, Route, "/customer")

	l.Info(ctx, TagRequestIn, "hello", Method, "POST")
	l.Debug(ctx, TagUndef, "filtered out")
	require.NoError(t, l.Close())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	got := lines[0]
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, TagRequestIn, got["tag"])
	assert.Equal(t, "hello", got[Msg])
	assert.Equal(t, "POST", got[Method])
	assert.Equal(t, "/customer", got[Route])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got[TraceID])
	assert.Equal(t, "b7ad6b7169203331", got[SpanID])
}

func TestLoggerEncodesErrorx(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelDebug)

	err := errorx.NewConfig(errorx.ErrInvalidConfig,
		errorx.WithComponent(errorx.ComponentConfig),
		errorx.WithMessage("sampler ratio out of range"),
		errorx.WithField("ratio", 2))
	l.Error(context.Background(), TagStartup, err)
	require.NoError(t, l.Close())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(errorx.ErrInvalidConfig.Code), lines[0]["code"])
	assert.Equal(t, "config", lines[0]["component"])
	assert.Equal(t, "sampler ratio out of range", lines[0][Msg])
	assert.Equal(t, float64(2), lines[0]["ratio"])
}

func TestGlobalLoggerNilSafe(t *testing.T) {
	SetDefault(nil)
	assert.Nil(t, L())
	Info(context.Background(), TagUndef, "no logger installed")
	assert.NoError(t, Close())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
