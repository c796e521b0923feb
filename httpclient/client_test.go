package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/tracex"
	"github.com/imattdu/orbitrace/tracextest"
)

func noBackoff(int) time.Duration { return 0 }

type captured struct {
	mu      sync.Mutex
	headers []http.Header
}

func (c *captured) add(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = append(c.headers, h.Clone())
}

func (c *captured) all() []http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]http.Header(nil), c.headers...)
}

func TestClientSpanPropagation(t *testing.T) {
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Header)
		_, _ = io.WriteString(w, `{"name":"alice"}`)
	}))
	defer srv.Close()

	tracer, rec := tracextest.NewTracer()
	cli, err := New(WithBaseURL(srv.URL), WithTracer(tracer))
	require.NoError(t, err)

	ctx, parent := tracer.Start(context.Background(), "controller#hello")
	var out struct {
		Name string `json:"name"`
	}
	resp, err := cli.GetJSON(ctx, "/customer", &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", out.Name)
	parent.End()

	clientSpans := rec.ByName("HTTP GET")
	require.Len(t, clientSpans, 1)
	cs := clientSpans[0]
	assert.Equal(t, trace.SpanKindClient, cs.Kind)
	assert.Equal(t, parent.SpanContext().SpanID(), cs.Parent.SpanID())
	assert.Equal(t, tracex.StatusOK, cs.Status)
	v, _ := cs.Attribute("http.attempts")
	assert.Equal(t, int64(1), v.AsInt64())
	require.Len(t, cs.MessageEvents, 2)

	headers := seen.all()
	require.Len(t, headers, 1)
	sc, ok := tracex.ExtractHTTP(tracex.TraceContextFormat{}, headers[0])
	require.True(t, ok)
	assert.Equal(t, cs.SpanContext.TraceID(), sc.TraceID())
	assert.Equal(t, cs.SpanContext.SpanID(), sc.SpanID())
	assert.NotEmpty(t, headers[0].Get(HeaderRequestID))
}

func TestAmbientContextPropagatesWithoutTracer(t *testing.T) {
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Header)
	}))
	defer srv.Close()

	tracer, _ := tracextest.NewTracer()
	ctx, span := tracer.Start(context.Background(), "server")
	defer span.End()

	cli, err := New(WithBaseURL(srv.URL), WithTextFormat(tracex.HeaderFormat{}))
	require.NoError(t, err)
	var raw []byte
	_, err = cli.GetJSON(ctx, "/", &raw, WithRequestID("req-1"))
	require.NoError(t, err)

	h := seen.all()[0]
	assert.Equal(t, span.TraceID(), h.Get(tracex.HeaderTraceID))
	assert.Equal(t, span.SpanID(), h.Get(tracex.HeaderSpanID))
	assert.Equal(t, "req-1", h.Get(HeaderRequestID))
	assert.Empty(t, h.Get("traceparent"))
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	seen := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Header)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"bob"}`, string(body))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	var stats *CallStats
	cli, err := New(
		WithBaseURL(srv.URL),
		WithRetry(3, nil, noBackoff),
		WithStatsHook(func(_ context.Context, s *CallStats) { stats = s }),
	)
	require.NoError(t, err)

	var raw []byte
	resp, err := cli.PostJSON(context.Background(), "/customer", map[string]string{"name": "bob"}, &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Attempts)
	assert.Equal(t, http.StatusCreated, stats.Status)
	require.Len(t, stats.AttemptsLog, 3)
	assert.True(t, stats.AttemptsLog[0].WillRetry)
	assert.False(t, stats.AttemptsLog[2].WillRetry)

	headers := seen.all()
	require.Len(t, headers, 3)
	id := headers[0].Get(HeaderRequestID)
	assert.NotEmpty(t, id)
	for _, h := range headers {
		assert.Equal(t, id, h.Get(HeaderRequestID), "request id is stable across retries")
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tracer, rec := tracextest.NewTracer()
	cli, err := New(WithBaseURL(srv.URL), WithRetry(3, nil, noBackoff), WithTracer(tracer))
	require.NoError(t, err)

	var raw []byte
	resp, err := cli.GetJSON(context.Background(), "/missing", &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, tracex.StatusNotFound, rec.Spans()[0].Status)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cli, err := New(WithBaseURL(srv.URL), WithRetry(2, nil, noBackoff))
	require.NoError(t, err)

	var raw []byte
	resp, err := cli.GetJSON(context.Background(), "/", &raw)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tracer, rec := tracextest.NewTracer()
	cli, err := New(WithBaseURL(addr), WithRetry(2, nil, noBackoff), WithTracer(tracer))
	require.NoError(t, err)

	_, err = cli.GetJSON(context.Background(), "/", nil)
	require.Error(t, err)
	assert.True(t, errorx.HasCode(err, errorx.ErrHTTPCall))
	assert.Equal(t, errorx.ComponentHTTPClient, errorx.ComponentOf(err))

	cs := rec.Spans()[0]
	assert.Equal(t, tracex.StatusUnavailable, cs.Status)
	v, _ := cs.Attribute("http.attempts")
	assert.Equal(t, int64(2), v.AsInt64())
	assert.NotEmpty(t, cs.Annotations)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cli, err := New(WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = cli.GetJSON(context.Background(), "/slow", nil, WithTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBizErrorDecoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad"}`)
	}))
	defer srv.Close()

	bizErr := errors.New("bad")
	cli, err := New(WithBaseURL(srv.URL), WithBizErrorDecoder(func(status int, body []byte) error {
		if status >= 400 {
			return bizErr
		}
		return nil
	}))
	require.NoError(t, err)

	var out map[string]any
	_, err = cli.GetJSON(context.Background(), "/", &out)
	assert.ErrorIs(t, err, bizErr)
}

func TestBuildURL(t *testing.T) {
	cli, err := New(WithBaseURL("http://api.local/v1/"))
	require.NoError(t, err)

	u, err := cli.buildURL("/customer?a=1", map[string][]string{"b": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, "http://api.local/v1/customer?a=1&b=2", u)

	u, err = cli.buildURL("https://other.local/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://other.local/x", u)
}

func TestDefaultBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, defaultBackoff(0))
	assert.Equal(t, 400*time.Millisecond, defaultBackoff(2))
	assert.Equal(t, 2*time.Second, defaultBackoff(10))
	assert.Equal(t, 2*time.Second, defaultBackoff(80))
}
