package tracex

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/logx"
)

const (
	testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	testSpanID  = "00f067aa0ba902b7"
)

func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	tid, err := trace.TraceIDFromHex(testTraceID)
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex(testSpanID)
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
}

func TestTraceContextFormatExtract(t *testing.T) {
	h := http.Header{}
	h.Set("traceparent", "00-"+testTraceID+"-"+testSpanID+"-01")

	sc, ok := ExtractHTTP(TraceContextFormat{}, h)
	require.True(t, ok)
	assert.Equal(t, testTraceID, sc.TraceID().String())
	assert.Equal(t, testSpanID, sc.SpanID().String())
	assert.True(t, sc.IsSampled())
	assert.True(t, sc.IsRemote())
}

func TestTraceContextFormatAbsent(t *testing.T) {
	_, ok := ExtractHTTP(TraceContextFormat{}, http.Header{})
	assert.False(t, ok)
	_, ok = ExtractHTTP(TraceContextFormat{}, nil)
	assert.False(t, ok)
}

func TestMalformedHeaderWarns(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := logx.New(logx.Config{Writer: buf})
	require.NoError(t, err)
	logx.SetDefault(l)
	t.Cleanup(func() { logx.SetDefault(nil) })

	h := http.Header{}
	h.Set("traceparent", "garbage")
	_, ok := ExtractHTTP(TraceContextFormat{}, h)
	assert.False(t, ok)

	require.NoError(t, l.(interface{ Close() error }).Close())
	assert.Contains(t, buf.String(), logx.TagTraceContextInvalid)
	assert.Contains(t, buf.String(), "garbage")
}

func TestTraceContextFormatInjectRoundTrip(t *testing.T) {
	sc := testSpanContext(t)
	h := http.Header{}
	InjectHTTP(TraceContextFormat{}, sc, h)
	assert.Equal(t, "00-"+testTraceID+"-"+testSpanID+"-01", h.Get("traceparent"))

	got, ok := ExtractHTTP(TraceContextFormat{}, h)
	require.True(t, ok)
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())

	empty := http.Header{}
	InjectHTTP(TraceContextFormat{}, trace.SpanContext{}, empty)
	assert.Empty(t, empty)
}

func TestHeaderFormat(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderTraceID, strings.ToUpper(testTraceID))
	h.Set(HeaderSpanID, testSpanID)

	sc, ok := ExtractHTTP(HeaderFormat{}, h)
	require.True(t, ok)
	assert.Equal(t, testTraceID, sc.TraceID().String())
	assert.True(t, sc.IsSampled(), "missing flags default to sampled")
	assert.True(t, sc.IsRemote())

	h.Set(HeaderTraceFlags, "00")
	sc, ok = ExtractHTTP(HeaderFormat{}, h)
	require.True(t, ok)
	assert.False(t, sc.IsSampled())

	out := http.Header{}
	InjectHTTP(HeaderFormat{}, testSpanContext(t), out)
	assert.Equal(t, testTraceID, out.Get(HeaderTraceID))
	assert.Equal(t, testSpanID, out.Get(HeaderSpanID))
	assert.Equal(t, "01", out.Get(HeaderTraceFlags))
}

func TestHeaderFormatMalformed(t *testing.T) {
	cases := []map[string]string{
		{HeaderTraceID: "xyz", HeaderSpanID: testSpanID},
		{HeaderTraceID: testTraceID},
		{HeaderTraceID: testTraceID, HeaderSpanID: "0000000000000000"},
		{HeaderTraceID: testTraceID, HeaderSpanID: testSpanID, HeaderTraceFlags: "zz"},
	}
	for _, c := range cases {
		_, ok := HeaderFormat{}.Extract(MapCarrier(c))
		assert.False(t, ok, "%v", c)
	}
}

func TestCompositeFormat(t *testing.T) {
	f := CompositeFormat{TraceContextFormat{}, HeaderFormat{}}

	h := http.Header{}
	h.Set(HeaderTraceID, testTraceID)
	h.Set(HeaderSpanID, testSpanID)
	sc, ok := ExtractHTTP(f, h)
	require.True(t, ok)
	assert.Equal(t, testSpanID, sc.SpanID().String())

	out := http.Header{}
	InjectHTTP(f, testSpanContext(t), out)
	assert.NotEmpty(t, out.Get("traceparent"))
	assert.NotEmpty(t, out.Get(HeaderTraceID))
	assert.ElementsMatch(t, append(propagation.TraceContext{}.Fields(), HeaderTraceID, HeaderSpanID, HeaderTraceFlags), f.Fields())
}

func TestMapCarrierLookup(t *testing.T) {
	m := MapCarrier{"x-trace-id": testTraceID, "X-Span-Id": testSpanID}
	assert.Equal(t, testTraceID, m.Get(HeaderTraceID))
	assert.Equal(t, testSpanID, m.Get("x-span-id"))
	assert.Equal(t, "", m.Get("missing"))

	sc, ok := HeaderFormat{}.Extract(m)
	require.True(t, ok)
	assert.Equal(t, testTraceID, sc.TraceID().String())
}

func TestFormatByName(t *testing.T) {
	f, err := FormatByName("")
	require.NoError(t, err)
	assert.IsType(t, TraceContextFormat{}, f)

	f, err = FormatByName("HEADER")
	require.NoError(t, err)
	assert.IsType(t, HeaderFormat{}, f)

	f, err = FormatByName("both")
	require.NoError(t, err)
	assert.Len(t, f.(CompositeFormat), 2)

	_, err = FormatByName("b3")
	assert.Error(t, err)
}
