package tracex_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/tracex"
	"github.com/imattdu/orbitrace/tracextest"
)

func remoteContext(t *testing.T) trace.SpanContext {
	t.Helper()
	sc, ok := tracex.HeaderFormat{}.Extract(tracex.MapCarrier{
		tracex.HeaderTraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		tracex.HeaderSpanID:  "00f067aa0ba902b7",
	})
	require.True(t, ok)
	return sc
}

func TestStartRootSpan(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	ctx, span := tracer.Start(context.Background(), "root", tracex.WithSpanKind(trace.SpanKindServer))
	assert.Same(t, span, tracex.SpanFromContext(ctx))
	assert.Equal(t, span.TraceID(), tracex.TraceIDFromContext(ctx))
	assert.Equal(t, "root", tracex.SpanNameFromContext(ctx))
	assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(ctx))
	span.End()

	spans := rec.Spans()
	require.Len(t, spans, 1)
	d := spans[0]
	assert.False(t, d.Parent.IsValid())
	assert.False(t, d.HasRemoteParent)
	assert.Equal(t, trace.SpanKindServer, d.Kind)
	assert.True(t, d.SpanContext.IsValid())
	assert.True(t, d.SpanContext.IsSampled())
	assert.False(t, d.EndTime.Before(d.StartTime))
}

func TestChildInheritsTrace(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	ctx, parent := tracer.Start(context.Background(), "parent")
	_, child := tracer.Start(ctx, "child")
	child.End()
	parent.End()

	require.Len(t, rec.Spans(), 2)
	c := rec.ByName("child")[0]
	assert.Equal(t, parent.SpanContext().TraceID(), c.SpanContext.TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), c.Parent.SpanID())
	assert.Equal(t, trace.SpanKindInternal, c.Kind)
}

func TestRemoteParent(t *testing.T) {
	tracer, rec := tracextest.NewTracer()
	remote := remoteContext(t)

	// 已有的当前 span 不影响远端父
	ctx, ambient := tracer.Start(context.Background(), "ambient")
	_, span := tracer.Start(ctx, "server", tracex.WithRemoteParent(remote))
	span.End()
	ambient.End()

	d := rec.ByName("server")[0]
	assert.True(t, d.HasRemoteParent)
	assert.Equal(t, remote.TraceID(), d.SpanContext.TraceID())
	assert.Equal(t, remote.SpanID(), d.Parent.SpanID())
}

func TestInvalidRemoteParentStartsRoot(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	ctx, ambient := tracer.Start(context.Background(), "ambient")
	_, span := tracer.Start(ctx, "server", tracex.WithRemoteParent(trace.SpanContext{}))
	span.End()

	d := rec.ByName("server")[0]
	assert.False(t, d.Parent.IsValid())
	assert.NotEqual(t, ambient.SpanContext().TraceID(), d.SpanContext.TraceID())
}

func TestExplicitParent(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	_, explicit := tracer.Start(context.Background(), "explicit")
	ctx, other := tracer.Start(context.Background(), "other")
	_, child := tracer.Start(ctx, "child", tracex.WithParent(explicit))
	child.End()

	d := rec.ByName("child")[0]
	assert.Equal(t, explicit.SpanContext().SpanID(), d.Parent.SpanID())
	assert.NotEqual(t, other.SpanContext().TraceID(), d.SpanContext.TraceID())
}

func TestEndExportsOnce(t *testing.T) {
	tracer, rec := tracextest.NewTracer()
	_, span := tracer.Start(context.Background(), "once")
	span.End()
	span.End()
	assert.Len(t, rec.Spans(), 1)
}

func TestNeverSampleSkipsExport(t *testing.T) {
	tracer, rec := tracextest.NewTracer(tracex.WithSampler(tracex.NeverSample()))
	_, span := tracer.Start(context.Background(), "dropped")
	assert.False(t, span.SpanContext().IsSampled())
	assert.True(t, span.IsRecording(), "record events keeps attributes on unsampled spans")
	span.SetAttribute("k", "v")
	span.End()
	assert.Empty(t, rec.Spans())

	_, quiet := tracer.Start(context.Background(), "quiet", tracex.WithRecordEvents(false))
	assert.False(t, quiet.IsRecording())
}

func TestPerSpanSamplerOverride(t *testing.T) {
	tracer, rec := tracextest.NewTracer(tracex.WithSampler(tracex.NeverSample()))
	_, span := tracer.Start(context.Background(), "forced", tracex.WithSpanSampler(tracex.AlwaysSample()))
	span.End()
	assert.Len(t, rec.Spans(), 1)
}

func TestParentBasedFollowsRemote(t *testing.T) {
	tracer, rec := tracextest.NewTracer(tracex.WithSampler(tracex.ParentBased(tracex.NeverSample())))
	_, span := tracer.Start(context.Background(), "child-of-sampled", tracex.WithRemoteParent(remoteContext(t)))
	span.End()
	assert.Len(t, rec.Spans(), 1)
}

func TestStartAttributesAndClock(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	tracer, rec := tracextest.NewTracer(tracex.WithClock(func() time.Time { return fixed }))
	_, span := tracer.Start(context.Background(), "attrs", tracex.WithAttributes(tracex.String("a", "b"), tracex.Int("n", 2)))
	span.End()

	d := rec.Spans()[0]
	assert.Equal(t, fixed, d.StartTime)
	assert.Equal(t, fixed, d.EndTime)
	v, ok := d.Attribute("n")
	require.True(t, ok)
	assert.Equal(t, int64(2), v.AsInt64())
}

func TestScopeNesting(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	outer := tracer.StartScoped(context.Background(), "outer")
	inner := tracer.StartScoped(outer.Context(), "inner")
	assert.Same(t, inner.Span(), tracex.SpanFromContext(inner.Context()))
	inner.Close()
	inner.Close()

	// 关闭内层后，外层 ctx 仍指向外层 span
	assert.Same(t, outer.Span(), tracex.SpanFromContext(outer.Context()))
	outer.Close()

	require.Len(t, rec.Spans(), 2)
	assert.Equal(t, "inner", rec.Spans()[0].Name)
	assert.Equal(t, outer.Span().SpanContext().SpanID(), rec.Spans()[0].Parent.SpanID())
}

func TestInSpan(t *testing.T) {
	tracer, rec := tracextest.NewTracer()

	err := tracer.InSpan(context.Background(), "ok", func(ctx context.Context) error {
		tracex.SpanFromContext(ctx).SetAttribute("inside", "yes")
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tracer.InSpan(context.Background(), "fails", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = tracer.InSpan(context.Background(), "panics", func(context.Context) error { panic("kaboom") })
	})

	okSpan := rec.ByName("ok")[0]
	assert.False(t, okSpan.HasStatus)
	v, _ := okSpan.Attribute("inside")
	assert.Equal(t, "yes", v.AsString())

	failed := rec.ByName("fails")[0]
	assert.Equal(t, tracex.StatusUnknown, failed.Status)
	require.Len(t, failed.Annotations, 1)
	assert.Equal(t, "boom", failed.Annotations[0].Attributes["message"].AsString())

	panicked := rec.ByName("panics")[0]
	assert.Equal(t, tracex.StatusUnknown, panicked.Status)
}

func TestTracerInject(t *testing.T) {
	tracer, _ := tracextest.NewTracer(tracex.WithTextFormat(tracex.HeaderFormat{}))
	carrier := tracex.MapCarrier{}
	tracer.Inject(context.Background(), carrier)
	assert.Empty(t, carrier)

	ctx, span := tracer.Start(context.Background(), "out")
	tracer.Inject(ctx, carrier)
	assert.Equal(t, span.TraceID(), carrier[tracex.HeaderTraceID])
	assert.Equal(t, span.SpanID(), carrier[tracex.HeaderSpanID])
}

func TestSamplerByName(t *testing.T) {
	for _, name := range []string{"", "always", "never", "ratio"} {
		s, err := tracex.SamplerByName(name, 0.5)
		require.NoError(t, err, name)
		assert.NotNil(t, s)
	}
	_, err := tracex.SamplerByName("ratio", 2)
	assert.Error(t, err)
	_, err = tracex.SamplerByName("sometimes", 0)
	assert.Error(t, err)
}
