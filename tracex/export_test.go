package tracex_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"

	"github.com/imattdu/orbitrace/tracex"
	"github.com/imattdu/orbitrace/tracextest"
)

// blockingExporter 第一次导出时阻塞，直到 release 被关闭
type blockingExporter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	spans []tracex.SpanData
}

func newBlockingExporter() *blockingExporter {
	return &blockingExporter{entered: make(chan struct{}), release: make(chan struct{})}
}

func (e *blockingExporter) ExportSpans(_ context.Context, spans []tracex.SpanData) error {
	e.once.Do(func() { close(e.entered) })
	<-e.release
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *blockingExporter) Shutdown(context.Context) error { return nil }

func (e *blockingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.spans)
}

type failingExporter struct{ calls int }

func (e *failingExporter) ExportSpans(context.Context, []tracex.SpanData) error {
	e.calls++
	return errors.New("collector down")
}

func (e *failingExporter) Shutdown(context.Context) error { return nil }

func TestBatchProcessorForceFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := tracextest.NewRecorder()
	bp := tracex.NewBatchProcessor(rec, tracex.WithExportInterval(time.Hour))
	tracer := tracex.NewTracer(tracex.WithProcessor(bp))

	for i := 0; i < 5; i++ {
		_, span := tracer.Start(context.Background(), "batched")
		span.End()
	}
	require.NoError(t, tracer.ForceFlush(context.Background()))
	assert.Len(t, rec.Spans(), 5)
	assert.Equal(t, int64(5), bp.Exported())

	require.NoError(t, tracer.Shutdown(context.Background()))
	assert.True(t, rec.IsShutdown())
}

func TestBatchProcessorExportsOnBatchSize(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := tracextest.NewRecorder()
	bp := tracex.NewBatchProcessor(rec, tracex.WithBatchSize(2), tracex.WithExportInterval(time.Hour))
	defer bp.Shutdown(context.Background())

	bp.OnEnd(tracex.SpanData{Name: "a"})
	bp.OnEnd(tracex.SpanData{Name: "b"})

	assert.Eventually(t, func() bool { return len(rec.Spans()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestBatchProcessorDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := newBlockingExporter()
	bp := tracex.NewBatchProcessor(exp,
		tracex.WithQueueSize(1),
		tracex.WithBatchSize(1),
		tracex.WithExportInterval(time.Hour))

	bp.OnEnd(tracex.SpanData{Name: "first"})
	<-exp.entered

	bp.OnEnd(tracex.SpanData{Name: "queued"})
	bp.OnEnd(tracex.SpanData{Name: "dropped"})
	assert.Equal(t, int64(1), bp.Dropped())

	close(exp.release)
	require.NoError(t, bp.Shutdown(context.Background()))
	assert.Equal(t, 2, exp.count())
	assert.Equal(t, int64(2), bp.Exported())

	bp.OnEnd(tracex.SpanData{Name: "after shutdown"})
	assert.Equal(t, int64(2), bp.Dropped())
	assert.Equal(t, 2, exp.count())
}

// 与 Shutdown 并发结束的 span 要么被导出要么计入 Dropped，不会悄悄丢失
func TestBatchProcessorShutdownRaceAccountsEverySpan(t *testing.T) {
	defer goleak.VerifyNone(t)

	for round := 0; round < 20; round++ {
		rec := tracextest.NewRecorder()
		bp := tracex.NewBatchProcessor(rec,
			tracex.WithQueueSize(64),
			tracex.WithBatchSize(8),
			tracex.WithExportInterval(time.Hour))

		const workers, perWorker = 8, 50
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perWorker; j++ {
					bp.OnEnd(tracex.SpanData{Name: "racing"})
				}
			}()
		}
		close(start)
		require.NoError(t, bp.Shutdown(context.Background()))
		wg.Wait()

		assert.Equal(t, int64(workers*perWorker), bp.Exported()+bp.Dropped(), "round %d", round)
		assert.Len(t, rec.Spans(), int(bp.Exported()), "round %d", round)
	}
}

func TestBatchProcessorExportFailureIsSwallowed(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := &failingExporter{}
	bp := tracex.NewBatchProcessor(exp, tracex.WithExportInterval(time.Hour))
	bp.OnEnd(tracex.SpanData{Name: "lost"})

	require.NoError(t, bp.ForceFlush(context.Background()))
	require.NoError(t, bp.Shutdown(context.Background()))
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, int64(0), bp.Exported())
}

func TestShutdownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	bp := tracex.NewBatchProcessor(tracextest.NewRecorder())
	require.NoError(t, bp.Shutdown(context.Background()))
	require.NoError(t, bp.Shutdown(context.Background()))
	require.NoError(t, bp.ForceFlush(context.Background()))
}

func TestSimpleProcessor(t *testing.T) {
	rec := tracextest.NewRecorder()
	sp := tracex.NewSimpleProcessor(rec)
	sp.OnEnd(tracex.SpanData{Name: "sync"})
	assert.Len(t, rec.Spans(), 1)

	require.NoError(t, sp.Shutdown(context.Background()))
	sp.OnEnd(tracex.SpanData{Name: "late"})
	assert.Len(t, rec.Spans(), 1)
}

func TestBatchProcessorCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	rec := tracextest.NewRecorder()
	bp := tracex.NewBatchProcessor(rec,
		tracex.WithExportInterval(time.Hour),
		tracex.WithMeterProvider(mp))
	tracer := tracex.NewTracer(tracex.WithProcessor(bp))

	for i := 0; i < 3; i++ {
		_, span := tracer.Start(context.Background(), "counted")
		span.End()
	}
	require.NoError(t, tracer.ForceFlush(context.Background()))
	require.NoError(t, tracer.Shutdown(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var exported int64
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orbitrace.spans.exported" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				exported += dp.Value
			}
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, int64(3), exported)
}
