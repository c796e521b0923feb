package tracex

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/imattdu/orbitrace/cctx"
	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
)

const instrumentationName = "github.com/imattdu/orbitrace/tracex"

// Exporter 把结束的 span 发往后端。导出失败只记日志，不影响请求。
type Exporter interface {
	ExportSpans(ctx context.Context, spans []SpanData) error
	Shutdown(ctx context.Context) error
}

// SpanProcessor 接收结束的 span
type SpanProcessor interface {
	OnEnd(d SpanData)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// -------------------- 同步处理器 --------------------

// SimpleProcessor 每个 span 结束时同步导出
type SimpleProcessor struct {
	exp     Exporter
	timeout time.Duration
	mu      sync.Mutex
	stopped bool
}

func NewSimpleProcessor(exp Exporter) *SimpleProcessor {
	return &SimpleProcessor{exp: exp, timeout: 30 * time.Second}
}

func (p *SimpleProcessor) OnEnd(d SpanData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.exp == nil {
		return
	}
	ctx, cancel := cctx.DetachWithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.exp.ExportSpans(ctx, []SpanData{d}); err != nil {
		logExportFailure(ctx, err, 1)
	}
}

func (p *SimpleProcessor) ForceFlush(context.Context) error { return nil }

func (p *SimpleProcessor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	if p.exp == nil {
		return nil
	}
	return p.exp.Shutdown(ctx)
}

// -------------------- 异步批量处理器 --------------------

type batchConfig struct {
	queueSize     int
	batchSize     int
	interval      time.Duration
	exportTimeout time.Duration
	meter         metric.MeterProvider
}

type BatchOption func(*batchConfig)

// WithQueueSize 队列长度，满了直接丢弃
func WithQueueSize(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithBatchSize 单次导出的最大 span 数
func WithBatchSize(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithExportInterval 定时导出间隔
func WithExportInterval(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithExportTimeout 单次导出超时
func WithExportTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.exportTimeout = d
		}
	}
}

// WithMeterProvider 计数器使用的 MeterProvider，默认取 otel 全局
func WithMeterProvider(mp metric.MeterProvider) BatchOption {
	return func(c *batchConfig) {
		if mp != nil {
			c.meter = mp
		}
	}
}

// BatchProcessor 后台 goroutine 按数量或时间攒批导出。
// OnEnd 不阻塞：队列满或已关闭时丢弃并计数，每个 span 要么被导出要么计入 Dropped。
type BatchProcessor struct {
	exp Exporter
	cfg batchConfig

	queue   chan SpanData
	flushCh chan chan struct{}
	done    chan struct{}
	exited  chan struct{}

	// mu 保证 Shutdown 置位 stopped 之后不再有 span 入队
	mu       sync.RWMutex
	stopped  atomic.Bool
	stopOnce sync.Once

	exported atomic.Int64
	dropped  atomic.Int64

	exportedCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter
}

func NewBatchProcessor(exp Exporter, opts ...BatchOption) *BatchProcessor {
	cfg := batchConfig{
		queueSize:     2048,
		batchSize:     512,
		interval:      5 * time.Second,
		exportTimeout: 30 * time.Second,
		meter:         otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.batchSize > cfg.queueSize {
		cfg.batchSize = cfg.queueSize
	}

	p := &BatchProcessor{
		exp:     exp,
		cfg:     cfg,
		queue:   make(chan SpanData, cfg.queueSize),
		flushCh: make(chan chan struct{}),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	meter := cfg.meter.Meter(instrumentationName)
	p.exportedCounter, _ = meter.Int64Counter("orbitrace.spans.exported",
		metric.WithDescription("spans handed to the exporter"), metric.WithUnit("{span}"))
	p.droppedCounter, _ = meter.Int64Counter("orbitrace.spans.dropped",
		metric.WithDescription("spans dropped because the queue was full or the processor was shut down"), metric.WithUnit("{span}"))

	go p.loop()
	return p
}

// OnEnd 入队，队列满或已关闭时丢弃
func (p *BatchProcessor) OnEnd(d SpanData) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped.Load() {
		p.drop(d, "span processor shut down")
		return
	}
	select {
	case p.queue <- d:
	default:
		p.drop(d, "span queue full")
	}
}

func (p *BatchProcessor) drop(d SpanData, reason string) {
	p.dropped.Add(1)
	if p.droppedCounter != nil {
		p.droppedCounter.Add(context.Background(), 1)
	}
	logx.Warn(context.Background(), logx.TagSpanDropped, reason,
		logx.SpanName, d.Name, logx.TraceID, d.SpanContext.TraceID().String())
}

// ForceFlush 导出当前队列里的全部 span
func (p *BatchProcessor) ForceFlush(ctx context.Context) error {
	if p.stopped.Load() {
		return nil
	}
	ack := make(chan struct{})
	select {
	case p.flushCh <- ack:
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 停止接收，导出剩余 span 后关闭 exporter
func (p *BatchProcessor) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped.Store(true)
		p.mu.Unlock()
		close(p.done)
		select {
		case <-p.exited:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		if p.exp != nil {
			err = p.exp.Shutdown(ctx)
		}
	})
	return err
}

// Exported 已交给 exporter 的 span 数
func (p *BatchProcessor) Exported() int64 { return p.exported.Load() }

// Dropped 因队列满或已关闭被丢弃的 span 数
func (p *BatchProcessor) Dropped() int64 { return p.dropped.Load() }

func (p *BatchProcessor) loop() {
	defer close(p.exited)

	ticker := time.NewTicker(p.cfg.interval)
	defer ticker.Stop()

	batch := make([]SpanData, 0, p.cfg.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.export(batch)
		batch = make([]SpanData, 0, p.cfg.batchSize)
	}
	drain := func() {
		for {
			select {
			case d := <-p.queue:
				batch = append(batch, d)
				if len(batch) >= p.cfg.batchSize {
					flush()
				}
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case d := <-p.queue:
			batch = append(batch, d)
			if len(batch) >= p.cfg.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case ack := <-p.flushCh:
			drain()
			close(ack)
		case <-p.done:
			drain()
			return
		}
	}
}

func (p *BatchProcessor) export(batch []SpanData) {
	if p.exp == nil {
		return
	}
	ctx, cancel := cctx.DetachWithTimeout(context.Background(), p.cfg.exportTimeout)
	defer cancel()

	if err := p.exp.ExportSpans(ctx, batch); err != nil {
		logExportFailure(ctx, err, len(batch))
		return
	}
	p.exported.Add(int64(len(batch)))
	if p.exportedCounter != nil {
		p.exportedCounter.Add(ctx, int64(len(batch)))
	}
}

func logExportFailure(ctx context.Context, err error, n int) {
	logx.Error(ctx, logx.TagSpanExportFailure,
		errorx.Wrap(err, errorx.ErrExport, errorx.WithComponent(errorx.ComponentExporter)),
		"spans", n)
}
