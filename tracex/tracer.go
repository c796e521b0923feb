package tracex

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer 创建 span，并把结束的 span 交给处理器。一个进程通常只有一个，由 main 注入。
type Tracer struct {
	sampler   Sampler
	processor SpanProcessor
	format    TextFormat
	clock     func() time.Time
}

type Option func(*Tracer)

// WithSampler 默认采样器，未设置时全采样
func WithSampler(s Sampler) Option {
	return func(t *Tracer) {
		if s != nil {
			t.sampler = s
		}
	}
}

// WithProcessor 设置处理器
func WithProcessor(p SpanProcessor) Option {
	return func(t *Tracer) { t.processor = p }
}

// WithBatcher 用 BatchProcessor 包一层 exporter
func WithBatcher(exp Exporter, opts ...BatchOption) Option {
	return func(t *Tracer) { t.processor = NewBatchProcessor(exp, opts...) }
}

// WithSyncer 同步导出，测试和 demo 用
func WithSyncer(exp Exporter) Option {
	return func(t *Tracer) { t.processor = NewSimpleProcessor(exp) }
}

// WithTextFormat 跨进程传播格式，默认 W3C traceparent
func WithTextFormat(f TextFormat) Option {
	return func(t *Tracer) {
		if f != nil {
			t.format = f
		}
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.clock = now
		}
	}
}

func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{
		sampler: AlwaysSample(),
		format:  TraceContextFormat{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// -------------------- 单个 span 的选项 --------------------

type startConfig struct {
	kind         trace.SpanKind
	parent       *Span
	remote       trace.SpanContext
	remoteSet    bool
	sampler      Sampler
	recordEvents bool
	attrs        []KeyValue
}

type StartOption func(*startConfig)

// WithSpanKind 默认 INTERNAL
func WithSpanKind(k trace.SpanKind) StartOption {
	return func(c *startConfig) { c.kind = k }
}

// WithParent 显式指定父 span，忽略 ctx 中的当前 span
func WithParent(p *Span) StartOption {
	return func(c *startConfig) { c.parent = p }
}

// WithRemoteParent 以远端上下文为父；sc 无效时开一个新的根 span，同样忽略 ctx 中的当前 span
func WithRemoteParent(sc trace.SpanContext) StartOption {
	return func(c *startConfig) {
		c.remote = sc
		c.remoteSet = true
	}
}

// WithSpanSampler 本次 span 使用的采样器，覆盖 tracer 默认值
func WithSpanSampler(s Sampler) StartOption {
	return func(c *startConfig) { c.sampler = s }
}

// WithRecordEvents 未采样时是否仍然记录属性和事件，默认 true
func WithRecordEvents(b bool) StartOption {
	return func(c *startConfig) { c.recordEvents = b }
}

// WithAttributes 开始时写入的属性
func WithAttributes(kvs ...KeyValue) StartOption {
	return func(c *startConfig) { c.attrs = append(c.attrs, kvs...) }
}

// -------------------- Span 生命周期 --------------------

// Start 开一个新 span，并返回把它作为当前 span 的 ctx：
//   - WithRemoteParent：以远端 span 为父，无效时为根
//   - WithParent：以指定 span 为父
//   - 否则 ctx 中已有 span 时以它为父，沿用 TraceID；没有则是根 span
func (t *Tracer) Start(ctx context.Context, name string, opts ...StartOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := startConfig{kind: trace.SpanKindInternal, recordEvents: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		parent trace.SpanContext
		remote bool
	)
	switch {
	case cfg.remoteSet:
		if cfg.remote.IsValid() {
			parent = cfg.remote.WithRemote(true)
			remote = true
		}
	case cfg.parent != nil:
		parent = cfg.parent.SpanContext()
	default:
		parent = SpanFromContext(ctx).SpanContext()
	}

	traceID := parent.TraceID()
	if !parent.IsValid() {
		traceID = newTraceID()
	}

	sampler := cfg.sampler
	if sampler == nil {
		sampler = t.sampler
	}
	res := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithSpanContext(ctx, parent),
		TraceID:       traceID,
		Name:          name,
		Kind:          cfg.kind,
	})

	var flags trace.TraceFlags
	if res.Decision == sdktrace.RecordAndSample {
		flags = flags.WithSampled(true)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     newSpanID(),
		TraceFlags: flags,
		TraceState: res.Tracestate,
	})

	span := &Span{
		sc:              sc,
		parent:          parent,
		hasRemoteParent: remote,
		name:            name,
		kind:            cfg.kind,
		recording:       res.Decision != sdktrace.Drop || cfg.recordEvents,
		start:           t.now(),
		tracer:          t,
	}
	span.SetAttributes(cfg.attrs...)
	return WithSpan(ctx, span), span
}

// Format 返回跨进程传播格式
func (t *Tracer) Format() TextFormat {
	return t.format
}

// Inject 把 ctx 中当前 span 的上下文写入 carrier
func (t *Tracer) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	sc := SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return
	}
	t.format.Inject(sc, carrier)
}

// ForceFlush 把处理器里积压的 span 导出
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.processor == nil {
		return nil
	}
	return t.processor.ForceFlush(ctx)
}

// Shutdown 导出剩余 span 并关闭处理器，之后结束的 span 不再导出
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.processor == nil {
		return nil
	}
	return t.processor.Shutdown(ctx)
}

func (t *Tracer) onEnd(d SpanData) {
	if t.processor != nil {
		t.processor.OnEnd(d)
	}
}

func (t *Tracer) now() time.Time {
	if t.clock == nil {
		return time.Now()
	}
	return t.clock()
}
