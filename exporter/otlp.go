package exporter

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/tracex"
)

const (
	ScopeName = "github.com/imattdu/orbitrace"

	eventMessage        = "message"
	attrMessageType     = "message.type"
	attrMessageID       = "message.id"
	attrMessageSize     = "message.uncompressed_size"
	attrCanonicalStatus = "status.canonical_code"
	defaultOTLPTimeout  = 10 * time.Second
	defaultServiceName  = "orbitrace"
)

// OTLPExporter 把 SpanData 转成 sdk 的 ReadOnlySpan，交给任意 sdktrace.SpanExporter
type OTLPExporter struct {
	exp   sdktrace.SpanExporter
	res   *resource.Resource
	scope instrumentation.Scope
}

var _ tracex.Exporter = (*OTLPExporter)(nil)

type OTLPOption func(*OTLPExporter)

// WithServiceName 写入 resource 的 service.name
func WithServiceName(name string) OTLPOption {
	return func(e *OTLPExporter) {
		if name != "" {
			e.res = serviceResource(name)
		}
	}
}

// WithResource 直接指定 resource
func WithResource(res *resource.Resource) OTLPOption {
	return func(e *OTLPExporter) {
		if res != nil {
			e.res = res
		}
	}
}

func NewOTLPExporter(exp sdktrace.SpanExporter, opts ...OTLPOption) *OTLPExporter {
	e := &OTLPExporter{
		exp:   exp,
		res:   serviceResource(defaultServiceName),
		scope: instrumentation.Scope{Name: ScopeName},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OTLPHTTPConfig otlptracehttp 的连接参数
type OTLPHTTPConfig struct {
	Endpoint    string // host:port
	URLPath     string
	Insecure    bool
	Timeout     time.Duration
	Headers     map[string]string
	ServiceName string
}

// NewOTLPHTTPExporter 使用 otlptracehttp 发往 collector
func NewOTLPHTTPExporter(ctx context.Context, cfg OTLPHTTPConfig) (*OTLPExporter, error) {
	if cfg.Endpoint == "" {
		return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithMessage("otlp endpoint is empty"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOTLPTimeout
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithTimeout(timeout),
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrExport,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithMessage("create otlp http exporter failed"))
	}
	return NewOTLPExporter(exp, WithServiceName(cfg.ServiceName)), nil
}

func (e *OTLPExporter) ExportSpans(ctx context.Context, spans []tracex.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	ro := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, d := range spans {
		ro = append(ro, e.stub(d).Snapshot())
	}
	return e.exp.ExportSpans(ctx, ro)
}

func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	return e.exp.Shutdown(ctx)
}

// stub SpanData -> tracetest.SpanStub
func (e *OTLPExporter) stub(d tracex.SpanData) tracetest.SpanStub {
	return tracetest.SpanStub{
		Name:                 d.Name,
		SpanContext:          d.SpanContext,
		Parent:               d.Parent,
		SpanKind:             d.Kind,
		StartTime:            d.StartTime,
		EndTime:              d.EndTime,
		Attributes:           spanAttributes(d),
		Events:               spanEvents(d),
		Status:               spanStatus(d),
		Resource:             e.res,
		InstrumentationScope: e.scope,
	}
}

func spanAttributes(d tracex.SpanData) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(d.Attributes)+1)
	for _, kv := range d.Attributes {
		out = append(out, toAttribute(kv.Key, kv.Value))
	}
	if d.HasStatus {
		out = append(out, attribute.Int64(attrCanonicalStatus, int64(d.Status)))
	}
	return out
}

func toAttribute(key string, v tracex.Value) attribute.KeyValue {
	if v.Type() == tracex.ValueInt {
		return attribute.Int64(key, v.AsInt64())
	}
	return attribute.String(key, v.AsString())
}

// spanEvents 收发事件和标注合并，按时间排序
func spanEvents(d tracex.SpanData) []sdktrace.Event {
	events := make([]sdktrace.Event, 0, len(d.MessageEvents)+len(d.Annotations))
	for _, ev := range d.MessageEvents {
		events = append(events, sdktrace.Event{
			Name: eventMessage,
			Time: ev.Time,
			Attributes: []attribute.KeyValue{
				attribute.String(attrMessageType, ev.Type.String()),
				attribute.Int64(attrMessageID, ev.ID),
				attribute.Int64(attrMessageSize, ev.UncompressedSize),
			},
		})
	}
	for _, a := range d.Annotations {
		attrs := make([]attribute.KeyValue, 0, len(a.Attributes))
		for k, v := range a.Attributes {
			attrs = append(attrs, toAttribute(k, v))
		}
		slices.SortFunc(attrs, func(x, y attribute.KeyValue) int {
			return compareStrings(string(x.Key), string(y.Key))
		})
		events = append(events, sdktrace.Event{Name: a.Description, Time: a.Time, Attributes: attrs})
	}
	slices.SortStableFunc(events, func(x, y sdktrace.Event) int {
		return x.Time.Compare(y.Time)
	})
	return events
}

func spanStatus(d tracex.SpanData) sdktrace.Status {
	switch {
	case !d.HasStatus:
		return sdktrace.Status{Code: codes.Unset}
	case d.Status == tracex.StatusOK:
		return sdktrace.Status{Code: codes.Ok}
	default:
		return sdktrace.Status{Code: codes.Error, Description: d.Status.String()}
	}
}

func serviceResource(name string) *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(name))
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
