package tracex

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
)

const (
	HeaderTraceID      = "X-Trace-Id"
	HeaderSpanID       = "X-Span-Id"
	HeaderParentSpanID = "X-Parent-Span-Id"
	HeaderTraceFlags   = "X-Trace-Flags"

	headerTraceparent = "traceparent"
)

// TextFormat 跨进程传播 trace context 的编解码
type TextFormat interface {
	// Extract 头不存在或格式错误时返回 false；格式错误会打一条 warn
	Extract(carrier propagation.TextMapCarrier) (trace.SpanContext, bool)
	Inject(sc trace.SpanContext, carrier propagation.TextMapCarrier)
	Fields() []string
}

// ExtractHTTP 从 HTTP 头解析上游上下文
func ExtractHTTP(f TextFormat, h http.Header) (trace.SpanContext, bool) {
	if f == nil || h == nil {
		return trace.SpanContext{}, false
	}
	return f.Extract(propagation.HeaderCarrier(h))
}

// InjectHTTP 把 span 的上下文写入 HTTP 头
func InjectHTTP(f TextFormat, sc trace.SpanContext, h http.Header) {
	if f == nil || h == nil || !sc.IsValid() {
		return
	}
	f.Inject(sc, propagation.HeaderCarrier(h))
}

// -------------------- W3C traceparent --------------------

// TraceContextFormat W3C traceparent / tracestate
type TraceContextFormat struct{}

func (TraceContextFormat) Extract(carrier propagation.TextMapCarrier) (trace.SpanContext, bool) {
	if carrier == nil {
		return trace.SpanContext{}, false
	}
	raw := carrier.Get(headerTraceparent)
	if raw == "" {
		return trace.SpanContext{}, false
	}
	ctx := propagation.TraceContext{}.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		warnInvalid(headerTraceparent, raw)
		return trace.SpanContext{}, false
	}
	return sc, true
}

func (TraceContextFormat) Inject(sc trace.SpanContext, carrier propagation.TextMapCarrier) {
	if carrier == nil || !sc.IsValid() {
		return
	}
	propagation.TraceContext{}.Inject(trace.ContextWithSpanContext(context.Background(), sc), carrier)
}

func (TraceContextFormat) Fields() []string {
	return propagation.TraceContext{}.Fields()
}

// -------------------- X-Trace-Id 头 --------------------

// HeaderFormat 使用 X-Trace-Id / X-Span-Id / X-Trace-Flags 三个头，
// 没有 X-Trace-Flags 时按已采样处理
type HeaderFormat struct{}

func (HeaderFormat) Extract(carrier propagation.TextMapCarrier) (trace.SpanContext, bool) {
	if carrier == nil {
		return trace.SpanContext{}, false
	}
	rawTrace := strings.TrimSpace(carrier.Get(HeaderTraceID))
	rawSpan := strings.TrimSpace(carrier.Get(HeaderSpanID))
	if rawTrace == "" && rawSpan == "" {
		return trace.SpanContext{}, false
	}

	traceID, err := trace.TraceIDFromHex(strings.ToLower(rawTrace))
	if err != nil {
		warnInvalid(HeaderTraceID, rawTrace)
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(strings.ToLower(rawSpan))
	if err != nil {
		warnInvalid(HeaderSpanID, rawSpan)
		return trace.SpanContext{}, false
	}

	flags := trace.FlagsSampled
	if rawFlags := strings.TrimSpace(carrier.Get(HeaderTraceFlags)); rawFlags != "" {
		n, err := strconv.ParseUint(rawFlags, 16, 8)
		if err != nil {
			warnInvalid(HeaderTraceFlags, rawFlags)
			return trace.SpanContext{}, false
		}
		flags = trace.TraceFlags(n)
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func (HeaderFormat) Inject(sc trace.SpanContext, carrier propagation.TextMapCarrier) {
	if carrier == nil || !sc.IsValid() {
		return
	}
	carrier.Set(HeaderTraceID, sc.TraceID().String())
	carrier.Set(HeaderSpanID, sc.SpanID().String())
	carrier.Set(HeaderTraceFlags, sc.TraceFlags().String())
}

func (HeaderFormat) Fields() []string {
	return []string{HeaderTraceID, HeaderSpanID, HeaderTraceFlags}
}

// -------------------- 组合 --------------------

// CompositeFormat 按顺序尝试解析，第一个成功的生效；注入时全部写入
type CompositeFormat []TextFormat

func (c CompositeFormat) Extract(carrier propagation.TextMapCarrier) (trace.SpanContext, bool) {
	for _, f := range c {
		if sc, ok := f.Extract(carrier); ok {
			return sc, true
		}
	}
	return trace.SpanContext{}, false
}

func (c CompositeFormat) Inject(sc trace.SpanContext, carrier propagation.TextMapCarrier) {
	for _, f := range c {
		f.Inject(sc, carrier)
	}
}

func (c CompositeFormat) Fields() []string {
	var out []string
	for _, f := range c {
		out = append(out, f.Fields()...)
	}
	return out
}

// FormatByName w3c | header | both
func FormatByName(name string) (TextFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "w3c":
		return TraceContextFormat{}, nil
	case "header":
		return HeaderFormat{}, nil
	case "both":
		return CompositeFormat{TraceContextFormat{}, HeaderFormat{}}, nil
	default:
		return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
			errorx.WithComponent(errorx.ComponentTracer),
			errorx.WithMessagef("unknown propagation format %q", name))
	}
}

// -------------------- carrier --------------------

// MapCarrier 普通 map 做 carrier，读取时依次尝试原样、小写、规范化的 key
type MapCarrier map[string]string

func (m MapCarrier) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	if v, ok := m[strings.ToLower(key)]; ok {
		return v
	}
	return m[http.CanonicalHeaderKey(key)]
}

func (m MapCarrier) Set(key, value string) {
	m[key] = value
}

func (m MapCarrier) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func warnInvalid(header, value string) {
	logx.Warn(context.Background(), logx.TagTraceContextInvalid,
		errorx.NewProtocol(errorx.ErrPropagation,
			errorx.WithComponent(errorx.ComponentTracer),
			errorx.WithField("header", header),
			errorx.WithField("value", value)))
}
