package tracex

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type spanKeyType struct{}

var spanKey spanKeyType

// SpanFromContext 取当前 ctx 中的 span
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// TraceIDFromContext 直接取 TraceID（没有则返回空串）
func TraceIDFromContext(ctx context.Context) string {
	if s := SpanFromContext(ctx); s != nil {
		return s.TraceID()
	}
	return ""
}

// SpanNameFromContext 取 Span 名称
func SpanNameFromContext(ctx context.Context) string {
	return SpanFromContext(ctx).Name()
}

// WithSpan 把 span 写入 ctx，同时写入 otel 的 SpanContext，日志等下游只认后者
func WithSpan(ctx context.Context, s *Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, spanKey, s)
	return trace.ContextWithSpanContext(ctx, s.SpanContext())
}
