// Package exporter 提供 tracex.Exporter 的几种实现：写日志、OTLP、OTLP/JSON over HTTP
package exporter

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/logx"
	"github.com/imattdu/orbitrace/tracex"
)

// LogExporter 每个 span 一行 span_end 日志
type LogExporter struct {
	logger logx.Logger
}

var _ tracex.Exporter = (*LogExporter)(nil)

// NewLogExporter logger 为 nil 时走全局 logx
func NewLogExporter(logger logx.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []tracex.SpanData) error {
	for _, d := range spans {
		sctx := trace.ContextWithSpanContext(ctx, d.SpanContext)
		kv := []any{
			logx.SpanName, d.Name,
			logx.Status, d.Status.String(),
			logx.Cost, d.Duration().Milliseconds(),
		}
		if d.Parent.IsValid() {
			kv = append(kv, logx.ParentID, d.Parent.SpanID().String())
		}
		e.info(sctx, spanRecord(d), kv...)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }

func (e *LogExporter) info(ctx context.Context, msg any, kv ...any) {
	if e.logger != nil {
		e.logger.Info(ctx, logx.TagSpanEnd, msg, kv...)
		return
	}
	logx.Info(ctx, logx.TagSpanEnd, msg, kv...)
}

// spanRecord 日志里展示的 span 明细
func spanRecord(d tracex.SpanData) map[string]any {
	attrs := make(map[string]any, len(d.Attributes))
	for _, kv := range d.Attributes {
		attrs[kv.Key] = kv.Value.Interface()
	}
	events := make([]map[string]any, 0, len(d.MessageEvents))
	for _, ev := range d.MessageEvents {
		events = append(events, map[string]any{
			"type": ev.Type.String(),
			"size": ev.UncompressedSize,
		})
	}
	annotations := make([]map[string]any, 0, len(d.Annotations))
	for _, a := range d.Annotations {
		m := make(map[string]any, len(a.Attributes)+1)
		for k, v := range a.Attributes {
			m[k] = v.Interface()
		}
		m["description"] = a.Description
		annotations = append(annotations, m)
	}
	return map[string]any{
		"kind":        d.Kind.String(),
		"remote":      d.HasRemoteParent,
		"attributes":  attrs,
		"events":      events,
		"annotations": annotations,
	}
}
