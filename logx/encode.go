package logx

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/cctx"
	"github.com/imattdu/orbitrace/errorx"
)

// encodeLog 把 ctx / tag / msg / kv 整合成一组 slog.Attr
func encodeLog(ctx context.Context, tag string, msg any, kv ...any) []slog.Attr {
	attrs := make([]slog.Attr, 0, 16)

	if tag != "" {
		attrs = append(attrs, slog.String("tag", tag))
	}

	c := getCaller()
	attrs = append(attrs,
		slog.String("file", c.file),
		slog.Int("line", c.line),
		slog.String("func", c.funcName),
	)

	// 当前 ctx 上的 span（tracex 会同时写入 otel SpanContext）
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String(TraceID, sc.TraceID().String()),
			slog.String(SpanID, sc.SpanID().String()),
		)
	}

	switch v := msg.(type) {
	case *errorx.Error:
		attrs = append(attrs,
			slog.Int("code", v.Code.Code),
			slog.String("code_msg", v.Code.Message),
			slog.String("err_type", v.Type.Message),
			slog.String("component", v.Component.Message),
		)
		for k, vv := range v.Fields {
			attrs = append(attrs, slog.Any(k, vv))
		}
		if v.Message != "" {
			attrs = append(attrs, slog.String(Msg, v.Message))
		}
		if v.Cause != nil {
			attrs = append(attrs, slog.String(Err, v.Cause.Error()))
		}
	case error:
		attrs = append(attrs, slog.String(Err, v.Error()))
	default:
		attrs = append(attrs, slog.Any(Msg, v))
	}

	// cctx 中的通用字段
	for k, v := range cctx.All(ctx) {
		attrs = append(attrs, slog.Any(k, v))
	}

	// 额外 kv（必须成对）
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(k, kv[i+1]))
	}

	return attrs
}
