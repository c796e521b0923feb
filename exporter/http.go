package exporter

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/httpclient"
	"github.com/imattdu/orbitrace/tracex"
)

// DefaultTracesPath collector 接收 OTLP/JSON 的默认路径
const DefaultTracesPath = "/v1/traces"

// HTTPExporter 把 span 编码成 OTLP/JSON，经 httpclient POST 到 collector
type HTTPExporter struct {
	client      *httpclient.Client
	path        string
	serviceName string
}

var _ tracex.Exporter = (*HTTPExporter)(nil)

type HTTPConfig struct {
	URL         string // collector 地址，例如 http://127.0.0.1:4318
	Path        string
	ServiceName string
	Timeout     time.Duration
	MaxAttempts int
	Headers     map[string]string
	Backoff     httpclient.BackoffFunc
}

func NewHTTPExporter(cfg HTTPConfig) (*HTTPExporter, error) {
	if cfg.URL == "" {
		return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithMessage("http exporter url is empty"))
	}
	if cfg.Path == "" {
		cfg.Path = DefaultTracesPath
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultOTLPTimeout
	}

	// 导出请求本身不开 span，避免自己追踪自己
	opts := []httpclient.Option{
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithDefaultTimeout(cfg.Timeout),
		httpclient.WithRetry(cfg.MaxAttempts, nil, cfg.Backoff),
		httpclient.WithBizErrorDecoder(collectorError),
	}
	if len(cfg.Headers) > 0 {
		headers := cfg.Headers
		opts = append(opts, httpclient.WithBeforeHooks(func(_ context.Context, req *http.Request) {
			for k, v := range headers {
				req.Header.Set(k, v)
			}
		}))
	}
	cli, err := httpclient.New(opts...)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrInvalidConfig,
			errorx.WithType(errorx.ErrTypeConfig),
			errorx.WithComponent(errorx.ComponentExporter))
	}
	return &HTTPExporter{client: cli, path: cfg.Path, serviceName: cfg.ServiceName}, nil
}

func (e *HTTPExporter) ExportSpans(ctx context.Context, spans []tracex.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	var body []byte
	if _, err := e.client.PostJSON(ctx, e.path, e.payload(spans), &body); err != nil {
		return errorx.Wrap(err, errorx.ErrExport,
			errorx.WithComponent(errorx.ComponentExporter),
			errorx.WithField("spans", len(spans)))
	}
	return nil
}

func (e *HTTPExporter) Shutdown(context.Context) error { return nil }

func collectorError(status int, body []byte) error {
	if status < http.StatusMultipleChoices {
		return nil
	}
	return errorx.New(errorx.ErrExport,
		errorx.WithComponent(errorx.ComponentExporter),
		errorx.WithMessagef("collector responded %d", status),
		errorx.WithField("body", string(body)))
}

// ---------- OTLP/JSON ----------

type otlpRequest struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource     `json:"resource"`
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpKeyValue `json:"attributes"`
}

type otlpScopeSpans struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name string `json:"name"`
}

type otlpSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano"`
	Attributes        []otlpKeyValue `json:"attributes,omitempty"`
	Events            []otlpEvent    `json:"events,omitempty"`
	Status            otlpStatus     `json:"status"`
}

type otlpEvent struct {
	TimeUnixNano string         `json:"timeUnixNano"`
	Name         string         `json:"name"`
	Attributes   []otlpKeyValue `json:"attributes,omitempty"`
}

type otlpStatus struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type otlpKeyValue struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

// int64 在 OTLP/JSON 里按字符串编码
type otlpValue struct {
	StringValue *string `json:"stringValue,omitempty"`
	IntValue    *string `json:"intValue,omitempty"`
}

func (e *HTTPExporter) payload(spans []tracex.SpanData) otlpRequest {
	out := make([]otlpSpan, 0, len(spans))
	for _, d := range spans {
		out = append(out, toOTLPSpan(d))
	}
	return otlpRequest{ResourceSpans: []otlpResourceSpans{{
		Resource: otlpResource{Attributes: []otlpKeyValue{
			otlpAttr(attribute.String("service.name", e.serviceName)),
		}},
		ScopeSpans: []otlpScopeSpans{{
			Scope: otlpScope{Name: ScopeName},
			Spans: out,
		}},
	}}}
}

func toOTLPSpan(d tracex.SpanData) otlpSpan {
	s := otlpSpan{
		TraceID:           d.SpanContext.TraceID().String(),
		SpanID:            d.SpanContext.SpanID().String(),
		Name:              d.Name,
		Kind:              int(d.Kind),
		StartTimeUnixNano: unixNano(d.StartTime),
		EndTimeUnixNano:   unixNano(d.EndTime),
		Attributes:        otlpAttrs(spanAttributes(d)),
	}
	if d.Parent.IsValid() {
		s.ParentSpanID = d.Parent.SpanID().String()
	}
	for _, ev := range spanEvents(d) {
		s.Events = append(s.Events, otlpEvent{
			TimeUnixNano: unixNano(ev.Time),
			Name:         ev.Name,
			Attributes:   otlpAttrs(ev.Attributes),
		})
	}
	st := spanStatus(d)
	s.Status = otlpStatus{Code: otlpStatusCode(st.Code), Message: st.Description}
	return s
}

// otlpStatusCode OTLP 的 Ok=1 Error=2，与 codes 包的取值不同
func otlpStatusCode(c codes.Code) int {
	switch c {
	case codes.Ok:
		return 1
	case codes.Error:
		return 2
	default:
		return 0
	}
}

func otlpAttrs(kvs []attribute.KeyValue) []otlpKeyValue {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]otlpKeyValue, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, otlpAttr(kv))
	}
	return out
}

func otlpAttr(kv attribute.KeyValue) otlpKeyValue {
	var v otlpValue
	if kv.Value.Type() == attribute.INT64 {
		s := strconv.FormatInt(kv.Value.AsInt64(), 10)
		v.IntValue = &s
	} else {
		s := kv.Value.Emit()
		v.StringValue = &s
	}
	return otlpKeyValue{Key: string(kv.Key), Value: v}
}

func unixNano(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}
