package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/cctx"
	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
	"github.com/imattdu/orbitrace/tracex"
)

const TracingName = "tracing"

// span 属性名
const (
	AttrHTTPHost        = "http.host"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPUserAgent   = "http.user_agent"
	AttrHTTPURL         = "http.url"
	AttrHTTPStatusCode  = "http.status_code"
	AttrHTTPRequestBody = "http.request_body"

	AnnotationHandlerError = "handler.error"

	noAgent = "NoAgent"
)

type (
	// Filter 返回 false 的请求不追踪
	Filter func(c *gin.Context) bool
	// SpanNameHandler 根据请求和路由生成 span 名称
	SpanNameHandler func(c *gin.Context, r Route) string
	// AttributeHandler 请求前 / 响应后追加属性
	AttributeHandler func(c *gin.Context, span *tracex.Span)
)

// TracingConfig 追踪中间件配置
type TracingConfig struct {
	Sampler                  tracex.Sampler // 为空时使用 tracer 的默认采样器
	LoggingRequestBody       bool
	Filter                   Filter
	SpanNameHandler          SpanNameHandler
	RequestAttributeHandler  AttributeHandler
	ResponseAttributeHandler AttributeHandler
	TextFormat               tracex.TextFormat // 为空时使用 tracer 的传播格式
}

type TracingOption func(*TracingConfig)

func WithSampler(s tracex.Sampler) TracingOption {
	return func(c *TracingConfig) { c.Sampler = s }
}

func WithLoggingRequestBody(b bool) TracingOption {
	return func(c *TracingConfig) { c.LoggingRequestBody = b }
}

func WithFilter(f Filter) TracingOption {
	return func(c *TracingConfig) {
		if f != nil {
			c.Filter = f
		}
	}
}

func WithSpanNameHandler(h SpanNameHandler) TracingOption {
	return func(c *TracingConfig) {
		if h != nil {
			c.SpanNameHandler = h
		}
	}
}

func WithRequestAttributeHandler(h AttributeHandler) TracingOption {
	return func(c *TracingConfig) { c.RequestAttributeHandler = h }
}

func WithResponseAttributeHandler(h AttributeHandler) TracingOption {
	return func(c *TracingConfig) { c.ResponseAttributeHandler = h }
}

func WithTextFormat(f tracex.TextFormat) TracingOption {
	return func(c *TracingConfig) { c.TextFormat = f }
}

// DefaultFilter 跳过路径中包含 /metrics 的请求
func DefaultFilter(c *gin.Context) bool {
	return !strings.Contains(c.Request.URL.Path, "/metrics")
}

// ExcludePaths 跳过包含任一片段的路径
func ExcludePaths(fragments ...string) Filter {
	return func(c *gin.Context) bool {
		for _, f := range fragments {
			if f != "" && strings.Contains(c.Request.URL.Path, f) {
				return false
			}
		}
		return true
	}
}

// Tracing 每个请求一个 SERVER span
type Tracing struct {
	tracer *tracex.Tracer
	cfg    TracingConfig
}

func NewTracing(tracer *tracex.Tracer, opts ...TracingOption) *Tracing {
	cfg := TracingConfig{
		Filter:          DefaultFilter,
		SpanNameHandler: DefaultSpanName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TextFormat == nil {
		cfg.TextFormat = tracer.Format()
	}
	return &Tracing{tracer: tracer, cfg: cfg}
}

// InstallTracing 创建并安装追踪中间件
func InstallTracing(p *Pipeline, tracer *tracex.Tracer, opts ...TracingOption) (*Tracing, error) {
	t := NewTracing(tracer, opts...)
	if err := p.Install(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (*Tracing) Name() string { return TracingName }

func (t *Tracing) Config() TracingConfig { return t.cfg }

func (t *Tracing) Install(p *Pipeline) error {
	if t.cfg.LoggingRequestBody && !p.Has(BodyReplayName) {
		return errorx.NewConfig(errorx.ErrBodyReplayRequired,
			errorx.WithComponent(errorx.ComponentMiddleware))
	}
	p.Use(t.intercept)
	p.SubscribeRouteMatched(func(c *gin.Context, r Route) {
		if _, ok := c.Get(RouteKey); !ok {
			c.Set(RouteKey, r)
		}
	})
	return nil
}

// statusWriter 记录 handler 显式设置的状态码，响应已写出后 gin 会忽略新的状态码，这里同样忽略
type statusWriter struct {
	gin.ResponseWriter
	explicit int
}

func (w *statusWriter) WriteHeader(code int) {
	if code > 0 && !w.ResponseWriter.Written() {
		w.explicit = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (t *Tracing) intercept(c *gin.Context) {
	if !t.cfg.Filter(c) {
		c.Next()
		return
	}

	req := c.Request
	remote, _ := tracex.ExtractHTTP(t.cfg.TextFormat, req.Header)
	route := resolveRoute(c)

	ctx, span := t.tracer.Start(req.Context(), t.cfg.SpanNameHandler(c, route),
		tracex.WithSpanKind(trace.SpanKindServer),
		tracex.WithRemoteParent(remote),
		tracex.WithSpanSampler(t.cfg.Sampler),
		tracex.WithRecordEvents(true),
	)
	c.Request = req.WithContext(ctx)
	span.AddMessageEvent(tracex.MessageEventSent, requestSize(req), time.Time{})

	w := &statusWriter{ResponseWriter: c.Writer}
	c.Writer = w

	completed := false
	defer func() {
		t.finish(c, span, w, completed)
	}()

	t.setRequestAttributes(c, span)
	c.Next()
	completed = true
}

func (t *Tracing) setRequestAttributes(c *gin.Context, span *tracex.Span) {
	req := c.Request
	span.SetAttribute(AttrHTTPHost, hostOnly(req.Host))
	span.SetAttribute(AttrHTTPMethod, req.Method)
	span.SetAttribute(AttrHTTPPath, strings.ReplaceAll(req.URL.Path, "//", "/"))
	ua := req.UserAgent()
	if ua == "" {
		ua = noAgent
	}
	span.SetAttribute(AttrHTTPUserAgent, ua)
	span.SetAttribute(AttrHTTPURL, req.URL.RequestURI())

	if t.cfg.LoggingRequestBody {
		if raw, ok := ReceivedBody(c); ok {
			span.SetAttribute(AttrHTTPRequestBody, string(raw))
		}
	}
	if h := t.cfg.RequestAttributeHandler; h != nil {
		h(c, span)
	}
}

func (t *Tracing) finish(c *gin.Context, span *tracex.Span, w *statusWriter, completed bool) {
	defer func() {
		span.End()
		logx.Debug(cctx.Detach(c.Request.Context()), logx.TagSpanEnd, "request span closed",
			logx.SpanName, span.Name(),
			logx.Cost, span.Duration().Milliseconds())
	}()

	// 已写出时以客户端实际收到的为准
	status := w.explicit
	if w.Written() || (status == 0 && completed) {
		status = w.Status()
	}
	span.SetHTTPStatus(status)
	span.SetAttribute(AttrHTTPStatusCode, status)

	if len(c.Errors) > 0 {
		span.AddAnnotation(AnnotationHandlerError, map[string]string{
			"count":  strconv.Itoa(len(c.Errors)),
			"errors": strings.Join(c.Errors.Errors(), "; "),
		})
	}

	span.AddMessageEvent(tracex.MessageEventReceived, responseSize(w), time.Time{})

	if h := t.cfg.ResponseAttributeHandler; h != nil {
		h(c, span)
	}
}

func contentLength(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// requestSize 取 Content-Length 头，头不存在时取 net/http 解析出的长度
func requestSize(req *http.Request) int64 {
	if n := contentLength(req.Header.Get("Content-Length")); n > 0 {
		return n
	}
	if req.ContentLength > 0 {
		return req.ContentLength
	}
	return 0
}

// responseSize 优先取 Content-Length 头，其次取实际写入的字节数，都没有时为 0
func responseSize(w gin.ResponseWriter) int64 {
	if n := contentLength(w.Header().Get("Content-Length")); n > 0 {
		return n
	}
	if n := w.Size(); n > 0 {
		return int64(n)
	}
	return 0
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
