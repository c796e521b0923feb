package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbitrace/logx"
)

const AccessLogName = "access-log"

type responseWriter struct {
	body *bytes.Buffer
	gin.ResponseWriter
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// AccessLog 访问日志：request_in / request_out 两条，带 trace_id。
// 安装在 Tracing 之后才能拿到当前 span；安装了 BodyReplay 时额外记录请求体。
type AccessLog struct {
	logger      logx.Logger
	logBody     bool
	logResponse bool
}

type AccessLogOption func(*AccessLog)

// WithAccessLogger 使用独立 logger，默认走全局 logx
func WithAccessLogger(l logx.Logger) AccessLogOption {
	return func(a *AccessLog) { a.logger = l }
}

// WithResponseBody 是否记录响应体
func WithResponseBody(b bool) AccessLogOption {
	return func(a *AccessLog) { a.logResponse = b }
}

func NewAccessLog(opts ...AccessLogOption) *AccessLog {
	a := &AccessLog{logResponse: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (*AccessLog) Name() string { return AccessLogName }

func (a *AccessLog) Install(p *Pipeline) error {
	a.logBody = p.Has(BodyReplayName)
	p.Use(a.handle)
	return nil
}

func (a *AccessLog) handle(ctx *gin.Context) {
	req := ctx.Request
	c := req.Context()
	logMap := map[string]interface{}{
		logx.Remote: req.RemoteAddr,
		logx.Method: req.Method,
		logx.Path:   req.URL.Path,
		logx.Query:  req.URL.RawQuery,
	}
	if fp := ctx.FullPath(); fp != "" {
		logMap[logx.Route] = fp
	}
	if a.logBody {
		if raw, ok := ReceivedBody(ctx); ok && len(raw) > 0 {
			var reqBody interface{}
			if err := json.Unmarshal(raw, &reqBody); err != nil {
				reqBody = string(raw)
			}
			logMap[logx.Body] = reqBody
		}
	}
	a.info(c, logx.TagRequestIn, logMap)

	// 捕捉响应
	var writer *responseWriter
	if a.logResponse {
		writer = &responseWriter{body: bytes.NewBufferString(""), ResponseWriter: ctx.Writer}
		ctx.Writer = writer
	}
	start := time.Now()
	ctx.Next()

	if writer != nil {
		logMap[logx.Response] = writer.body.String()
	}
	logMap[logx.Status] = ctx.Writer.Status()
	logMap[logx.Cost] = time.Since(start).Milliseconds()
	a.info(c, logx.TagRequestOut, logMap)
}

// info 日志异步编码，传入副本避免后续修改 logMap 产生竞争
func (a *AccessLog) info(ctx context.Context, tag string, m map[string]interface{}) {
	if a.logger != nil {
		a.logger.Info(ctx, tag, maps.Clone(m))
		return
	}
	logx.Info(ctx, tag, maps.Clone(m))
}
