package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
	"github.com/imattdu/orbitrace/tracex"
)

// Do 发起请求：带重试、统计、业务错误解析、链路透传
// respBody：
//   - nil       ：调用方自己处理 resp.Body（需自行 Close）
//   - io.Writer ：把响应体复制到 writer
//   - *[]byte   ：填充原始字节
//   - 其他      ：按 JSON 进行 Unmarshal
func (c *Client) Do(ctx context.Context, reqCfg *Request, respBody any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// ---------- URL ----------
	u, err := c.buildURL(reqCfg.Path, reqCfg.Query)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrHTTPCall,
			errorx.WithComponent(errorx.ComponentHTTPClient),
			errorx.WithMessage("build url failed"))
	}

	// ---------- client span ----------
	var span *tracex.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "HTTP "+reqCfg.Method,
			tracex.WithSpanKind(trace.SpanKindClient),
			tracex.WithAttributes(
				tracex.String("http.method", reqCfg.Method),
				tracex.String("http.url", u),
			))
		defer span.End()
	}

	// ---------- per-request timeout ----------
	timeout := reqCfg.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// ---------- Body 预处理（为了支持重试） ----------
	var bodyBytes []byte
	var bodyReader io.Reader
	var bodyIsReader bool

	headers := cloneHeader(reqCfg.Headers)
	if headers == nil {
		headers = make(http.Header)
	}

	switch v := reqCfg.Body.(type) {
	case nil:
	case []byte:
		bodyBytes = cloneBytes(v)
	case io.Reader:
		bodyIsReader = true
		bodyReader = v
	default:
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(v); err != nil {
			return nil, errorx.Wrap(err, errorx.ErrHTTPCall,
				errorx.WithComponent(errorx.ComponentHTTPClient),
				errorx.WithMessage("encode body failed"))
		}
		bodyBytes = cloneBytes(buf.Bytes())
		if headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", "application/json")
		}
	}

	// 同一次调用的所有重试共用一个请求 ID
	requestID := headers.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		headers.Set(HeaderRequestID, requestID)
	}

	// ---------- 重试次数 ----------
	attempts := c.retryMaxAttempts
	if bodyIsReader {
		// io.Reader 不能重放，只能尝试一次
		attempts = 1
	}
	if attempts < 1 {
		attempts = 1
	}

	// ---------- 初始化统计 ----------
	stats := &CallStats{
		Method:      reqCfg.Method,
		URL:         u,
		Query:       reqCfg.Query.Encode(),
		RequestID:   requestID,
		MaxAttempts: attempts,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		stats.TraceID = sc.TraceID().String()
		stats.SpanID = sc.SpanID().String()
	}
	if bodyBytes != nil {
		stats.BodySize = len(bodyBytes)
		if len(bodyBytes) <= 1024 {
			stats.Body = string(bodyBytes)
		}
	}

	var lastResp *http.Response
	var lastErr error
	attempt := 0
	begin := time.Now()

	// ---------- 单次尝试，返回 error 表示需要重试 ----------
	do := func() error {
		attempt++
		// 每次重试重建 body reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		httpReq, err := http.NewRequestWithContext(ctx, reqCfg.Method, u, bodyReader)
		if err != nil {
			lastResp, lastErr = nil, err
			return retry.Unrecoverable(err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		tracex.InjectHTTP(c.format, tracex.SpanFromContext(ctx).SpanContext(), httpReq.Header)

		if stats.Path == "" && httpReq.URL != nil {
			stats.Path = httpReq.URL.Path
		}

		// before hook
		for _, h := range c.before {
			h(ctx, httpReq)
		}

		attemptStart := time.Now()
		resp, err := c.hc.Do(httpReq)
		elapsed := time.Since(attemptStart)

		// after hook
		for _, h := range c.after {
			h(ctx, httpReq, resp, err)
		}

		lastResp, lastErr = resp, err

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}

		// 是否需要重试
		willRetry := attempt < attempts && c.retryDecider(resp, err)

		// 记录单次尝试
		stats.AttemptsLog = append(stats.AttemptsLog, CallAttempt{
			Attempt:   attempt,
			Status:    statusCode,
			Err:       errString(err),
			Cost:      elapsed,
			WillRetry: willRetry,
		})

		if !willRetry {
			return nil
		}

		// 丢弃剩余 body，方便复用连接
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		return &retryableStatus{code: statusCode}
	}

	// 退避等待期间 ctx 取消时 retry-go 直接返回，此时上一次响应的 body 已经关闭
	if rerr := retry.New(c.retryOptions(retry.Context(ctx), attempts)...).Do(do); rerr != nil && lastErr == nil {
		lastResp = nil
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
		} else {
			lastErr = rerr
		}
	}

	// ---------- 填充最终统计 ----------
	stats.Cost = time.Since(begin)
	stats.Attempts = len(stats.AttemptsLog)
	if lastResp != nil {
		stats.Status = lastResp.StatusCode
	}
	stats.Err = errString(lastErr)

	if span != nil {
		span.SetInt("http.attempts", int64(stats.Attempts))
		span.SetString("http.request_id", requestID)
		if lastResp != nil {
			span.SetHTTPStatus(lastResp.StatusCode)
			span.SetInt("http.status_code", int64(lastResp.StatusCode))
		} else {
			span.SetStatus(statusFromError(lastErr))
		}
	}

	// 交给调用方打日志 / 上报
	if c.statsHook != nil {
		c.statsHook(ctx, stats)
	}

	// ---------- 整理返回 ----------
	if lastErr != nil || lastResp == nil {
		if lastErr == nil {
			lastErr = errors.New("no response")
		}
		return nil, errorx.Wrap(lastErr, errorx.ErrHTTPCall,
			errorx.WithComponent(errorx.ComponentHTTPClient),
			errorx.WithField(logx.URL, u),
			errorx.WithField(logx.Attempt, stats.Attempts))
	}
	resp := lastResp

	// 调用方自己处理 body
	if respBody == nil {
		return resp, nil
	}
	defer resp.Body.Close()

	// io.Writer：流式复制
	if w, ok := respBody.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return resp, err
	}

	// 读完
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}

	// 业务错误解析
	if c.bizErrDecoder != nil {
		if berr := c.bizErrDecoder(resp.StatusCode, data); berr != nil {
			return resp, berr
		}
	}

	// *[]byte：原始字节
	if p, ok := respBody.(*[]byte); ok {
		*p = data
		return resp, nil
	}

	// 默认 JSON
	if err := json.Unmarshal(data, respBody); err != nil {
		return resp, err
	}

	return resp, nil
}

func statusFromError(err error) tracex.StatusCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return tracex.StatusDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return tracex.StatusCancelled
	default:
		return tracex.StatusUnavailable
	}
}

// -------- 便捷方法 --------

func (c *Client) GetJSON(ctx context.Context, path string, out any, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodGet, Path: path}
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in any, out any, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodPost, Path: path}
	opts = append(opts, WithJSONBody(in))
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req, out)
}
