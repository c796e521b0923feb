package httpclient

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/imattdu/orbitrace/tracex"
)

// 构造 http.Transport
func buildTransport(cfg *Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: makeDialContext(
			cfg.DialTimeout,
			cfg.DialKeepAlive,
			cfg.ReadWriteTimeout,
		),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
	}
}

// instrumentedTransport 每次尝试在当前 span 上记一对 SENT / RECEIVED 事件，失败时记一条标注
type instrumentedTransport struct {
	base http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	span := tracex.SpanFromContext(req.Context())
	if span == nil {
		return t.base.RoundTrip(req)
	}

	span.AddMessageEvent(tracex.MessageEventSent, max(req.ContentLength, 0), time.Time{})
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.AddAnnotation("http.attempt_failed", map[string]string{"error": err.Error()})
		return resp, err
	}
	span.AddMessageEvent(tracex.MessageEventReceived, max(resp.ContentLength, 0), time.Time{})
	if resp.StatusCode >= 500 {
		span.AddAnnotation("http.attempt_failed", map[string]string{"status": strconv.Itoa(resp.StatusCode)})
	}
	return resp, nil
}

// timeoutConn 在每次 Read/Write 前设置 deadline，控制每次读写超时
type timeoutConn struct {
	net.Conn
	rw time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.rw > 0 {
		_ = c.SetReadDeadline(time.Now().Add(c.rw))
	}
	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.rw > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(c.rw))
	}
	return c.Conn.Write(b)
}

// 包装 DialContext，增加读写超时
func makeDialContext(dial, keepAlive, rw time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: dial, KeepAlive: keepAlive}
	if rw <= 0 {
		return d.DialContext
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &timeoutConn{Conn: conn, rw: rw}, nil
	}
}
