package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
)

const (
	BodyReplayName = "body-replay"

	// BodyKey gin.Context 中缓存的请求体
	BodyKey = "orbitrace.body"
)

// BodyReplay 把请求体读入内存并重置 Body，之后的中间件和 handler 都能再读一遍
type BodyReplay struct{}

func NewBodyReplay() *BodyReplay { return &BodyReplay{} }

func (*BodyReplay) Name() string { return BodyReplayName }

func (b *BodyReplay) Install(p *Pipeline) error {
	p.Use(b.handle)
	return nil
}

func (b *BodyReplay) handle(c *gin.Context) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		c.Set(BodyKey, []byte{})
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		logx.Warn(c.Request.Context(), logx.TagUndef,
			errorx.Wrap(err, errorx.ErrDefault,
				errorx.WithComponent(errorx.ComponentMiddleware),
				errorx.WithMessage("GetRawData failed")),
			logx.Path, c.Request.URL.Path)
		return
	}

	// 重置HTTP请求体的偏移量
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	c.Set(BodyKey, raw)
}

// ReceivedBody 返回缓存的请求体，未安装 BodyReplay 时返回 false
func ReceivedBody(c *gin.Context) ([]byte, bool) {
	v, ok := c.Get(BodyKey)
	if !ok {
		return nil, false
	}
	raw, ok := v.([]byte)
	return raw, ok
}

// RewindBody 用缓存重新设置 Request.Body
func RewindBody(c *gin.Context) bool {
	raw, ok := ReceivedBody(c)
	if !ok {
		return false
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	return true
}
