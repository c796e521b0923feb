package httpclient

import (
	"fmt"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// RetryDecider 决定某次响应是否需要重试
type RetryDecider func(resp *http.Response, err error) bool

// BackoffFunc 返回第 attempt 次重试前需要 sleep 的时间，attempt 从 0 开始
type BackoffFunc func(attempt int) time.Duration

// 默认重试策略：网络错误 + 5xx
func defaultRetryDecider(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp != nil && resp.StatusCode >= 500 {
		return true
	}
	return false
}

// 默认指数退避：100ms, 200ms, 400ms, ... 最大 2s
func defaultBackoff(attempt int) time.Duration {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	return d
}

// retryableStatus 需要重试的响应，交给 retry-go 继续下一次尝试
type retryableStatus struct {
	code int
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// retryOptions 把 Client 的重试配置转换成 retry-go 选项
func (c *Client) retryOptions(ctxOpt retry.Option, attempts int) []retry.Option {
	return []retry.Option{
		ctxOpt,
		retry.Attempts(uint(attempts)),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			// retry-go 的 n 从 1 开始
			return c.backoff(max(int(n)-1, 0))
		}),
		retry.LastErrorOnly(true),
	}
}
