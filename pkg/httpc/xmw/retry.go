package xmw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// StatusError 按状态码触发的可重试失败。
// 重试预算耗尽后会作为最终错误向外传播，Code 保留末次状态码。
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xmw: retryable status %d", e.Code)
}

// retryConfig 重试中间件配置
type retryConfig struct {
	attempts      uint
	delay         time.Duration
	maxDelay      time.Duration
	retryStatuses map[int]struct{}
	retryIf       func(err error) bool
	onRetry       func(attempt int, err error)
}

// RetryOption 重试中间件配置选项
type RetryOption func(*retryConfig)

// WithAttempts 设置总尝试次数（包含首次）。n <= 0 被忽略。
func WithAttempts(n int) RetryOption {
	return func(c *retryConfig) {
		if n > 0 {
			c.attempts = uint(n)
		}
	}
}

// WithRetryDelay 设置基础重试间隔。
func WithRetryDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithRetryMaxDelay 设置指数退避的间隔上限。
func WithRetryMaxDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// RetryOnStatus 将指定状态码视为可重试失败。
// 命中时响应体会被排空关闭后重发；预算耗尽返回 *StatusError。
func RetryOnStatus(codes ...int) RetryOption {
	return func(c *retryConfig) {
		for _, code := range codes {
			c.retryStatuses[code] = struct{}{}
		}
	}
}

// WithRetryIf 自定义错误级重试判断，覆盖默认的
// "仅重试 TransportError" 行为。BuildError 永远不会到达这里。
func WithRetryIf(f func(err error) bool) RetryOption {
	return func(c *retryConfig) {
		if f != nil {
			c.retryIf = f
		}
	}
}

// WithOnRetry 设置每次重试前的回调（attempt 从 1 开始）。
func WithOnRetry(f func(attempt int, err error)) RetryOption {
	return func(c *retryConfig) {
		if f != nil {
			c.onRetry = f
		}
	}
}

// NewRetry 创建重试中间件。
//
// 默认最多 3 次尝试、100ms 起步的指数退避、只对 TransportError
// 重试。请求体经 GetBody 在每次尝试前重放；不可重放的流式请求体
// 自动退化为单次发送（与 TryClone 的不可克隆语义一致）。
func NewRetry(opts ...RetryOption) xclient.Layer {
	cfg := &retryConfig{
		attempts:      3,
		delay:         100 * time.Millisecond,
		maxDelay:      2 * time.Second,
		retryStatuses: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return xclient.LayerFunc(func(next xclient.Service) xclient.Service {
		return &retryService{next: next, cfg: cfg}
	})
}

type retryService struct {
	next xclient.Service
	cfg  *retryConfig
}

var _ xclient.Service = (*retryService)(nil)

func (s *retryService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	// 流式请求体无法重放，退化为单次发送
	if req.Body != nil && req.GetBody == nil {
		return s.next.Call(ctx, req, ext)
	}

	first := true
	return retry.NewWithData[*http.Response](
		retry.Context(ctx),
		retry.Attempts(s.cfg.attempts),
		retry.Delay(s.cfg.delay),
		retry.MaxDelay(s.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(s.shouldRetry),
		retry.OnRetry(func(n uint, err error) {
			if s.cfg.onRetry != nil {
				s.cfg.onRetry(int(n)+1, err)
			}
		}),
	).Do(func() (*http.Response, error) {
		attemptReq := req
		if !first {
			rewound, err := rewindRequest(ctx, req)
			if err != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("xmw: rewind request body: %w", err))
			}
			attemptReq = rewound
		}
		first = false

		resp, err := s.next.Call(ctx, attemptReq, ext)
		if err != nil {
			return nil, err
		}
		if _, ok := s.cfg.retryStatuses[resp.StatusCode]; ok {
			drainBody(resp)
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return resp, nil
	})
}

// shouldRetry 错误级重试判断。
// 默认策略：状态码触发的 StatusError 与传输失败可重试，
// 其余中间件错误不可重试（内层熔断打开这类失败重试也不会变好）。
func (s *retryService) shouldRetry(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if xclient.IsBuildError(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return true
	}
	if s.cfg.retryIf != nil {
		return s.cfg.retryIf(err)
	}
	return xclient.IsTransportError(err)
}

// rewindRequest 基于 GetBody 产出可再次发送的请求副本。
func rewindRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// drainBody 排空并关闭响应体，让连接可以复用。
func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
