package xmw

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// 以下是 sony/gobreaker/v2 的别名，调用方无需直接导入 gobreaker 包
type (
	// BreakerCounts 熔断统计计数
	BreakerCounts = gobreaker.Counts

	// BreakerState 熔断器状态
	BreakerState = gobreaker.State
)

// 熔断器状态常量
const (
	// StateClosed 关闭状态（正常）
	StateClosed = gobreaker.StateClosed

	// StateHalfOpen 半开状态（探测）
	StateHalfOpen = gobreaker.StateHalfOpen

	// StateOpen 打开状态（熔断）
	StateOpen = gobreaker.StateOpen
)

// 熔断器错误
var (
	// ErrOpenState 熔断器处于打开状态，请求被短路
	ErrOpenState = gobreaker.ErrOpenState

	// ErrTooManyRequests 半开状态下探测请求过多
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// errServerStatus 内部标记：5xx 响应计入熔断失败，但照常交付给调用方。
var errServerStatus = errors.New("xmw: server error status")

// breakerConfig 熔断中间件配置
type breakerConfig struct {
	name           string
	maxRequests    uint32
	interval       time.Duration
	timeout        time.Duration
	readyToTrip    func(counts BreakerCounts) bool
	countServer5xx bool
	onStateChange  func(name string, from, to BreakerState)
}

// BreakerOption 熔断中间件配置选项
type BreakerOption func(*breakerConfig)

// WithBreakerName 设置熔断器名称（日志与状态回调中使用）。
func WithBreakerName(name string) BreakerOption {
	return func(c *breakerConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithBreakerMaxRequests 设置半开状态允许通过的探测请求数。
func WithBreakerMaxRequests(n uint32) BreakerOption {
	return func(c *breakerConfig) {
		if n > 0 {
			c.maxRequests = n
		}
	}
}

// WithBreakerInterval 设置关闭状态下统计计数的清零周期。
func WithBreakerInterval(d time.Duration) BreakerOption {
	return func(c *breakerConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithBreakerTimeout 设置打开状态持续多久后进入半开。
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(c *breakerConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreakerReadyToTrip 自定义熔断判定。
// 默认连续失败 5 次后熔断。
func WithBreakerReadyToTrip(f func(counts BreakerCounts) bool) BreakerOption {
	return func(c *breakerConfig) {
		if f != nil {
			c.readyToTrip = f
		}
	}
}

// WithBreakerCount5xx 设置是否将 5xx 响应计入失败（默认计入）。
// 计入失败的 5xx 响应仍会照常交付给调用方。
func WithBreakerCount5xx(enabled bool) BreakerOption {
	return func(c *breakerConfig) {
		c.countServer5xx = enabled
	}
}

// WithBreakerOnStateChange 设置状态变更回调。
func WithBreakerOnStateChange(f func(name string, from, to BreakerState)) BreakerOption {
	return func(c *breakerConfig) {
		if f != nil {
			c.onStateChange = f
		}
	}
}

// NewBreaker 创建熔断中间件。
//
// 打开期间请求被直接短路（内层与传输单元零调用），
// 返回 ErrOpenState；半开超额返回 ErrTooManyRequests。
// 熔断器状态由 gobreaker 内部同步，可被并发请求安全共享。
func NewBreaker(opts ...BreakerOption) xclient.Layer {
	cfg := &breakerConfig{
		name:           "xhttpc",
		maxRequests:    1,
		timeout:        30 * time.Second,
		countServer5xx: true,
		readyToTrip: func(counts BreakerCounts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.name,
		MaxRequests: cfg.maxRequests,
		Interval:    cfg.interval,
		Timeout:     cfg.timeout,
		ReadyToTrip: cfg.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cfg.onStateChange != nil {
				cfg.onStateChange(name, from, to)
			}
		},
	})

	return xclient.LayerFunc(func(next xclient.Service) xclient.Service {
		return &breakerService{next: next, cb: cb, cfg: cfg}
	})
}

type breakerService struct {
	next xclient.Service
	cb   *gobreaker.CircuitBreaker[*http.Response]
	cfg  *breakerConfig
}

var _ xclient.Service = (*breakerService)(nil)

func (s *breakerService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	resp, err := s.cb.Execute(func() (*http.Response, error) {
		resp, err := s.next.Call(ctx, req, ext)
		if err != nil {
			return nil, err
		}
		if s.cfg.countServer5xx && resp.StatusCode >= http.StatusInternalServerError {
			// 计入失败，但响应仍交付调用方
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}
