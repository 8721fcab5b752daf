package xmw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// 以下是 go-redis/redis_rate/v10 的别名，调用方无需直接导入 redis_rate 包
type (
	// Limit 限流配置（速率、突发、周期）
	Limit = redis_rate.Limit
)

var (
	// PerSecond 每秒 n 次
	PerSecond = redis_rate.PerSecond

	// PerMinute 每分钟 n 次
	PerMinute = redis_rate.PerMinute

	// PerHour 每小时 n 次
	PerHour = redis_rate.PerHour
)

// ErrNilRedis 创建限流中间件时未提供 Redis 客户端
var ErrNilRedis = errors.New("xmw: nil redis client")

// RateLimitError 请求被限流拒绝。
type RateLimitError struct {
	// RetryAfter 建议的重试等待时间
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("xmw: rate limited (retry after %s)", e.RetryAfter)
}

// IsRateLimited 判断错误链中是否含 RateLimitError。
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// RateLimitMode 限流触发后的行为
type RateLimitMode int

const (
	// RateLimitReject 超限直接返回 RateLimitError
	RateLimitReject RateLimitMode = iota

	// RateLimitWait 超限后等待配额释放再发出（遵循 ctx 取消）
	RateLimitWait
)

// rateLimitConfig 限流中间件配置
type rateLimitConfig struct {
	mode     RateLimitMode
	keyFunc  func(req *http.Request) string
	prefix   string
	failOpen bool
	logger   *slog.Logger
}

// RateLimitOption 限流中间件配置选项
type RateLimitOption func(*rateLimitConfig)

// WithRateLimitMode 设置超限行为（默认 RateLimitReject）。
func WithRateLimitMode(mode RateLimitMode) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.mode = mode
	}
}

// WithRateLimitKeyFunc 自定义限流键（默认按目标主机）。
func WithRateLimitKeyFunc(f func(req *http.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) {
		if f != nil {
			c.keyFunc = f
		}
	}
}

// WithRateLimitPrefix 设置 Redis 键前缀（默认 "xhttpc:ratelimit:"）。
func WithRateLimitPrefix(prefix string) RateLimitOption {
	return func(c *rateLimitConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRateLimitFailOpen 设置 Redis 故障时是否放行（默认放行）。
// 关闭后 Redis 故障会使请求以 MiddlewareError 失败。
func WithRateLimitFailOpen(enabled bool) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.failOpen = enabled
	}
}

// WithRateLimitLogger 设置日志器（默认 slog.Default()）。
func WithRateLimitLogger(logger *slog.Logger) RateLimitOption {
	return func(c *rateLimitConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRateLimit 创建客户端限流中间件。
//
// 基于 redis_rate 的 GCRA 算法，限流状态存于 Redis，
// 同一限流键在多实例之间共享配额。默认按目标主机限流。
//
// rdb 为 nil 时 Layer 仍然合法（构造期不失败），
// 产出的 Service 对每次调用返回 ErrNilRedis。
func NewRateLimit(rdb redis.UniversalClient, limit Limit, opts ...RateLimitOption) xclient.Layer {
	cfg := &rateLimitConfig{
		mode:     RateLimitReject,
		prefix:   "xhttpc:ratelimit:",
		failOpen: true,
		keyFunc: func(req *http.Request) string {
			return req.URL.Host
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var limiter *redis_rate.Limiter
	if rdb != nil {
		limiter = redis_rate.NewLimiter(rdb)
	}

	return xclient.LayerFunc(func(next xclient.Service) xclient.Service {
		return &rateLimitService{next: next, limiter: limiter, limit: limit, cfg: cfg}
	})
}

type rateLimitService struct {
	next    xclient.Service
	limiter *redis_rate.Limiter
	limit   Limit
	cfg     *rateLimitConfig
}

var _ xclient.Service = (*rateLimitService)(nil)

func (s *rateLimitService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	if s.limiter == nil {
		return nil, ErrNilRedis
	}

	key := s.cfg.prefix + s.cfg.keyFunc(req)
	for {
		res, err := s.limiter.Allow(ctx, key, s.limit)
		if err != nil {
			if s.cfg.failOpen {
				s.logger().LogAttrs(ctx, slog.LevelWarn, "xmw: rate limiter unavailable, failing open",
					slog.String("key", key), slog.Any("error", err))
				break
			}
			return nil, fmt.Errorf("xmw: rate limiter: %w", err)
		}
		if res.Allowed > 0 {
			break
		}

		if s.cfg.mode == RateLimitReject {
			return nil, &RateLimitError{RetryAfter: res.RetryAfter}
		}

		// 等待模式：按限流器建议的时间挂起后再试，挂起遵循 ctx 取消
		timer := time.NewTimer(res.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return s.next.Call(ctx, req, ext)
}

func (s *rateLimitService) logger() *slog.Logger {
	if s.cfg.logger != nil {
		return s.cfg.logger
	}
	return slog.Default()
}
