package xclientconf

import (
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
	"github.com/omeyang/xhttpc/pkg/httpc/xmw"
)

// Deps 装配所需的外部依赖
type Deps struct {
	// Logger 日志中间件使用的日志器，nil 使用 slog.Default()
	Logger *slog.Logger

	// Redis 限流中间件使用的 Redis 客户端。
	// 启用限流但未提供时 Assemble 返回 ErrRedisRequired。
	Redis redis.UniversalClient
}

// Assembly 按配置装配出的中间件链与初始化器。
type Assembly struct {
	// Layers 中间件，按固定顺序排列（首个最外层）
	Layers []xclient.Layer

	// Initializers 请求初始化器，按注册顺序执行
	Initializers []xclient.Initializer

	cache *xmw.Cache
}

// Assemble 按配置装配中间件链。
//
// 返回的 Assembly 持有缓存等有生命周期的资源，
// 客户端废弃后调用 Close 释放。
func (c Config) Assemble(deps Deps) (*Assembly, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	asm := &Assembly{}

	if c.RequestID.Enabled {
		var opts []xmw.RequestIDOption
		if c.RequestID.Header != "" {
			opts = append(opts, xmw.WithRequestIDHeader(c.RequestID.Header))
		}
		asm.Initializers = append(asm.Initializers, xmw.NewRequestID(opts...))
	}
	if c.Timeout > 0 {
		timeout := c.Timeout
		asm.Initializers = append(asm.Initializers, xclient.InitializerFunc(func(rb *xclient.RequestBuilder) {
			rb.Timeout(timeout)
		}))
	}

	if c.Logging.Enabled {
		level, err := parseLevel(c.Logging.SuccessLevel)
		if err != nil {
			return nil, err
		}
		asm.Layers = append(asm.Layers, xmw.NewLogging(deps.Logger,
			xmw.WithLogStart(c.Logging.LogStart),
			xmw.WithLogSuccessLevel(level),
		))
	}

	if c.Tracing.Enabled {
		asm.Layers = append(asm.Layers, xmw.NewTracing())
	}

	if c.Retry.Enabled {
		opts := []xmw.RetryOption{
			xmw.WithAttempts(c.Retry.Attempts),
			xmw.WithRetryDelay(c.Retry.Delay),
			xmw.WithRetryMaxDelay(c.Retry.MaxDelay),
		}
		if len(c.Retry.RetryStatuses) > 0 {
			opts = append(opts, xmw.RetryOnStatus(c.Retry.RetryStatuses...))
		}
		asm.Layers = append(asm.Layers, xmw.NewRetry(opts...))
	}

	if c.Breaker.Enabled {
		threshold := c.Breaker.ConsecutiveFailures
		asm.Layers = append(asm.Layers, xmw.NewBreaker(
			xmw.WithBreakerName(c.Breaker.Name),
			xmw.WithBreakerMaxRequests(c.Breaker.MaxRequests),
			xmw.WithBreakerInterval(c.Breaker.Interval),
			xmw.WithBreakerTimeout(c.Breaker.Timeout),
			xmw.WithBreakerCount5xx(c.Breaker.Count5xx),
			xmw.WithBreakerReadyToTrip(func(counts xmw.BreakerCounts) bool {
				return counts.ConsecutiveFailures >= threshold
			}),
		))
	}

	if c.RateLimit.Enabled {
		if deps.Redis == nil {
			return nil, ErrRedisRequired
		}
		burst := c.RateLimit.Burst
		if burst == 0 {
			burst = c.RateLimit.Rate
		}
		limit := xmw.Limit{
			Rate:   c.RateLimit.Rate,
			Burst:  burst,
			Period: c.RateLimit.Period,
		}
		opts := []xmw.RateLimitOption{
			xmw.WithRateLimitFailOpen(c.RateLimit.FailOpen),
			xmw.WithRateLimitPrefix(c.RateLimit.Prefix),
		}
		if c.RateLimit.Mode == ModeWait {
			opts = append(opts, xmw.WithRateLimitMode(xmw.RateLimitWait))
		}
		if deps.Logger != nil {
			opts = append(opts, xmw.WithRateLimitLogger(deps.Logger))
		}
		asm.Layers = append(asm.Layers, xmw.NewRateLimit(deps.Redis, limit, opts...))
	}

	if c.Cache.Enabled {
		cache, err := xmw.NewCache(
			xmw.WithCacheTTL(c.Cache.TTL),
			xmw.WithCacheMaxCost(c.Cache.MaxCost),
			xmw.WithCacheMaxBody(c.Cache.MaxBody),
		)
		if err != nil {
			return nil, err
		}
		asm.cache = cache
		asm.Layers = append(asm.Layers, cache)
	}

	return asm, nil
}

// NewClient 用装配结果构建客户端。
// engine 为 nil 时使用 http.DefaultClient。
func (a *Assembly) NewClient(engine *http.Client) *xclient.Client {
	b := xclient.NewBuilder(engine)
	for _, layer := range a.Layers {
		b = b.With(layer)
	}
	for _, init := range a.Initializers {
		b = b.WithInit(init)
	}
	return b.Build()
}

// Cache 返回装配出的响应缓存（未启用时为 nil）。
// 测试中可用其 Wait 等待异步写入完成。
func (a *Assembly) Cache() *xmw.Cache {
	return a.cache
}

// Close 释放装配持有的资源。可安全地多次调用。
func (a *Assembly) Close() {
	if a.cache != nil {
		a.cache.Close()
		a.cache = nil
	}
}
