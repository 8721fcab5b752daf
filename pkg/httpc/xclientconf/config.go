package xclientconf

import (
	"fmt"
	"log/slog"
	"time"
)

// RateLimitMode 限流超限行为
type RateLimitMode string

const (
	// ModeReject 超限直接拒绝
	ModeReject RateLimitMode = "reject"

	// ModeWait 超限后等待配额释放
	ModeWait RateLimitMode = "wait"
)

// IsValid 检查限流模式是否有效
func (m RateLimitMode) IsValid() bool {
	switch m {
	case ModeReject, ModeWait, "":
		return true
	default:
		return false
	}
}

// Config HTTP 客户端装配配置
type Config struct {
	// Timeout 默认的单请求超时，0 表示不限制。
	// 调用方在单个请求上显式设置的超时优先。
	Timeout time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`

	// RequestID 请求 ID 初始化器
	RequestID RequestIDConfig `json:"request_id" yaml:"request_id" koanf:"request_id"`

	// Logging 请求日志中间件
	Logging LoggingConfig `json:"logging" yaml:"logging" koanf:"logging"`

	// Tracing OpenTelemetry 追踪中间件
	Tracing TracingConfig `json:"tracing" yaml:"tracing" koanf:"tracing"`

	// Retry 重试中间件
	Retry RetryConfig `json:"retry" yaml:"retry" koanf:"retry"`

	// Breaker 熔断中间件
	Breaker BreakerConfig `json:"breaker" yaml:"breaker" koanf:"breaker"`

	// RateLimit 分布式限流中间件（需要 Redis）
	RateLimit RateLimitConfig `json:"ratelimit" yaml:"ratelimit" koanf:"ratelimit"`

	// Cache GET 响应缓存中间件
	Cache CacheConfig `json:"cache" yaml:"cache" koanf:"cache"`
}

// RequestIDConfig 请求 ID 初始化器配置
type RequestIDConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// Header 透传头名称，空值使用 X-Request-ID
	Header string `json:"header" yaml:"header" koanf:"header"`
}

// LoggingConfig 请求日志中间件配置
type LoggingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// LogStart 是否在请求发出前记录一条 Debug 日志
	LogStart bool `json:"log_start" yaml:"log_start" koanf:"log_start"`

	// SuccessLevel 成功请求的日志级别：debug/info/warn/error，空值为 info
	SuccessLevel string `json:"success_level" yaml:"success_level" koanf:"success_level"`
}

// TracingConfig 追踪中间件配置
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`
}

// RetryConfig 重试中间件配置
type RetryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// Attempts 总尝试次数（含首次）
	Attempts int `json:"attempts" yaml:"attempts" koanf:"attempts"`

	// Delay 首次重试等待
	Delay time.Duration `json:"delay" yaml:"delay" koanf:"delay"`

	// MaxDelay 退避等待上限
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" koanf:"max_delay"`

	// RetryStatuses 视为可重试的响应状态码
	RetryStatuses []int `json:"retry_statuses" yaml:"retry_statuses" koanf:"retry_statuses"`
}

// BreakerConfig 熔断中间件配置
type BreakerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// Name 熔断器名称
	Name string `json:"name" yaml:"name" koanf:"name"`

	// MaxRequests 半开状态允许通过的探测请求数
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" koanf:"max_requests"`

	// Interval 关闭状态下统计计数的清零周期
	Interval time.Duration `json:"interval" yaml:"interval" koanf:"interval"`

	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`

	// ConsecutiveFailures 连续失败多少次后熔断
	ConsecutiveFailures uint32 `json:"consecutive_failures" yaml:"consecutive_failures" koanf:"consecutive_failures"`

	// Count5xx 是否将 5xx 响应计入失败
	Count5xx bool `json:"count_5xx" yaml:"count_5xx" koanf:"count_5xx"`
}

// RateLimitConfig 限流中间件配置
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// Rate 每个周期允许的请求数
	Rate int `json:"rate" yaml:"rate" koanf:"rate"`

	// Burst 突发容量，0 表示与 Rate 相同
	Burst int `json:"burst" yaml:"burst" koanf:"burst"`

	// Period 限流周期
	Period time.Duration `json:"period" yaml:"period" koanf:"period"`

	// Mode 超限行为：reject/wait，空值为 reject
	Mode RateLimitMode `json:"mode" yaml:"mode" koanf:"mode"`

	// Prefix Redis 键前缀
	Prefix string `json:"prefix" yaml:"prefix" koanf:"prefix"`

	// FailOpen Redis 故障时是否放行
	FailOpen bool `json:"fail_open" yaml:"fail_open" koanf:"fail_open"`
}

// CacheConfig 响应缓存中间件配置
type CacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`

	// TTL 条目存活时间
	TTL time.Duration `json:"ttl" yaml:"ttl" koanf:"ttl"`

	// MaxCost 缓存总容量（字节）
	MaxCost int64 `json:"max_cost" yaml:"max_cost" koanf:"max_cost"`

	// MaxBody 可缓存的响应体上限（字节）
	MaxBody int64 `json:"max_body" yaml:"max_body" koanf:"max_body"`
}

// DefaultConfig 返回默认配置。
// 所有中间件默认关闭，各节参数为其对应中间件的默认值。
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    100 * time.Millisecond,
			MaxDelay: 2 * time.Second,
		},
		Breaker: BreakerConfig{
			Name:                "xhttpc",
			MaxRequests:         1,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			Count5xx:            true,
		},
		RateLimit: RateLimitConfig{
			Mode:     ModeReject,
			FailOpen: true,
		},
		Cache: CacheConfig{
			TTL:     time.Minute,
			MaxCost: 64 * 1024 * 1024,
			MaxBody: 1 * 1024 * 1024,
		},
	}
}

// Validate 验证配置是否有效
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if c.Logging.Enabled {
		if _, err := parseLevel(c.Logging.SuccessLevel); err != nil {
			return err
		}
	}
	if c.Retry.Enabled {
		if c.Retry.Attempts <= 0 {
			return fmt.Errorf("%w: retry.attempts must be positive", ErrInvalidConfig)
		}
		for _, status := range c.Retry.RetryStatuses {
			if status < 100 || status > 599 {
				return fmt.Errorf("%w: retry.retry_statuses contains invalid status %d", ErrInvalidConfig, status)
			}
		}
	}
	if c.Breaker.Enabled && c.Breaker.ConsecutiveFailures == 0 {
		return fmt.Errorf("%w: breaker.consecutive_failures must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("%w: ratelimit.rate must be positive", ErrInvalidConfig)
		}
		if c.RateLimit.Period <= 0 {
			return fmt.Errorf("%w: ratelimit.period must be positive", ErrInvalidConfig)
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("%w: ratelimit.burst cannot be negative", ErrInvalidConfig)
		}
		if !c.RateLimit.Mode.IsValid() {
			return fmt.Errorf("%w: invalid ratelimit.mode %q", ErrInvalidConfig, c.RateLimit.Mode)
		}
	}
	if c.Cache.Enabled {
		if c.Cache.TTL < 0 {
			return fmt.Errorf("%w: cache.ttl cannot be negative", ErrInvalidConfig)
		}
		if c.Cache.MaxCost < 0 || c.Cache.MaxBody < 0 {
			return fmt.Errorf("%w: cache sizes cannot be negative", ErrInvalidConfig)
		}
	}
	return nil
}

// parseLevel 解析日志级别字符串，空值为 Info。
func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}
