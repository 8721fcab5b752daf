package xclientconf

import "errors"

// 装配错误
var (
	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("xclientconf: invalid config")

	// ErrRedisRequired 启用了限流但未提供 Redis 客户端
	ErrRedisRequired = errors.New("xclientconf: ratelimit enabled but no redis client provided")

	// ErrUnknownFormat 不支持的配置格式
	ErrUnknownFormat = errors.New("xclientconf: unknown config format")
)
