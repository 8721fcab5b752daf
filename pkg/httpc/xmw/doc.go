// Package xmw 提供开箱即用的 xclient 中间件与初始化器。
//
// 组合机制见 xclient 包；本包只提供具体行为：
//
//   - NewRetry：重试（底层 [avast/retry-go/v5]），重放缓冲请求体，
//     流式请求体自动退化为只发一次
//   - NewBreaker：熔断（底层 [sony/gobreaker/v2]），打开期间短路内层
//   - NewRateLimit：客户端限流（底层 [go-redis/redis_rate/v10]），
//     支持拒绝与等待两种模式
//   - NewCache：GET 响应缓存（底层 [dgraph-io/ristretto/v2]），
//     命中时不触网直接合成响应
//   - NewLogging：结构化请求日志（log/slog）
//   - NewTracing：OpenTelemetry 客户端 span 与 traceparent 注入
//   - NewRequestID / NewDefaultHeaders：请求初始化器
//
// # 推荐组合顺序
//
// 先注册者在最外层。通常日志/追踪放最外层（观察全程，包括重试的
// 每次等待），重试在熔断之外（熔断打开的快速失败可被重试观察），
// 限流与缓存靠近传输单元：
//
//	client := xclient.NewBuilder(engine).
//	    With(xmw.NewLogging(nil)).
//	    With(xmw.NewTracing()).
//	    With(xmw.NewRetry()).
//	    With(xmw.NewBreaker()).
//	    With(cacheLayer).
//	    WithInit(xmw.NewRequestID()).
//	    Build()
//
// 各中间件的共享状态（熔断器计数、缓存存储、限流桶）由中间件自行
// 同步，可被任意并发请求安全共享。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
// [go-redis/redis_rate/v10]: https://github.com/go-redis/redis_rate
// [dgraph-io/ristretto/v2]: https://github.com/dgraph-io/ristretto
package xmw
