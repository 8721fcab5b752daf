// Package xclientconf 提供基于配置文件的 HTTP 客户端装配。
//
// 把 xmw 各中间件的参数收敛到一份 YAML/JSON 配置里，
// 按固定顺序装配出中间件链，避免每个服务各写一遍组装代码：
//
//	logging → tracing → retry → breaker → ratelimit → cache → 传输单元
//
// 日志在最外层可观察完整耗时；重试在熔断外层，每次重试
// 单独计入熔断统计；缓存最靠内，命中时不消耗限流配额之外
// 的任何内层资源。
//
// # 使用示例
//
//	cfg, err := xclientconf.Parse(data, xclientconf.FormatYAML)
//	if err != nil { ... }
//	asm, err := cfg.Assemble(xclientconf.Deps{Redis: rdb})
//	if err != nil { ... }
//	defer asm.Close()
//	client := asm.NewClient(nil)
//
// # 设计决策
//
// 链的顺序由包固定而非配置指定。中间件之间存在顺序依赖
// （见上），把顺序交给配置会让错误组合在运行期才暴露。
// 配置只决定每个中间件是否启用及其参数。
package xclientconf
