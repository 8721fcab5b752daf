// Package xclient 提供 HTTP 客户端中间件组合引擎。
//
// xclient 在 *http.Client 之上封装一层可插拔的中间件管道，
// 让独立编写的中间件观察或改写每一个出站请求和入站响应，
// 同时保留熟悉的链式请求构建 API。具体中间件实现见 xmw 包。
//
// # 核心抽象
//
//   - Service：工作单元，接收请求与 Extensions，异步产出响应或错误
//   - Layer：装饰器，构造期包装一个 Service 产出新的 Service
//   - Initializer：请求初始化器，在请求物化前改写 RequestBuilder
//   - Extensions：按类型索引的请求级状态袋，供中间件之间传递类型化数据
//   - Identity：中性元素，作为组合的基例
//
// # 组合律
//
// 中间件链与初始化器链共用同一条序约定：先注册者在最外层。
// 对注册序列 L1, L2, ..., Ln，L1 最先看到出站请求、最后看到入站响应，
// Ln 紧贴终端传输单元。初始化器同理：先注册者先执行。
// 该约定对任意 N ≥ 0 成立，N = 0 时行为等同于直接调用底层传输。
//
// 设计决策: 组合链在 ClientBuilder.Build 时一次性构建而非每请求重建。
// Layer 的应用是构造期纯函数（不做 I/O、不会失败），产出的 Service
// 必须可被多个并发请求安全调用；中间件自身的共享可变状态
// （计数器、缓存、熔断器）由中间件自行同步。
//
// # Extensions
//
// 每个逻辑请求创建一个全新的 Extensions，归该请求的调用链独占，
// 请求结束即随调用链销毁，并发请求之间互不可见。
// 初始化器阶段写入的条目对后续所有中间件可见（同一实例，非拷贝）。
// 同一类型只占一个槽位，重复 Insert 覆盖旧值。
//
// # 错误分类
//
//   - BuildError：请求物化失败（非法头、编码失败、初始化器拒绝），
//     在任何中间件执行之前快速失败
//   - MiddlewareError：某个中间件产出的错误，向内短路所有剩余阶段
//   - TransportError：底层传输引擎的失败，向外穿过所有仍活跃的外层阶段
//
// 组合机制自身不会 panic，所有失败都通过返回值表达。
//
// # 使用方式
//
//	client := xclient.NewBuilder(&http.Client{}).
//	    With(xmw.NewLogging(nil)).
//	    With(xmw.NewRetry(xmw.WithAttempts(3))).
//	    WithInit(xmw.NewRequestID()).
//	    Build()
//
//	resp, err := client.Get("https://example.com/api").
//	    Header("Accept", "application/json").
//	    Send(ctx)
package xclient
