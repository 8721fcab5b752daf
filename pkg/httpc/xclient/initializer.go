package xclient

// Initializer 请求初始化器。
//
// 在请求物化之前同步执行，改写 RequestBuilder 并可向 Extensions
// 写入后续中间件依赖的条目（默认头、请求 ID 等）。不得做网络 I/O。
//
// 初始化器阶段使用的 Extensions 与后续中间件链是同一实例，
// 此处写入的状态对该请求的每个后续阶段可见。
//
// 失败通过 RequestBuilder 的错误累积机制记录（first-error-wins），
// 在 Build/Send 时以 BuildError 快速失败——
// 构建失败的请求不会触发任何中间件。
type Initializer interface {
	Init(rb *RequestBuilder)
}

// InitializerFunc 函数式 Initializer 适配器。
type InitializerFunc func(rb *RequestBuilder)

// Init 实现 Initializer 接口。
func (f InitializerFunc) Init(rb *RequestBuilder) {
	f(rb)
}
