package xclient

import (
	"context"
	"net/http"
)

// Service 工作单元。
//
// 接收请求和本次请求独占的 Extensions，产出响应或错误。
// 实现可以在委托前后挂起（遵循 ctx 取消）、调用内层零次或多次
// （重试）、不调用内层直接返回（缓存、熔断短路）、
// 以及在委托前后读写 Extensions。
//
// 单个 Service 实例会被多个并发请求调用，实现持有的共享可变状态
// 必须自行同步；Extensions 归单次调用独占，无需同步。
type Service interface {
	Call(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error)
}

// ServiceFunc 函数式 Service 适配器。
type ServiceFunc func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error)

// Call 实现 Service 接口。
func (f ServiceFunc) Call(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
	return f(ctx, req, ext)
}

// Layer 装饰器。
//
// 构造期纯函数：Wrap 自身不做 I/O、不会失败，
// 所有行为决策都发生在产出的 Service 被调用时。
// 调用期需要的状态应在 Layer 构造时捕获，由产出的 Service 持有。
type Layer interface {
	Wrap(next Service) Service
}

// LayerFunc 函数式 Layer 适配器。
type LayerFunc func(next Service) Service

// Wrap 实现 Layer 接口。
func (f LayerFunc) Wrap(next Service) Service {
	return f(next)
}

// Identity 中性元素。
//
// 同时实现 Layer 与 Initializer：作为 Layer 原样返回被包装的
// Service，作为 Initializer 不做任何事。组合中的基例。
type Identity struct{}

var (
	_ Layer       = Identity{}
	_ Initializer = Identity{}
)

// Wrap 原样返回 next。
func (Identity) Wrap(next Service) Service { return next }

// Init 不做任何事。
func (Identity) Init(*RequestBuilder) {}
