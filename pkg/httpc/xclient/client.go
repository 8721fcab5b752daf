package xclient

import (
	"context"
	"net/http"
)

// ClientBuilder 组装带中间件的客户端。
//
// With/WithInit 的注册顺序就是组合顺序：先注册者在最外层。
// Build 之后配置只读，产出的 Client 可被任意并发请求共享。
type ClientBuilder struct {
	engine *http.Client
	layers []Layer
	inits  []Initializer
}

// NewBuilder 基于底层传输引擎创建客户端构建器。
// engine 为 nil 时使用 http.DefaultClient。
func NewBuilder(engine *http.Client) *ClientBuilder {
	if engine == nil {
		engine = http.DefaultClient
	}
	return &ClientBuilder{engine: engine}
}

// With 追加中间件。先注册者在最外层。
func (b *ClientBuilder) With(layers ...Layer) *ClientBuilder {
	b.layers = append(b.layers, layers...)
	return b
}

// WithInit 追加请求初始化器。先注册者先执行。
func (b *ClientBuilder) WithInit(inits ...Initializer) *ClientBuilder {
	b.inits = append(b.inits, inits...)
	return b
}

// Build 产出客户端。
//
// 组合链在此处一次性折叠到终端传输单元上；
// Layer 应用是构造期纯函数，这里不会发生 I/O 也不会失败。
func (b *ClientBuilder) Build() *Client {
	inits := append([]Initializer(nil), b.inits...)
	layers := append([]Layer(nil), b.layers...)
	return &Client{
		engine: b.engine,
		inits:  inits,
		svc:    composeLayers(layers, newEngineService(b.engine)),
	}
}

// Client 带中间件管道的 HTTP 客户端。
//
// Build 之后不可变，可安全地被多个并发请求共享；
// 每个请求独占自己的 Extensions 与调用链。
type Client struct {
	engine *http.Client
	inits  []Initializer
	svc    Service
}

// From 不带任何中间件地包装一个传输引擎。
func From(engine *http.Client) *Client {
	return NewBuilder(engine).Build()
}

// Get 创建 GET 请求构建器。
func (c *Client) Get(target string) *RequestBuilder {
	return c.Request(http.MethodGet, target)
}

// Post 创建 POST 请求构建器。
func (c *Client) Post(target string) *RequestBuilder {
	return c.Request(http.MethodPost, target)
}

// Put 创建 PUT 请求构建器。
func (c *Client) Put(target string) *RequestBuilder {
	return c.Request(http.MethodPut, target)
}

// Patch 创建 PATCH 请求构建器。
func (c *Client) Patch(target string) *RequestBuilder {
	return c.Request(http.MethodPatch, target)
}

// Delete 创建 DELETE 请求构建器。
func (c *Client) Delete(target string) *RequestBuilder {
	return c.Request(http.MethodDelete, target)
}

// Head 创建 HEAD 请求构建器。
func (c *Client) Head(target string) *RequestBuilder {
	return c.Request(http.MethodHead, target)
}

// Request 创建请求构建器并立即执行初始化器链。
//
// 初始化器阶段与后续中间件链共享同一个 Extensions 实例，
// 此处写入的状态对该请求的每个后续阶段可见。
func (c *Client) Request(method, target string) *RequestBuilder {
	rb := newRequestBuilder(c, method, target)
	runInitializers(c.inits, rb)
	return rb
}

// Execute 以给定的 Extensions 直接执行中间件管道。
//
// 供已持有物化请求的高级调用方使用；不经过初始化器链
// （初始化器只作用于构建器阶段）。ext 为 nil 时自动创建。
func (c *Client) Execute(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ext == nil {
		ext = NewExtensions()
	}
	resp, err := c.svc.Call(ctx, req, ext)
	if err != nil {
		return nil, classifyPipelineError(err)
	}
	return resp, nil
}
