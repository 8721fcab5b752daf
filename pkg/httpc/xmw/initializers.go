package xmw

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// HeaderRequestID 请求 ID 透传头
const HeaderRequestID = "X-Request-ID"

// RequestID 请求 ID 初始化器写入 Extensions 的条目。
// 后续中间件（日志、追踪）可读取并关联到同一请求。
type RequestID struct {
	Value string
}

// requestIDConfig 请求 ID 初始化器配置
type requestIDConfig struct {
	header string
	newID  func() string
}

// RequestIDOption 请求 ID 初始化器配置选项
type RequestIDOption func(*requestIDConfig)

// WithRequestIDHeader 自定义透传头名称（默认 X-Request-ID）。
func WithRequestIDHeader(header string) RequestIDOption {
	return func(c *requestIDConfig) {
		if header != "" {
			c.header = header
		}
	}
}

// WithRequestIDGenerator 自定义 ID 生成函数（默认 uuid.NewString）。
func WithRequestIDGenerator(f func() string) RequestIDOption {
	return func(c *requestIDConfig) {
		if f != nil {
			c.newID = f
		}
	}
}

// NewRequestID 创建请求 ID 初始化器。
//
// 调用方已显式设置透传头时沿用其值，否则生成新 ID 并写入；
// 两种情况下都会向 Extensions 写入 RequestID 条目，
// 保证初始化阶段的状态对每个后续中间件可见。
func NewRequestID(opts ...RequestIDOption) xclient.Initializer {
	cfg := &requestIDConfig{
		header: HeaderRequestID,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return xclient.InitializerFunc(func(rb *xclient.RequestBuilder) {
		id := rb.HeaderValue(cfg.header)
		if id == "" {
			id = cfg.newID()
			rb.Header(cfg.header, id)
		}
		rb.Extensions().Insert(RequestID{Value: id})
	})
}

// NewDefaultHeaders 创建默认头初始化器。
// 只补齐缺失的头，绝不覆盖调用方的显式设置。
func NewDefaultHeaders(defaults http.Header) xclient.Initializer {
	cloned := defaults.Clone()
	return xclient.InitializerFunc(func(rb *xclient.RequestBuilder) {
		for key, values := range cloned {
			if len(values) > 0 {
				rb.HeaderIfAbsent(key, values[0])
			}
		}
	})
}
