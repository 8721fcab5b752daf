package xmw

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// instrumentationName 上报到 tracer scope 的组件标识
const instrumentationName = "github.com/omeyang/xhttpc/pkg/httpc/xmw"

// tracingConfig 追踪中间件配置
type tracingConfig struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	spanName   func(req *http.Request) string
}

// TracingOption 追踪中间件配置选项
type TracingOption func(*tracingConfig)

// WithTracerProvider 设置 TracerProvider（默认取全局）。
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) {
		if tp != nil {
			c.provider = tp
		}
	}
}

// WithPropagator 设置跨服务传播器（默认取全局）。
func WithPropagator(p propagation.TextMapPropagator) TracingOption {
	return func(c *tracingConfig) {
		if p != nil {
			c.propagator = p
		}
	}
}

// WithSpanNameFunc 自定义 span 命名（默认 "HTTP {method}"）。
func WithSpanNameFunc(f func(req *http.Request) string) TracingOption {
	return func(c *tracingConfig) {
		if f != nil {
			c.spanName = f
		}
	}
}

// NewTracing 创建 OpenTelemetry 客户端追踪中间件。
//
// 为每个请求开启一个 CLIENT span，并把追踪上下文注入请求头
// （traceparent 等，取决于传播器），实现跨服务链路串联。
// 内层派生的 ctx 携带该 span，重试、限流等中间件产生的等待
// 都会落在 span 的时间轴内。
func NewTracing(opts ...TracingOption) xclient.Layer {
	cfg := &tracingConfig{
		provider:   otel.GetTracerProvider(),
		propagator: otel.GetTextMapPropagator(),
		spanName: func(req *http.Request) string {
			return "HTTP " + req.Method
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.provider.Tracer(instrumentationName)
	return xclient.LayerFunc(func(next xclient.Service) xclient.Service {
		return &tracingService{next: next, tracer: tracer, cfg: cfg}
	})
}

type tracingService struct {
	next   xclient.Service
	tracer trace.Tracer
	cfg    *tracingConfig
}

var _ xclient.Service = (*tracingService)(nil)

func (s *tracingService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	ctx, span := s.tracer.Start(ctx, s.cfg.spanName(req),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("server.address", req.URL.Hostname()),
		),
	)
	defer span.End()

	// 请求归本次调用独占，直接注入头即可
	s.cfg.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.next.Call(ctx, req, ext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
