package xmw

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// loggingConfig 日志中间件配置
type loggingConfig struct {
	logStart     bool
	successLevel slog.Level
}

// LoggingOption 日志中间件配置选项
type LoggingOption func(*loggingConfig)

// WithLogStart 设置是否在请求发出前额外记录一条 Debug 日志。
func WithLogStart(enabled bool) LoggingOption {
	return func(c *loggingConfig) {
		c.logStart = enabled
	}
}

// WithLogSuccessLevel 设置成功请求的日志级别（默认 Info）。
func WithLogSuccessLevel(level slog.Level) LoggingOption {
	return func(c *loggingConfig) {
		c.successLevel = level
	}
}

// NewLogging 创建结构化请求日志中间件。
// logger 为 nil 时使用 slog.Default()。
//
// 放在链的最外层可观察到完整耗时（包括内层重试的每次等待）。
func NewLogging(logger *slog.Logger, opts ...LoggingOption) xclient.Layer {
	cfg := &loggingConfig{
		successLevel: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return xclient.LayerFunc(func(next xclient.Service) xclient.Service {
		return &loggingService{next: next, logger: logger, cfg: cfg}
	})
}

type loggingService struct {
	next   xclient.Service
	logger *slog.Logger
	cfg    *loggingConfig
}

var _ xclient.Service = (*loggingService)(nil)

func (s *loggingService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	if s.cfg.logStart {
		logger.LogAttrs(ctx, slog.LevelDebug, "http request start",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
		)
	}

	start := time.Now()
	resp, err := s.next.Call(ctx, req, ext)
	elapsed := time.Since(start)

	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "http request failed",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		return nil, err
	}

	logger.LogAttrs(ctx, s.cfg.successLevel, "http request done",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
	)
	return resp, nil
}
