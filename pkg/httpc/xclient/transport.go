package xclient

import (
	"context"
	"net/http"
)

// engineService 终端传输单元。
//
// 把物化完成的请求交给底层 *http.Client，等待结果，
// 并将引擎级失败映射为 TransportError。不重试，不持有请求级状态。
type engineService struct {
	engine *http.Client
}

var _ Service = (*engineService)(nil)

func newEngineService(engine *http.Client) Service {
	if engine == nil {
		engine = http.DefaultClient
	}
	return &engineService{engine: engine}
}

// Call 实现 Service 接口。
// 中间件可能派生了新的 ctx（超时、追踪 span），以参数 ctx 为准。
func (s *engineService) Call(ctx context.Context, req *http.Request, _ *Extensions) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if ctx != nil && ctx != req.Context() {
		req = req.WithContext(ctx)
	}
	resp, err := s.engine.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}
