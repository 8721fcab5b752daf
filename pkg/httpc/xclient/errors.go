package xclient

import (
	"errors"
)

// ErrNilRequest Service.Call 收到 nil 请求
var ErrNilRequest = errors.New("xclient: nil request")

// BuildError 请求物化失败。
//
// 非法头、编码失败、初始化器拒绝等都归入此类，
// 在任何中间件执行之前出现。组合引擎自身从不重试 BuildError。
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	if e.Err == nil {
		return "xclient: build request failed"
	}
	return "xclient: build request: " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// MiddlewareError 某个中间件产出的错误。
//
// 向内短路：错误产生后，更内层的阶段（包括传输单元）不再执行；
// 向外穿过所有仍活跃的外层阶段，外层可以观察、记录或重试。
type MiddlewareError struct {
	Err error
}

func (e *MiddlewareError) Error() string {
	if e.Err == nil {
		return "xclient: middleware failed"
	}
	return "xclient: middleware: " + e.Err.Error()
}

func (e *MiddlewareError) Unwrap() error {
	return e.Err
}

// TransportError 底层传输引擎的失败。
//
// 连接失败、超时、协议违例等。由终端传输单元映射产生，
// 向外流经每个仍活跃的外层阶段。
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "xclient: transport failed"
	}
	return "xclient: transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsBuildError 判断错误链中是否含 BuildError。
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// IsMiddlewareError 判断错误链中是否含 MiddlewareError。
func IsMiddlewareError(err error) bool {
	var me *MiddlewareError
	return errors.As(err, &me)
}

// IsTransportError 判断错误链中是否含 TransportError。
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classifyPipelineError 给管道返回的错误补上分类。
//
// 已经是三类之一（或包装了三类之一）的错误原样返回；
// 中间件直接返回的未分类错误统一包装为 MiddlewareError，
// 调用方无需关心每个中间件是否记得包装。
func classifyPipelineError(err error) error {
	if err == nil {
		return nil
	}
	if IsBuildError(err) || IsMiddlewareError(err) || IsTransportError(err) {
		return err
	}
	return &MiddlewareError{Err: err}
}
