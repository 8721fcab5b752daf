package xclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestBuilder 链式请求构建器。
//
// 所有设置方法都是纯透传，返回接收者本身便于链式调用；
// 除 Build/Send 外任何一步都不会对外报错，
// 中途发生的失败（JSON 编码失败、初始化器拒绝等）按 first-error-wins
// 累积，在物化时以 BuildError 统一暴露（参照 xlog Builder 的约定）。
//
// RequestBuilder 非并发安全：一个实例只服务一次逻辑请求。
type RequestBuilder struct {
	client  *Client
	method  string
	target  string
	header  http.Header
	query   url.Values
	timeout time.Duration

	// bodyBuf 缓冲请求体，可重放（重试、克隆均可用）
	bodyBuf []byte
	hasBody bool
	// stream 流式请求体，只能消费一次，不可克隆
	stream io.Reader
	// multipartFn 延迟到物化时经 io.Pipe 流式写出，同样不可克隆
	multipartFn func(w *multipart.Writer) error

	ext *Extensions
	err error
}

func newRequestBuilder(c *Client, method, target string) *RequestBuilder {
	return &RequestBuilder{
		client: c,
		method: method,
		target: target,
		header: make(http.Header),
		query:  make(url.Values),
		ext:    NewExtensions(),
	}
}

// Fail 记录一次构建失败（first-error-wins）。
// 供初始化器拒绝请求使用；nil 会被忽略。
func (rb *RequestBuilder) Fail(err error) *RequestBuilder {
	if err != nil && rb.err == nil {
		rb.err = err
	}
	return rb
}

// Err 返回当前累积的构建错误（未包装）。
func (rb *RequestBuilder) Err() error {
	return rb.err
}

// Method 返回请求方法。
func (rb *RequestBuilder) Method() string { return rb.method }

// Target 返回请求目标 URL（未经解析）。
func (rb *RequestBuilder) Target() string { return rb.target }

// Header 设置一个请求头（覆盖同名旧值）。
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.header.Set(key, value)
	return rb
}

// HeaderIfAbsent 仅在同名头不存在时设置。
// 初始化器用它注入默认头而不覆盖调用方的显式设置。
func (rb *RequestBuilder) HeaderIfAbsent(key, value string) *RequestBuilder {
	if rb.header.Get(key) == "" {
		rb.header.Set(key, value)
	}
	return rb
}

// Headers 批量设置请求头（逐个覆盖）。
func (rb *RequestBuilder) Headers(h http.Header) *RequestBuilder {
	for key, values := range h {
		rb.header.Del(key)
		for _, v := range values {
			rb.header.Add(key, v)
		}
	}
	return rb
}

// HeaderValue 返回已设置的请求头值（供初始化器做存在性判断）。
func (rb *RequestBuilder) HeaderValue(key string) string {
	return rb.header.Get(key)
}

// BasicAuth 设置 HTTP Basic 认证头。
func (rb *RequestBuilder) BasicAuth(username, password string) *RequestBuilder {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return rb.Header("Authorization", "Basic "+credentials)
}

// BearerAuth 设置 Bearer Token 认证头。
func (rb *RequestBuilder) BearerAuth(token string) *RequestBuilder {
	return rb.Header("Authorization", "Bearer "+token)
}

// Query 追加一个查询参数。
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	rb.query.Add(key, value)
	return rb
}

// QueryValues 批量追加查询参数。
func (rb *RequestBuilder) QueryValues(v url.Values) *RequestBuilder {
	for key, values := range v {
		for _, value := range values {
			rb.query.Add(key, value)
		}
	}
	return rb
}

// Timeout 设置单请求超时。
//
// 物化后的超时以 context 截止时间的形式包裹整条组合管道生效，
// 覆盖从发出请求到读完响应体的全程。
func (rb *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	rb.timeout = d
	return rb
}

// Body 设置请求体。
//
// *bytes.Buffer、*bytes.Reader、*strings.Reader 会被缓冲为可重放体
// （与 http.NewRequest 的特判一致），其余 Reader 按流式处理：
// 只能消费一次，TryClone 返回 nil，重试中间件也只会发出一次。
func (rb *RequestBuilder) Body(r io.Reader) *RequestBuilder {
	rb.clearBody()
	if r == nil {
		return rb
	}
	switch r.(type) {
	case *bytes.Buffer, *bytes.Reader, *strings.Reader:
		data, err := io.ReadAll(r)
		if err != nil {
			return rb.Fail(fmt.Errorf("read body: %w", err))
		}
		rb.bodyBuf = data
		rb.hasBody = true
	default:
		rb.stream = r
	}
	return rb
}

// BodyBytes 设置缓冲请求体。
func (rb *RequestBuilder) BodyBytes(data []byte) *RequestBuilder {
	rb.clearBody()
	rb.bodyBuf = data
	rb.hasBody = true
	return rb
}

// JSON 将 v 编码为 JSON 请求体并设置 Content-Type。
// 编码失败记录为构建错误。
func (rb *RequestBuilder) JSON(v any) *RequestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		return rb.Fail(fmt.Errorf("encode json body: %w", err))
	}
	rb.Header("Content-Type", "application/json")
	return rb.BodyBytes(data)
}

// Form 将表单编码为请求体并设置 Content-Type。
func (rb *RequestBuilder) Form(form url.Values) *RequestBuilder {
	rb.Header("Content-Type", "application/x-www-form-urlencoded")
	return rb.BodyBytes([]byte(form.Encode()))
}

// Multipart 设置 multipart/form-data 请求体。
//
// build 回调在物化后经 io.Pipe 流式写出，不占用整块内存；
// 代价是请求体不可重放：TryClone 返回 nil。
func (rb *RequestBuilder) Multipart(build func(w *multipart.Writer) error) *RequestBuilder {
	rb.clearBody()
	if build == nil {
		return rb.Fail(fmt.Errorf("nil multipart builder"))
	}
	rb.multipartFn = build
	return rb
}

func (rb *RequestBuilder) clearBody() {
	rb.bodyBuf = nil
	rb.hasBody = false
	rb.stream = nil
	rb.multipartFn = nil
}

// WithExtension 在发送前向本请求的 Extensions 写入一个值。
func (rb *RequestBuilder) WithExtension(v any) *RequestBuilder {
	rb.ext.Insert(v)
	return rb
}

// Extensions 返回本请求的 Extensions（可变访问）。
func (rb *RequestBuilder) Extensions() *Extensions {
	return rb.ext
}

// TryClone 尝试克隆构建器。
//
// 请求体为流式（Body 传入不可重放的 Reader，或使用了 Multipart）时
// 无法克隆，返回 nil。克隆体相互独立，且 Extensions 从空开始：
// 扩展内容绝不跨克隆传递。
func (rb *RequestBuilder) TryClone() *RequestBuilder {
	if rb.stream != nil || rb.multipartFn != nil {
		return nil
	}
	clone := &RequestBuilder{
		client:  rb.client,
		method:  rb.method,
		target:  rb.target,
		header:  rb.header.Clone(),
		query:   make(url.Values, len(rb.query)),
		timeout: rb.timeout,
		hasBody: rb.hasBody,
		ext:     NewExtensions(),
		err:     rb.err,
	}
	for key, values := range rb.query {
		clone.query[key] = append([]string(nil), values...)
	}
	if rb.hasBody {
		clone.bodyBuf = append([]byte(nil), rb.bodyBuf...)
	}
	return clone
}

// Build 将构建器物化为不可变的 *http.Request。
// 失败返回 *BuildError。
func (rb *RequestBuilder) Build() (*http.Request, error) {
	return rb.materialize(context.Background())
}

// Send 执行完整管道：物化请求、组合链调用、返回响应或错误。
//
// 构建失败以 BuildError 快速返回，不触发任何中间件。
// 中间件返回的未分类错误统一包装为 MiddlewareError。
func (rb *RequestBuilder) Send(ctx context.Context) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var cancel context.CancelFunc
	if rb.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, rb.timeout)
	}

	req, err := rb.materialize(ctx)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	resp, err := rb.client.svc.Call(ctx, req, rb.ext)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, classifyPipelineError(err)
	}

	// 超时 context 的取消必须推迟到响应体读完，
	// 否则调用方拿到的 Body 会在 Send 返回的瞬间被掐断。
	if cancel != nil && resp != nil {
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	} else if cancel != nil {
		cancel()
	}
	return resp, nil
}

// materialize 物化请求。所有失败都归为 BuildError。
func (rb *RequestBuilder) materialize(ctx context.Context) (*http.Request, error) {
	if rb.err != nil {
		return nil, &BuildError{Err: rb.err}
	}
	if err := validateHeader(rb.header); err != nil {
		return nil, &BuildError{Err: err}
	}

	body, contentType, err := rb.bodyReader()
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, rb.method, rb.target, body)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	for key, values := range rb.header {
		req.Header[key] = append([]string(nil), values...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if len(rb.query) > 0 {
		merged := req.URL.Query()
		for key, values := range rb.query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		req.URL.RawQuery = merged.Encode()
	}

	return req, nil
}

// bodyReader 产出物化用的请求体 Reader。
// 缓冲体走 *bytes.Reader，http.NewRequestWithContext 会据此
// 自动填好 ContentLength 与 GetBody（重试重放依赖后者）。
func (rb *RequestBuilder) bodyReader() (io.Reader, string, error) {
	switch {
	case rb.multipartFn != nil:
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		fn := rb.multipartFn
		go func() {
			err := fn(mw)
			if cerr := mw.Close(); err == nil {
				err = cerr
			}
			pw.CloseWithError(err)
		}()
		return pr, mw.FormDataContentType(), nil
	case rb.stream != nil:
		return rb.stream, "", nil
	case rb.hasBody:
		return bytes.NewReader(rb.bodyBuf), "", nil
	default:
		return nil, "", nil
	}
}

// cancelBody 把超时 context 的取消挂到响应体的 Close 上。
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// validateHeader 在物化前校验头的合法性。
// net/http 把这类校验推迟到传输层，这里提前到构建期，
// 保证非法头以 BuildError 快速失败而不触发任何中间件。
func validateHeader(h http.Header) error {
	for key, values := range h {
		if !validHeaderName(key) {
			return fmt.Errorf("invalid header name %q", key)
		}
		for _, v := range values {
			if !validHeaderValue(v) {
				return fmt.Errorf("invalid value for header %q", key)
			}
		}
	}
	return nil
}

// validHeaderName 校验头名称是否为合法 token（RFC 9110）。
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return false
		}
	}
	return true
}

// validHeaderValue 拒绝控制字符（保留水平制表符）。
func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
