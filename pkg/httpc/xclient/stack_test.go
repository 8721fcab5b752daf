package xclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracingLayer 记录进入/退出顺序的插桩中间件
func tracingLayer(name string, log *[]string) Layer {
	return LayerFunc(func(next Service) Service {
		return ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
			*log = append(*log, "enter "+name)
			resp, err := next.Call(ctx, req, ext)
			*log = append(*log, "exit "+name)
			return resp, err
		})
	})
}

func stubResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestComposeLayers_OrderInvariant(t *testing.T) {
	// 对任意 N，进入顺序必须等于注册顺序（L1 最先），退出顺序严格相反
	for n := 0; n <= 5; n++ {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			var log []string
			layers := make([]Layer, 0, n)
			for i := 1; i <= n; i++ {
				layers = append(layers, tracingLayer(fmt.Sprintf("L%d", i), &log))
			}

			base := ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
				log = append(log, "terminal")
				return stubResponse(), nil
			})

			svc := composeLayers(layers, base)
			resp, err := svc.Call(context.Background(), &http.Request{}, NewExtensions())
			require.NoError(t, err)
			require.NotNil(t, resp)
			_ = resp.Body.Close()

			want := make([]string, 0, 2*n+1)
			for i := 1; i <= n; i++ {
				want = append(want, fmt.Sprintf("enter L%d", i))
			}
			want = append(want, "terminal")
			for i := n; i >= 1; i-- {
				want = append(want, fmt.Sprintf("exit L%d", i))
			}
			assert.Equal(t, want, log)
		})
	}
}

func TestComposeLayers_ZeroLayersIsTerminalOnly(t *testing.T) {
	// N = 0 的行为等同于直接调用终端传输单元
	called := 0
	base := ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
		called++
		return stubResponse(), nil
	})

	svc := composeLayers(nil, base)
	resp, err := svc.Call(context.Background(), &http.Request{}, NewExtensions())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, 1, called)
}

func TestComposeLayers_NilLayerSkipped(t *testing.T) {
	var log []string
	layers := []Layer{tracingLayer("L1", &log), nil, tracingLayer("L2", &log)}
	base := ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
		return stubResponse(), nil
	})

	resp, err := composeLayers(layers, base).Call(context.Background(), &http.Request{}, NewExtensions())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, []string{"enter L1", "enter L2", "exit L2", "exit L1"}, log)
}

func TestIdentity_Neutral(t *testing.T) {
	called := 0
	base := ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
		called++
		return nil, errors.New("boom")
	})

	// Identity 包装不改变行为
	svc := Identity{}.Wrap(base)
	_, err := svc.Call(context.Background(), &http.Request{}, NewExtensions())
	assert.Error(t, err)
	assert.Equal(t, 1, called)
}

func TestComposeLayers_ShortCircuit(t *testing.T) {
	// 中间件报错后，更内层的阶段一次都不执行；外层照常看到错误
	var log []string
	failing := LayerFunc(func(next Service) Service {
		return ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
			log = append(log, "enter failing")
			return nil, errors.New("denied")
		})
	})

	inner := tracingLayer("inner", &log)
	terminalCalls := 0
	base := ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
		terminalCalls++
		return stubResponse(), nil
	})

	var outerSawErr error
	outer := LayerFunc(func(next Service) Service {
		return ServiceFunc(func(ctx context.Context, req *http.Request, ext *Extensions) (*http.Response, error) {
			resp, err := next.Call(ctx, req, ext)
			outerSawErr = err
			return resp, err
		})
	})

	svc := composeLayers([]Layer{outer, failing, inner}, base)
	_, err := svc.Call(context.Background(), &http.Request{}, NewExtensions())

	require.Error(t, err)
	assert.EqualError(t, outerSawErr, "denied")
	assert.Equal(t, []string{"enter failing"}, log)
	assert.Equal(t, 0, terminalCalls)
}

func TestRunInitializers_Order(t *testing.T) {
	var order []string
	inits := []Initializer{
		InitializerFunc(func(rb *RequestBuilder) { order = append(order, "I1") }),
		nil,
		InitializerFunc(func(rb *RequestBuilder) { order = append(order, "I2") }),
		InitializerFunc(func(rb *RequestBuilder) { order = append(order, "I3") }),
	}

	rb := newRequestBuilder(nil, http.MethodGet, "http://example.com/")
	runInitializers(inits, rb)

	// 与中间件链同一条序约定：先注册者先执行
	assert.Equal(t, []string{"I1", "I2", "I3"}, order)
}
