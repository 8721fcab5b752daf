package xmw

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

func newSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })
	return sr, tp
}

func TestTracing(t *testing.T) {
	t.Run("SpanRecordedWithAttributes", func(t *testing.T) {
		sr, tp := newSpanRecorder(t)
		svc := NewTracing(WithTracerProvider(tp)).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				return okResponse(http.StatusOK), nil
			}))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://api.example.com/users"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		span := spans[0]
		assert.Equal(t, "HTTP GET", span.Name())
		assert.Equal(t, trace.SpanKindClient, span.SpanKind())

		attrs := make(map[string]string)
		statusCode := int64(0)
		for _, kv := range span.Attributes() {
			switch string(kv.Key) {
			case "http.request.method", "url.full", "server.address":
				attrs[string(kv.Key)] = kv.Value.AsString()
			case "http.response.status_code":
				statusCode = kv.Value.AsInt64()
			}
		}
		assert.Equal(t, "GET", attrs["http.request.method"])
		assert.Equal(t, "http://api.example.com/users", attrs["url.full"])
		assert.Equal(t, "api.example.com", attrs["server.address"])
		assert.Equal(t, int64(http.StatusOK), statusCode)
	})

	t.Run("ContextInjectedIntoHeaders", func(t *testing.T) {
		_, tp := newSpanRecorder(t)
		var traceparent string
		svc := NewTracing(
			WithTracerProvider(tp),
			WithPropagator(propagation.TraceContext{}),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				traceparent = req.Header.Get("traceparent")
				return okResponse(http.StatusOK), nil
			}))

		req := newTestRequest(t, http.MethodGet, "http://example.com/")
		resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		// W3C traceparent: version-traceid-spanid-flags
		assert.Regexp(t, `^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`, traceparent)
	})

	t.Run("TransportErrorSetsErrorStatus", func(t *testing.T) {
		sr, tp := newSpanRecorder(t)
		svc := NewTracing(WithTracerProvider(tp)).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				return nil, &xclient.TransportError{Err: errors.New("connection reset")}
			}))

		_, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.Error(t, err)

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		require.NotEmpty(t, spans[0].Events())
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})

	t.Run("ClientErrorStatusMarksSpan", func(t *testing.T) {
		sr, tp := newSpanRecorder(t)
		svc := NewTracing(WithTracerProvider(tp)).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				return okResponse(http.StatusNotFound), nil
			}))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})

	t.Run("CustomSpanName", func(t *testing.T) {
		sr, tp := newSpanRecorder(t)
		svc := NewTracing(
			WithTracerProvider(tp),
			WithSpanNameFunc(func(req *http.Request) string { return req.Method + " " + req.URL.Path }),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				return okResponse(http.StatusOK), nil
			}))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/users/42"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "GET /users/42", spans[0].Name())
	})

	t.Run("InnerContextCarriesSpan", func(t *testing.T) {
		_, tp := newSpanRecorder(t)
		var innerHasSpan bool
		svc := NewTracing(WithTracerProvider(tp)).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				innerHasSpan = trace.SpanContextFromContext(ctx).IsValid()
				return okResponse(http.StatusOK), nil
			}))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.True(t, innerHasSpan)
	})
}
