package xmw

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

func TestBreaker(t *testing.T) {
	t.Run("ClosedPassesThrough", func(t *testing.T) {
		calls := 0
		svc := NewBreaker().Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				calls++
				return okResponse(http.StatusOK), nil
			}))

		for i := 0; i < 3; i++ {
			resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
			require.NoError(t, err)
			_ = resp.Body.Close()
		}
		assert.Equal(t, 3, calls)
	})

	t.Run("OpensAfterConsecutiveFailures", func(t *testing.T) {
		calls := 0
		svc := NewBreaker(
			WithBreakerReadyToTrip(func(counts BreakerCounts) bool {
				return counts.ConsecutiveFailures >= 2
			}),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				calls++
				return nil, &xclient.TransportError{Err: errors.New("down")}
			}))

		req := newTestRequest(t, http.MethodGet, "http://example.com/")
		for i := 0; i < 2; i++ {
			_, err := svc.Call(context.Background(), req, xclient.NewExtensions())
			require.Error(t, err)
			assert.True(t, xclient.IsTransportError(err))
		}

		// 打开后短路：内层零调用
		_, err := svc.Call(context.Background(), req, xclient.NewExtensions())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOpenState)
		assert.Equal(t, 2, calls)
	})

	t.Run("ServerErrorCountsButDelivers", func(t *testing.T) {
		calls := 0
		svc := NewBreaker(
			WithBreakerReadyToTrip(func(counts BreakerCounts) bool {
				return counts.ConsecutiveFailures >= 2
			}),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				calls++
				return okResponse(http.StatusInternalServerError), nil
			}))

		req := newTestRequest(t, http.MethodGet, "http://example.com/")
		// 5xx 计入失败，但响应照常交付
		for i := 0; i < 2; i++ {
			resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			_ = resp.Body.Close()
		}

		_, err := svc.Call(context.Background(), req, xclient.NewExtensions())
		assert.ErrorIs(t, err, ErrOpenState)
		assert.Equal(t, 2, calls)
	})

	t.Run("Count5xxDisabled", func(t *testing.T) {
		calls := 0
		svc := NewBreaker(
			WithBreakerCount5xx(false),
			WithBreakerReadyToTrip(func(counts BreakerCounts) bool {
				return counts.ConsecutiveFailures >= 2
			}),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				calls++
				return okResponse(http.StatusInternalServerError), nil
			}))

		req := newTestRequest(t, http.MethodGet, "http://example.com/")
		for i := 0; i < 5; i++ {
			resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
			require.NoError(t, err)
			_ = resp.Body.Close()
		}
		assert.Equal(t, 5, calls)
	})

	t.Run("StateChangeCallback", func(t *testing.T) {
		var transitions []BreakerState
		svc := NewBreaker(
			WithBreakerName("test"),
			WithBreakerReadyToTrip(func(counts BreakerCounts) bool {
				return counts.ConsecutiveFailures >= 1
			}),
			WithBreakerOnStateChange(func(name string, from, to BreakerState) {
				transitions = append(transitions, to)
			}),
		).Wrap(xclient.ServiceFunc(
			func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
				return nil, &xclient.TransportError{Err: errors.New("down")}
			}))

		_, _ = svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.NotEmpty(t, transitions)
		assert.Equal(t, StateOpen, transitions[len(transitions)-1])
	})
}
