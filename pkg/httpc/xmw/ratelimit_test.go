package xmw

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func countingStub(calls *int) xclient.Service {
	return xclient.ServiceFunc(
		func(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
			*calls++
			return okResponse(http.StatusOK), nil
		})
}

func TestRateLimit(t *testing.T) {
	t.Run("RejectWhenExhausted", func(t *testing.T) {
		rdb := newTestRedis(t)
		calls := 0
		svc := NewRateLimit(rdb, Limit{Rate: 1, Period: time.Minute, Burst: 1}).
			Wrap(countingStub(&calls))

		req := newTestRequest(t, http.MethodGet, "http://api.example.com/")

		resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		_, err = svc.Call(context.Background(), req, xclient.NewExtensions())
		require.Error(t, err)
		assert.True(t, IsRateLimited(err))

		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Greater(t, rle.RetryAfter, time.Duration(0))
		assert.Equal(t, 1, calls)
	})

	t.Run("WaitModeBlocksThenProceeds", func(t *testing.T) {
		rdb := newTestRedis(t)
		calls := 0
		// 高速率小突发：第二个请求只需等待约 10ms
		svc := NewRateLimit(rdb, Limit{Rate: 100, Period: time.Second, Burst: 1},
			WithRateLimitMode(RateLimitWait)).
			Wrap(countingStub(&calls))

		req := newTestRequest(t, http.MethodGet, "http://api.example.com/")
		for i := 0; i < 2; i++ {
			resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
			require.NoError(t, err)
			_ = resp.Body.Close()
		}
		assert.Equal(t, 2, calls)
	})

	t.Run("WaitModeHonorsContextCancel", func(t *testing.T) {
		rdb := newTestRedis(t)
		calls := 0
		svc := NewRateLimit(rdb, Limit{Rate: 1, Period: time.Hour, Burst: 1},
			WithRateLimitMode(RateLimitWait)).
			Wrap(countingStub(&calls))

		req := newTestRequest(t, http.MethodGet, "http://api.example.com/")
		resp, err := svc.Call(context.Background(), req, xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = svc.Call(ctx, req, xclient.NewExtensions())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})

	t.Run("PerHostKeysIndependent", func(t *testing.T) {
		rdb := newTestRedis(t)
		calls := 0
		svc := NewRateLimit(rdb, Limit{Rate: 1, Period: time.Minute, Burst: 1}).
			Wrap(countingStub(&calls))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://a.example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		// 不同主机使用独立配额
		resp, err = svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://b.example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, 2, calls)
	})

	t.Run("CustomKeyFunc", func(t *testing.T) {
		rdb := newTestRedis(t)
		calls := 0
		svc := NewRateLimit(rdb, Limit{Rate: 1, Period: time.Minute, Burst: 1},
			WithRateLimitKeyFunc(func(req *http.Request) string { return "global" })).
			Wrap(countingStub(&calls))

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://a.example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()

		// 共用同一个键：跨主机也会被拒
		_, err = svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://b.example.com/"), xclient.NewExtensions())
		require.Error(t, err)
		assert.True(t, IsRateLimited(err))
	})

	t.Run("NilRedisFailsAtCallTime", func(t *testing.T) {
		calls := 0
		svc := NewRateLimit(nil, PerSecond(10)).Wrap(countingStub(&calls))

		_, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		assert.ErrorIs(t, err, ErrNilRedis)
		assert.Equal(t, 0, calls)
	})

	t.Run("FailOpenOnRedisOutage", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		calls := 0
		svc := NewRateLimit(rdb, PerSecond(10)).Wrap(countingStub(&calls))

		mr.Close() // 模拟 Redis 故障

		resp, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, 1, calls)
	})

	t.Run("FailClosedOnRedisOutage", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		calls := 0
		svc := NewRateLimit(rdb, PerSecond(10), WithRateLimitFailOpen(false)).
			Wrap(countingStub(&calls))

		mr.Close()

		_, err := svc.Call(context.Background(), newTestRequest(t, http.MethodGet, "http://example.com/"), xclient.NewExtensions())
		require.Error(t, err)
		assert.Equal(t, 0, calls)
	})
}
