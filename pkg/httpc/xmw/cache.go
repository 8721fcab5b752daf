package xmw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/omeyang/xhttpc/pkg/httpc/xclient"
)

// CacheStatus 缓存中间件写入 Extensions 的命中标记。
// 外层中间件与调用方可据此区分缓存命中与真实网络请求。
type CacheStatus struct {
	Hit bool
}

// cachedEntry 缓存的响应快照
type cachedEntry struct {
	status     int
	statusText string
	header     http.Header
	body       []byte
}

// cacheConfig 缓存中间件配置
type cacheConfig struct {
	ttl         time.Duration
	maxCost     int64
	numCounters int64
	maxBody     int64
}

// CacheOption 缓存中间件配置选项
type CacheOption func(*cacheConfig)

// WithCacheTTL 设置条目存活时间（默认 1 分钟）。
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheMaxCost 设置缓存总容量（字节，默认 64MB）。
func WithCacheMaxCost(n int64) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.maxCost = n
		}
	}
}

// WithCacheNumCounters 设置频率统计计数器数量。
// 建议为预期 key 数量的 10 倍，默认 1e6。
func WithCacheNumCounters(n int64) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.numCounters = n
		}
	}
}

// WithCacheMaxBody 设置可缓存的响应体上限（默认 1MB）。
// 超限的响应原样交付但不进入缓存。
func WithCacheMaxBody(n int64) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// Cache GET 响应缓存中间件。
//
// 命中时不调用内层阶段，直接用缓存快照合成响应（短路语义）；
// 未命中时读取并缓冲响应体，成功（200）则按 TTL 存入。
// 底层为 ristretto，写入是异步的：测试或需要立即读取刚写入
// 条目时，调用 Wait()。
type Cache struct {
	cache *ristretto.Cache[string, *cachedEntry]
	cfg   *cacheConfig
}

var _ xclient.Layer = (*Cache)(nil)

// NewCache 创建响应缓存中间件。
// 创建失败（非法容量配置）返回错误；Layer 的应用（Wrap）始终纯净。
func NewCache(opts ...CacheOption) (*Cache, error) {
	cfg := &cacheConfig{
		ttl:         time.Minute,
		maxCost:     64 * 1024 * 1024,
		numCounters: 1e6,
		maxBody:     1 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *cachedEntry]{
		NumCounters: cfg.numCounters,
		MaxCost:     cfg.maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("xmw: create response cache: %w", err)
	}
	return &Cache{cache: cache, cfg: cfg}, nil
}

// Wrap 实现 xclient.Layer。
func (c *Cache) Wrap(next xclient.Service) xclient.Service {
	return &cacheService{next: next, cache: c.cache, cfg: c.cfg}
}

// Wait 等待所有缓冲的写入完成（ristretto 异步写入）。
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close 关闭底层缓存。
func (c *Cache) Close() {
	c.cache.Close()
}

type cacheService struct {
	next  xclient.Service
	cache *ristretto.Cache[string, *cachedEntry]
	cfg   *cacheConfig
}

var _ xclient.Service = (*cacheService)(nil)

func (s *cacheService) Call(ctx context.Context, req *http.Request, ext *xclient.Extensions) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return s.next.Call(ctx, req, ext)
	}

	key := cacheKey(req)
	if entry, ok := s.cache.Get(key); ok {
		ext.Insert(CacheStatus{Hit: true})
		return entry.response(req), nil
	}

	resp, err := s.next.Call(ctx, req, ext)
	if err != nil {
		return nil, err
	}
	ext.Insert(CacheStatus{Hit: false})

	if resp.StatusCode != http.StatusOK || resp.Body == nil {
		return resp, nil
	}

	// 读到上限 +1 字节以区分"恰好到顶"与"超限"
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.maxBody+1))
	closeErr := resp.Body.Close()
	if err != nil || closeErr != nil || int64(len(body)) > s.cfg.maxBody {
		// 超限或读失败的响应不进缓存，把已读部分还给调用方
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, err
	}

	entry := &cachedEntry{
		status:     resp.StatusCode,
		statusText: resp.Status,
		header:     resp.Header.Clone(),
		body:       body,
	}
	s.cache.SetWithTTL(key, entry, int64(len(body))+int64(len(key)), s.cfg.ttl)

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// cacheKey 以 xxhash 生成紧凑的缓存键。
func cacheKey(req *http.Request) string {
	h := xxhash.New()
	_, _ = h.WriteString(req.Method)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(req.URL.String())
	return strconv.FormatUint(h.Sum64(), 16)
}

// response 基于缓存快照合成响应。每次命中产出独立的 Body。
func (e *cachedEntry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    e.status,
		Status:        e.statusText,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Request:       req,
	}
}
