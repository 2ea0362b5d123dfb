package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/flights-api/internal/config"
	"github.com/iliyamo/flights-api/internal/logger"
)

func newContext(e *echo.Echo, method, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCacheKeyDependsOnPathAndQuery(t *testing.T) {
	t.Parallel()

	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}

	c1, _ := newContext(e, http.MethodGet, "/v1/flights/1")
	c2, _ := newContext(e, http.MethodGet, "/v1/flights/2")
	c3, _ := newContext(e, http.MethodGet, "/v1/flights?page=1&size=5")
	c4, _ := newContext(e, http.MethodGet, "/v1/flights?size=5&page=1")

	k1, k2 := cacheKeyFrom(cfg, c1), cacheKeyFrom(cfg, c2)
	require.NotEqual(t, k1, k2)
	require.True(t, strings.HasPrefix(k1, "cache:"))
	require.Equal(t, cacheKeyFrom(cfg, c3), cacheKeyFrom(cfg, c4), "query order must not matter")

	cfg.KeyStrategy = "route"
	require.Equal(t, cacheKeyFrom(cfg, c3), cacheKeyFrom(cfg, c4))
}

func TestPayloadEncoding(t *testing.T) {
	t.Parallel()

	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	require.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	require.False(t, ok, "header length beyond buffer")
}

func TestCaptureWriterLimit(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("defg"))
	require.Equal(t, "abcd", cw.buf.String())
	require.True(t, cw.truncated())
	require.Equal(t, "abcdefg", rec.Body.String())
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	e := echo.New()
	mw := NewRedisCache(config.CacheConfig{Enabled: true, Methods: []string{"GET"}, Prefix: "cache"}, unreachableRedis(t), nil)

	calls := 0
	h := mw(func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "fresh")
	})

	for i := 0; i < 2; i++ {
		c, rec := newContext(e, http.MethodGet, "/v1/flights/1")
		require.NoError(t, h(c))
		require.Equal(t, "fresh", rec.Body.String())
		require.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
	require.Equal(t, 2, calls)

	c, rec := newContext(e, http.MethodDelete, "/v1/flights/1")
	require.NoError(t, h(c))
	require.Equal(t, http.StatusOK, rec.Code, "invalidation errors never fail the write")
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	t.Parallel()

	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusTeapot) }
	for _, mw := range []echo.MiddlewareFunc{
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, nil),
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, unreachableRedis(t), nil),
	} {
		c, rec := newContext(e, http.MethodGet, "/v1/flights")
		require.NoError(t, mw(next)(c))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	t.Parallel()

	e := echo.New()
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}, unreachableRedis(t), nil)
	c, rec := newContext(e, http.MethodGet, "/v1/flights")
	require.NoError(t, mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateKeyStrategies(t *testing.T) {
	t.Parallel()

	e := echo.New()
	c, _ := newContext(e, http.MethodGet, "/v1/flights/3")
	c.SetPath("/v1/flights/:id")
	c.Request().Header.Set(HeaderClientID, "ops:desk")
	c.Request().Header.Set(echo.HeaderXRealIP, "10.0.0.9")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	require.Equal(t, "rl:ip:10.0.0.9:client:ops_desk:route:GET /v1/flights/:id", buildRateKey(cfg, c))

	cfg.KeyStrategy = "client"
	require.Equal(t, "rl:client:ops_desk", buildRateKey(cfg, c))

	c2, _ := newContext(e, http.MethodGet, "/v1/flights")
	cfg.KeyStrategy = "client"
	require.Equal(t, "rl:client:anon", buildRateKey(cfg, c2))
}

func TestBucketResultParsing(t *testing.T) {
	t.Parallel()

	allowed, remaining, retry, ok := parseBucketResult([]interface{}{int64(0), int64(0), int64(1500)})
	require.True(t, ok)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.Equal(t, 2, retryAfterSeconds(retry))

	_, _, _, ok = parseBucketResult("nope")
	require.False(t, ok)
}

func TestAccessLogRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	e := echo.New()
	h := AccessLog(logger.FromZap(zap.New(core)))(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})

	c, rec := newContext(e, http.MethodGet, "/v1/flights/9")
	require.NoError(t, h(c))
	require.Equal(t, http.StatusNotFound, rec.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])
	require.Equal(t, "/v1/flights/9", entries[0].ContextMap()["path"])
}
