package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/gateway/gatewaytest"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeLister struct{ err error }

func (f fakeLister) ListBuckets(context.Context, string) ([]gateway.BucketSummary, error) {
	return nil, f.err
}

func TestReadinessReportsFailingComponent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		db        Pinger
		store     BucketLister
		status    int
		component string
	}{
		{"healthy", fakePinger{}, fakeLister{}, http.StatusOK, ""},
		{"postgres down", fakePinger{err: errors.New("refused")}, fakeLister{}, http.StatusServiceUnavailable, "postgres"},
		{"minio down", fakePinger{}, fakeLister{err: errors.New("timeout")}, http.StatusServiceUnavailable, "minio"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(Dependencies{DB: tc.db, ObjectStore: tc.store})

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tc.status, rr.Code)
			if tc.component != "" {
				assert.Contains(t, rr.Body.String(), tc.component)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(Dependencies{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	authService := auth.NewService(nil, config.AuthConfig{
		AccessTokenSecret:  "test-access-secret-0123456789abcdef",
		RefreshTokenSecret: "test-refresh-secret-0123456789abcdef",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		BcryptCost:         4,
	})
	mem := gatewaytest.NewMemory()
	buckets := bucket.NewService(gateway.New(mem, "", time.Second, nil), naming.NewCodec("-", true, false), nil, nil, nil)
	router := NewRouter(Dependencies{AuthService: authService, BucketService: buckets})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/buckets", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/buckets", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, mem.Calls("ListBuckets"))
}

func TestRateLimiterAllowAndBlock(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSec: 1, Burst: 2})

	assert.True(t, rl.Allow("user:u1"))
	assert.True(t, rl.Allow("user:u1"))
	assert.False(t, rl.Allow("user:u1"), "burst exhausted")
	assert.True(t, rl.Allow("user:u2"), "each caller has its own bucket")
}

func TestRateLimiterCleanupDropsIdleCallers(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSec: 1, Burst: 1})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.nowFunc = func() time.Time { return now }

	rl.Allow("user:u1")
	now = now.Add(limiterMaxIdle + time.Second)
	rl.Allow("user:u2")
	rl.cleanup(limiterMaxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "user:u1")
	assert.Contains(t, rl.limiters, "user:u2")
}

func TestRateLimiterMiddlewareKeysByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSec: 1, Burst: 1})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			auth.SetUser(c, auth.ContextUser{ID: id})
		}
	})
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, do("u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1"))
	assert.Equal(t, http.StatusOK, do("u2"), "same IP, different user")
	assert.Equal(t, http.StatusOK, do(""), "anonymous callers are keyed by IP")
	assert.Equal(t, http.StatusTooManyRequests, do(""))
}
