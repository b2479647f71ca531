package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/api/middleware"
	"github.com/davidm/taskflow/internal/ratelimit"
	"github.com/davidm/taskflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedServer(t *testing.T, max int, window time.Duration) *httptest.Server {
	t.Helper()

	tr := testutil.NewTestRedis(t)
	limiter := ratelimit.NewLimiter(tr.Client)

	handler := middleware.RateLimit(limiter, "test", max, window)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestRateLimit_AllowsUpToMax(t *testing.T) {
	server := rateLimitedServer(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "Too many attempts")
}

func TestRateLimit_SetsHeaders(t *testing.T) {
	server := rateLimitedServer(t, 3, time.Minute)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))

	resp, err = http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestRateLimit_DistinguishesClients(t *testing.T) {
	server := rateLimitedServer(t, 1, time.Minute)

	first, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	first.Header.Set("X-Forwarded-For", "1.2.3.4")

	second, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	second.Header.Set("X-Forwarded-For", "5.6.7.8")

	resp, err := http.DefaultClient.Do(first)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The first client is now exhausted, the second is not
	resp, err = http.DefaultClient.Do(first)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, err = http.DefaultClient.Do(second)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit_ResetsAfterWindow(t *testing.T) {
	server := rateLimitedServer(t, 1, 500*time.Millisecond)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	time.Sleep(700 * time.Millisecond)

	resp, err = http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
