package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newFlakyServer(t *testing.T, failures int32, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClientRetriesServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, calls := newFlakyServer(t, 2, status)
			client := New(WithRetry(3, time.Millisecond, 5*time.Millisecond))

			resp, err := client.Get(srv.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	srv, calls := newFlakyServer(t, 10, http.StatusBadRequest)
	client := New(WithRetry(3, time.Millisecond, 5*time.Millisecond))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientSurfacesFinalResponseWhenRetriesExhausted(t *testing.T) {
	srv, calls := newFlakyServer(t, 10, http.StatusServiceUnavailable)
	client := New(WithRetry(1, time.Millisecond, 2*time.Millisecond))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := New(WithTimeout(20*time.Millisecond), WithRetry(0, time.Millisecond, time.Millisecond))

	start := time.Now()
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestJitteredBackoff(t *testing.T) {
	t.Run("bounded_by_max", func(t *testing.T) {
		for attempt := 0; attempt < 10; attempt++ {
			wait := JitteredBackoff(100*time.Millisecond, time.Second, attempt, nil)
			require.Greater(t, wait, time.Duration(0))
			require.LessOrEqual(t, wait, time.Second)
		}
	})

	t.Run("first_attempt_near_min", func(t *testing.T) {
		wait := JitteredBackoff(100*time.Millisecond, time.Second, 0, nil)
		require.GreaterOrEqual(t, wait, 50*time.Millisecond)
		require.LessOrEqual(t, wait, 150*time.Millisecond)
	})

	t.Run("honours_retry_after", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Header:     http.Header{"Retry-After": []string{"2"}},
		}
		require.Equal(t, 2*time.Second, JitteredBackoff(time.Millisecond, 10*time.Second, 0, resp))
	})
}

func TestRateLimitedTransportRespectsContext(t *testing.T) {
	rt := &RateLimitedTransport{
		Base:    http.DefaultTransport,
		Limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	}
	// drain the only token
	require.True(t, rt.Limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}
