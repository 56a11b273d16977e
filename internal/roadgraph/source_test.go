package roadgraph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestOverpass(endpoint string) *OverpassSource {
	src := NewOverpassSource(endpoint, nil)
	src.Limiter = rate.NewLimiter(rate.Inf, 1)
	return src
}

func TestOverpassSource(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		query = form.Get("data")
		w.Header().Set("Content-Type", "application/osm3s+xml")
		_, _ = io.WriteString(w, sampleOSM)
	}))
	defer server.Close()

	g, err := Build(context.Background(), newTestOverpass(server.URL), sampleBound, NetworkBike)
	require.NoError(t, err)
	assert.Equal(t, 5, g.NumNodes())

	assert.Contains(t, query, "[out:xml]")
	assert.Contains(t, query, `way["highway"]["area"!~"yes"]`)
	assert.Contains(t, query, "(60.160000,24.930000,60.180000,24.950000)", "bbox is sent as south,west,north,east")
}

func TestOverpassSourceRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		_, _ = io.WriteString(w, sampleOSM)
	}))
	defer server.Close()

	g, err := Build(context.Background(), newTestOverpass(server.URL), sampleBound, NetworkBike)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 5, g.NumEdges())
}

func TestOverpassSourceFailures(t *testing.T) {
	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := Build(context.Background(), newTestOverpass(server.URL), sampleBound, NetworkBike)
		assert.ErrorIs(t, err, ErrNetworkUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := Build(context.Background(), newTestOverpass(server.URL), sampleBound, NetworkBike)
		assert.ErrorIs(t, err, ErrNetworkUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		endpoint := server.URL
		server.Close()

		_, err := Build(context.Background(), newTestOverpass(endpoint), sampleBound, NetworkBike)
		assert.ErrorIs(t, err, ErrNetworkUnavailable)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Build(ctx, newTestOverpass("http://127.0.0.1:1"), sampleBound, NetworkBike)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
