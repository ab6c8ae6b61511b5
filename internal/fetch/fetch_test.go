package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherCachesConditionally(t *testing.T) {
	const page = "<html><body><table><tr><td>x</td></tr></table></body></html>"
	var requests int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(page))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, t.TempDir(), 5*time.Second)

	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page, string(body))

	// Second fetch sends the ETag and serves the cached body on 304.
	body, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
	assert.Equal(t, 2, requests)
}

func TestHTTPFetcherFallsBackToCacheOnNetworkError(t *testing.T) {
	const page = "<html><body>cached</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(page))
	}))

	cacheDir := t.TempDir()
	f := NewHTTPFetcher(srv.URL, cacheDir, 5*time.Second)

	_, err := f.Fetch(context.Background())
	require.NoError(t, err)

	// Server gone: the warm cache keeps the run alive.
	srv.Close()
	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, page, string(body))
}

func TestHTTPFetcherColdCacheNetworkErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := NewHTTPFetcher(srv.URL, t.TempDir(), 2*time.Second)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPFetcherServerErrorWithoutCacheFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, t.TempDir(), 5*time.Second)
	_, err := f.Fetch(context.Background())
	assert.Error(t, err)
}
