// Package fetch retrieves the seminar listing page as raw markup. It is
// the first of the pipeline's two I/O boundaries; a transport failure
// here aborts the run before any state is touched.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "seminarcal/internal/log"
)

// Fetcher retrieves the listing page.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// cacheEntry holds the conditional-request metadata for the page.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HTTPFetcher fetches the page with a plain GET, honoring ETag and
// Last-Modified against a small disk cache so an unchanged page costs one
// conditional request. A network failure with a warm cache serves the
// cached body: stale markup only means no new rows this run, which the
// next run corrects.
type HTTPFetcher struct {
	url      string
	client   *http.Client
	cacheDir string
}

func NewHTTPFetcher(url, cacheDir string, timeout time.Duration) *HTTPFetcher {
	if cacheDir == "" {
		cacheDir = "./var/page-cache"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.url == "" {
		return nil, errors.New("page URL is empty")
	}

	cachePath := f.cachePath()
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.html"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("page fetch network error, using cached body", err, "url", f.url)
			return cachedBody, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		newMeta := cacheEntry{
			URL:          f.url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			appLog.Error("page cache save failed", err, "url", f.url)
		}
		appLog.Info("page fetched", "url", f.url, "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("page not modified; using cache", "url", f.url)
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("page fetch non-OK, using cached body", errors.New(resp.Status), "url", f.url, "status", resp.StatusCode)
			return cachedBody, nil
		}
		return nil, fmt.Errorf("fetch %s: %s", f.url, resp.Status)
	}
}

func (f *HTTPFetcher) cachePath() string {
	sum := sha256.Sum256([]byte(f.url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.html"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
