package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "seminarcal/internal/log"
)

const defaultBrowserTimeout = 30 * time.Second

// BrowserFetcher renders the page in headless Chromium and returns the
// resulting DOM as markup. Needed when the listing table is built
// client-side and a plain GET only returns a script shell.
type BrowserFetcher struct {
	url     string
	timeout time.Duration

	// waitSelector must become visible before the DOM is captured.
	waitSelector string
}

func NewBrowserFetcher(url string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	return &BrowserFetcher{
		url:          url,
		timeout:      timeout,
		waitSelector: "table",
	}
}

func (f *BrowserFetcher) Fetch(parentCtx context.Context) ([]byte, error) {
	if f.url == "" {
		return nil, errors.New("page URL is empty")
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, f.timeout)
	defer timeoutCancel()

	var markup string
	tasks := chromedp.Tasks{
		chromedp.Navigate(f.url),
		chromedp.WaitVisible(f.waitSelector, chromedp.ByQuery),
		// Small extra delay so late row inserts settle.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("browser fetch: %w", err)
	}

	appLog.Info("page rendered in browser", "url", f.url, "bytes", len(markup))
	return []byte(markup), nil
}
