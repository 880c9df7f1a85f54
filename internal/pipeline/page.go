package pipeline

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// pageBodyLimit caps how much of a fetched page is kept for link harvesting.
const pageBodyLimit = 1 << 20

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// PageFetcher downloads the raw page behind a link as a secondary text
// source. Some platforms serve a stripped page to non-browser agents, hence
// the browser-like user agent.
type PageFetcher struct {
	HTTPClient *http.Client
	UserAgent  string
}

// NewPageFetcher returns a fetcher with the given timeout (10s when zero).
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &PageFetcher{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  defaultUserAgent,
	}
}

// Fetch returns the page body as text. Failures are expected and non-fatal
// for the pipeline; callers proceed with empty page content.
func (f *PageFetcher) Fetch(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", errors.Wrap(err, "page: build request")
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "page: fetch")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("page: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, pageBodyLimit))
	if err != nil {
		return "", errors.Wrap(err, "page: read body")
	}
	return string(body), nil
}
