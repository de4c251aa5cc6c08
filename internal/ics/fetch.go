package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calsync/internal/cache"
)

// maxFeedBytes caps how much of a feed body is read. Calendar feeds are
// text; anything larger than this is hostile or misconfigured.
const maxFeedBytes = 10 << 20

// FetchError reports a failed feed retrieval for one group. It never
// affects other groups; the orchestrator logs it and moves on.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the failure happened before a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d", RedactURL(e.URL), e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %s", RedactURL(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult is the outcome of fetching one group's feed.
type FetchResult struct {
	Body []byte
	Hash string
	// Unchanged is true when the content hash matches the cached hash,
	// meaning the group can be skipped entirely for this pass.
	Unchanged bool
}

// Fetcher retrieves feed bodies and consults the FeedCache to detect
// unchanged content.
type Fetcher struct {
	client *http.Client
	cache  cache.FeedCache
}

func NewFetcher(c cache.FeedCache, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  c,
	}
}

// Fetch retrieves the feed at rawURL for the given group. The URL scheme
// is normalized to https when missing. On success the body's SHA-256 is
// compared against the cached hash; a match short-circuits the group.
func (f *Fetcher) Fetch(ctx context.Context, groupID, rawURL string) (FetchResult, error) {
	url := NormalizeURL(rawURL)
	if url == "" {
		return FetchResult{}, &FetchError{URL: rawURL, Err: fmt.Errorf("empty feed URL")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "calsync/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FetchResult{}, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return FetchResult{}, &FetchError{URL: url, Err: err}
	}

	hash := HashBytes(body)

	if cached, ok, cerr := f.cache.Get(ctx, groupID); cerr != nil {
		// Cache trouble only costs us the short-circuit, not the pass.
		slog.Warn("feed cache read failed", "group", groupID, "error", cerr)
	} else if ok && cached.Hash == hash {
		slog.Debug("feed unchanged", "group", groupID, "url", RedactURL(url))
		return FetchResult{Hash: hash, Unchanged: true}, nil
	}

	return FetchResult{Body: body, Hash: hash}, nil
}

// NormalizeURL prepends https:// when the URL carries no scheme. Feeds
// are sometimes configured scheme-relative ("//host/cal.ics") or bare.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RedactURL hides path and query of a feed URL for logging; private
// feeds embed tokens there.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "...(redacted)"
	}

	j := i + 3
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
