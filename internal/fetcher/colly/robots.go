package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const robotsCacheTTL = 30 * time.Minute

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsCacheTransport caches robots.txt responses per host so a paginated
// crawl does not re-probe the policy for every page. Transient TLS failures
// on the probe are retried; if they persist the crawl proceeds with a
// synthetic allow-all policy rather than aborting the whole task.
type robotsCacheTransport struct {
	base http.RoundTripper

	mu    sync.Mutex
	cache map[string]robotsCacheEntry
}

type robotsCacheEntry struct {
	statusCode int
	body       []byte
	fetched    time.Time
}

func newRobotsCacheTransport(base http.RoundTripper) *robotsCacheTransport {
	return &robotsCacheTransport{
		base:  base,
		cache: make(map[string]robotsCacheEntry),
	}
}

func (t *robotsCacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}

	host := req.URL.Host
	if entry, ok := t.lookup(host); ok {
		return entry.response(req), nil
	}

	entry, err := t.probe(req)
	if err != nil {
		return nil, err
	}
	t.store(host, entry)
	return entry.response(req), nil
}

func (t *robotsCacheTransport) lookup(host string) (robotsCacheEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache[host]
	if !ok || time.Since(entry.fetched) > robotsCacheTTL {
		return robotsCacheEntry{}, false
	}
	return entry, true
}

func (t *robotsCacheTransport) store(host string, entry robotsCacheEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache[host] = entry
}

func (t *robotsCacheTransport) probe(req *http.Request) (robotsCacheEntry, error) {
	maxAttempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.base.RoundTrip(cloneRequest(req))
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			closeErr := resp.Body.Close()
			if readErr != nil {
				return robotsCacheEntry{}, fmt.Errorf("read robots body: %w", readErr)
			}
			if closeErr != nil {
				return robotsCacheEntry{}, fmt.Errorf("close robots body: %w", closeErr)
			}
			return robotsCacheEntry{
				statusCode: resp.StatusCode,
				body:       body,
				fetched:    time.Now(),
			}, nil
		}
		if !isTransientTLSError(err) {
			return robotsCacheEntry{}, fmt.Errorf("robots probe: %w", err)
		}
		if attempt == maxAttempts-1 {
			return allowAllEntry(), nil
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return robotsCacheEntry{}, fmt.Errorf("robots probe backoff: %w", err)
		}
	}
	return robotsCacheEntry{}, errors.New("robots probe exhausted retries")
}

func (e robotsCacheEntry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    e.statusCode,
		Status:        http.StatusText(e.statusCode),
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func allowAllEntry() robotsCacheEntry {
	return robotsCacheEntry{
		statusCode: http.StatusOK,
		body:       []byte("User-agent: *\nAllow: /"),
		fetched:    time.Now(),
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func cloneRequest(req *http.Request) *http.Request {
	if req == nil {
		return nil
	}
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
