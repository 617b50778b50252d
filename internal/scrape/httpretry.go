package scrape

import (
	"net/http"
	"strconv"
	"time"
)

// defaultRetryDelay is the backoff used when a retryable response carries no
// usable Retry-After header.
const defaultRetryDelay = 2 * time.Second

// DoWithRetry issues the request and retries it exactly once when the server
// answers 429 or a 5xx, waiting out Retry-After (or a short default) first.
// build is called per attempt so request bodies are fresh each time.
func DoWithRetry(client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil || !retryableStatus(resp.StatusCode) {
		return resp, err
	}
	delay := retryAfter(resp.Header.Get("Retry-After"))
	_ = resp.Body.Close()

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case <-time.After(delay):
	}

	req, err = build()
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// retryAfter parses a Retry-After value, which is either delta-seconds or an
// HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryDelay
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return defaultRetryDelay
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryDelay
}
