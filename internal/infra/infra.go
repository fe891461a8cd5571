// Package infra provides shared infrastructure components used across
// the application: caching, rate limiting, retries, and HTTP utilities.
package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is the user agent string used for outbound HTTP requests.
const DefaultUserAgent = "diligence/1.0 (+https://github.com/seenimoa/diligence)"

// HTTPClient is a pre-configured HTTP client with reasonable timeouts.
// Per-call deadlines come from the request context.
var HTTPClient = &http.Client{
	Timeout: 90 * time.Second,
}

// HTTPError wraps a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// DoGet performs a GET request with the given URL and headers, returning the response body.
// The caller is responsible for closing the returned ReadCloser.
func DoGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, int, error) {
	return DoRequest(ctx, http.MethodGet, url, nil, headers)
}

// DoRequest performs an HTTP request. Responses with status >= 400 are
// returned as *HTTPError carrying up to 1 KiB of the body.
func DoRequest(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, */*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP %s %s: %w", method, url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}

	return resp.Body, resp.StatusCode, nil
}

// FetchJSON performs a GET and decodes the JSON body into dest.
func FetchJSON(ctx context.Context, url string, headers map[string]string, dest any) error {
	body, _, err := DoGet(ctx, url, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}

// DecodeError reports a response body that could not be decoded.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
