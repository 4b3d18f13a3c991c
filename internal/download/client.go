package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type (
	// Origin performs the HTTP requests made against a download source.
	Origin interface {
		Probe(ctx context.Context, url string) (ProbeResult, error)
		Fetch(ctx context.Context, req FetchRequest) (io.ReadCloser, error)
	}

	// FetchRequest describes the byte range to fetch. End is inclusive, and
	// -1 requests everything from Start. When Whole is true the range covers
	// the entire resource, and so an origin which ignores the Range header
	// is acceptable.
	FetchRequest struct {
		URL   string
		Start int64
		End   int64
		Whole bool
	}

	httpOrigin struct {
		client *http.Client
	}
)

func NewHTTPOrigin(client *http.Client) *httpOrigin {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  true,
			},
		}
	}

	return &httpOrigin{client: client}
}

// Probe determines the size of the resource and whether the origin honours
// byte ranges. A HEAD request is tried first; origins which reject HEAD
// are probed with a single byte ranged GET instead.
func (origin *httpOrigin) Probe(ctx context.Context, url string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := origin.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden:
		return origin.probeWithRange(ctx, url)
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return ProbeResult{}, err
	}

	return ProbeResult{
		Size:          resp.ContentLength,
		AcceptsRanges: strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

func (origin *httpOrigin) probeWithRange(ctx context.Context, url string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := origin.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return ProbeResult{}, err
	}

	result := ProbeResult{Size: -1, ContentType: resp.Header.Get("Content-Type")}
	if resp.StatusCode == http.StatusPartialContent {
		_, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return ProbeResult{}, err
		}

		result.Size = total
		result.AcceptsRanges = true
	} else {
		result.Size = resp.ContentLength
	}

	return result, nil
}

// Fetch opens a streamed GET for the range requested. The caller must
// close the returned body.
func (origin *httpOrigin) Fetch(ctx context.Context, fetch FetchRequest) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetch.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	ranged := fetch.Start > 0 || fetch.End >= 0
	if ranged {
		if fetch.End >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", fetch.Start, fetch.End))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", fetch.Start))
		}
	}

	resp, err := origin.client.Do(req)
	if err != nil {
		return nil, err
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent:
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			start, _, _, err := ParseContentRange(cr)
			if err != nil || start != fetch.Start {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: asked for offset %d, got Content-Range %q", ErrRangeIgnored, fetch.Start, cr)
			}
		}
	case ranged && !(fetch.Start == 0 && fetch.Whole):
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d for range starting at %d", ErrRangeIgnored, resp.StatusCode, fetch.Start)
	}

	return resp.Body, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %d", ErrForbidden, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("%w: unexpected status code %d", ErrClientError, code)
	}
}

// isPermanent reports whether a chunk error signals that retrying the
// same request cannot succeed.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRangeNotSatisfiable) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRangeIgnored) ||
		errors.Is(err, ErrClientError)
}

// backoffDelay returns an exponentially increasing duration, capped at max,
// with jitter of 0.5 to 1.5 times the delay applied.
func backoffDelay(base, maxBackoff time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	backoff := base * time.Duration(1<<uint(min(attempt-1, 30)))
	if maxBackoff > 0 && backoff > maxBackoff {
		backoff = maxBackoff
	}

	return time.Duration(float64(backoff) * (0.5 + rand.Float64()))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(strings.TrimSpace(header), "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
