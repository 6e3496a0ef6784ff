// Package httpx fetches off-chain JSON documents, such as token metadata,
// with bounded retries.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
	"github.com/zephyra-labs/zephyra-cli/internal/version"
)

// MaxBodyBytes bounds any off-chain document read.
const MaxBodyBytes = 2 << 20

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.UserAgent(),
	}
}

// GetJSON fetches url and decodes the JSON body into out. Gateway overload
// (429, 5xx) and transport errors are retried; other statuses are final.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode JSON document", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}
		body, retry, err := c.attempt(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// attempt performs one request and reports whether a failure is worth
// retrying.
func (c *Client) attempt(req *http.Request) ([]byte, bool, error) {
	resp, err := c.httpClient.Do(req.Clone(req.Context()))
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, true, clierr.Wrap(clierr.CodeUnavailable, "document fetch timed out", err)
		}
		return nil, true, clierr.Wrap(clierr.CodeUnavailable, "document fetch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s unavailable (status %d)", req.URL.Host, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s returned status %d", req.URL.Host, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, true, clierr.Wrap(clierr.CodeUnavailable, "read document", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, false, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("document from %s exceeds %d bytes", req.URL.Host, MaxBodyBytes))
	}
	if len(body) == 0 {
		return nil, false, clierr.New(clierr.CodeUnavailable, "empty document")
	}
	return body, false, nil
}

func backoff(attempt int) time.Duration {
	d := 120 * time.Millisecond << uint(attempt-1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d + time.Duration(rand.Intn(75))*time.Millisecond
}
