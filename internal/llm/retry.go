package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ledgerline/invoice2csv/internal/common"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// shouldRetry reports whether a status code indicates a transient failure.
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// backoffFor computes the exponential backoff for an attempt, capped at maxBackoff.
func backoffFor(attempt int) time.Duration {
	d := float64(initialBackoff) * math.Pow(2, float64(attempt))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}

// sendWithRetry posts a JSON body and retries transport errors and retryable
// status codes with exponential backoff. Exhausting the budget returns an
// error wrapping common.ErrTransientAPI; non-retryable statuses fail
// immediately with the response body in the message.
func (c *Client) sendWithRetry(ctx context.Context, rid, url string, body any, headers map[string]string) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		raw, status, err := c.sendOnce(ctx, url, bs, headers)
		if err == nil && status/100 == 2 {
			return raw, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d: %s", status, truncate(string(raw), 500))
			if !shouldRetry(status) {
				return nil, lastErr
			}
		}

		if attempt == c.cfg.MaxRetries-1 {
			break
		}
		backoff := backoffFor(attempt)
		c.log.Warn("llm.http.retry",
			"req_id", rid,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff_ms", backoff.Milliseconds(),
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", common.ErrTransientAPI, c.cfg.MaxRetries, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("llm.http.response_body_close_error", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
