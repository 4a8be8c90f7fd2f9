package vendors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxPayloadBytes = 32 << 20

// Fetcher performs vendor GETs with a per-attempt timeout and a single
// retry on transport errors and 5xx/429 responses.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	retryDelay time.Duration
}

func NewFetcher(client *http.Client, timeout, retryDelay time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{client: client, timeout: timeout, retryDelay: retryDelay}
}

func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create vendor request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("vendor request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
		if err != nil {
			return fmt.Errorf("failed to read vendor response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("vendor returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("vendor returned status %d", resp.StatusCode))
		}

		body = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryDelay), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}
