package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// statusError carries a non-2xx response from the bridge.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bridge returned status code: %d, response: %s", e.Status, e.Body)
}

type baseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func newBaseClient(baseURL string, timeout time.Duration) *baseClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &baseClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		headers: map[string]string{"Accept": "application/json"},
	}
}

func (c *baseClient) do(ctx context.Context, method, endpoint string, body io.Reader, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Status: resp.StatusCode, Body: string(responseBody)}
	}
	return responseBody, nil
}
