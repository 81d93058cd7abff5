package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kelsos/realms-tvl/internal/logger"
)

// HTTPError is returned for any non-200 response.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the upstream asked us to slow down.
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// APIClient handles HTTP communication with JSON APIs such as the price oracle
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client for the given base URL
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BuildURL constructs a full URL for the given endpoint and query parameters
func (c *APIClient) BuildURL(endpoint string, params map[string]string) string {
	return BuildURLWithParams(c.baseURL+endpoint, params)
}

// GetRaw makes a GET request and returns the raw response body
func (c *APIClient) GetRaw(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	return c.request(ctx, http.MethodGet, c.BuildURL(endpoint, params))
}

// request is the core HTTP request method
func (c *APIClient) request(ctx context.Context, method, url string) ([]byte, error) {
	start := time.Now()
	logger.Debug("Starting %s request to %s", method, url)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		logger.Error("Request failed after (%s) %v: %v", url, elapsed, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	logger.Debug("Request to %s completed in %v with status %d", url, elapsed, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
		if httpErr.RateLimited() {
			logger.Debug("%s: rate limited", url)
		} else {
			logger.Error("%s: HTTP error %d: %s", url, resp.StatusCode, string(body))
		}
		return nil, httpErr
	}

	return body, nil
}

// BuildURLWithParams properly builds a URL with query parameters
func BuildURLWithParams(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}

	parts := strings.SplitN(endpoint, "?", 2)
	baseURL := parts[0]

	values := url.Values{}
	if len(parts) > 1 {
		existingParams, _ := url.ParseQuery(parts[1])
		values = existingParams
	}

	for key, value := range params {
		values.Set(key, value)
	}

	if len(values) > 0 {
		return baseURL + "?" + values.Encode()
	}
	return baseURL
}
