/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

/*
HTTP Client Abstraction Layer

This package provides a reusable HTTP client with built-in retry logic, exponential backoff,
and automatic JSON marshaling/unmarshaling. It wraps hashicorp/go-retryablehttp to provide:

1. Automatic retries on transient errors (network issues, 5xx errors, 429 rate limiting)
2. Exponential backoff between retries (RetryWaitMin, doubled per attempt)
3. JSON marshaling/unmarshaling handled automatically
4. Observability through structured logging
5. Context support for cancellation and timeouts

Non-2xx responses are returned as *StatusError so that callers can tell an
auth rejection from a validation failure or an exhausted retry budget.
*/

// Client is a wrapper around go-retryablehttp with automatic retry logic
// and built-in support for JSON marshaling/unmarshaling
type Client struct {
	retryClient *retryablehttp.Client
	baseURL     string
	headers     map[string]string
}

// StatusError is returned for a non-2xx response. Retryable statuses only
// surface here once the retry budget is spent.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Attempts   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d after %d attempt(s): %s", e.Method, e.URL, e.StatusCode, e.Attempts, e.Body)
}

// NewClient creates a new HTTP client with retry capabilities
func NewClient(config Config) *Client {
	// Start with default config and merge provided values
	defaultCfg := DefaultConfig()
	if config.Timeout == 0 {
		config.Timeout = defaultCfg.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultCfg.MaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryWaitMin == 0 {
		config.RetryWaitMin = defaultCfg.RetryWaitMin
	}
	if config.RetryWaitMax == 0 {
		config.RetryWaitMax = defaultCfg.RetryWaitMax
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = defaultCfg.MaxIdleConns
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = defaultCfg.IdleConnTimeout
	}
	if config.TLSHandshakeTimeout == 0 {
		config.TLSHandshakeTimeout = defaultCfg.TLSHandshakeTimeout
	}

	// Create the underlying HTTP client with custom transport
	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        config.MaxIdleConns,
			IdleConnTimeout:     config.IdleConnTimeout,
			TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		},
	}

	// Create retryable HTTP client
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = config.MaxRetries
	retryClient.RetryWaitMin = config.RetryWaitMin
	retryClient.RetryWaitMax = config.RetryWaitMax
	retryClient.Backoff = retryablehttp.DefaultBackoff

	// Disable default logging from retryablehttp (added our own)
	retryClient.Logger = nil

	// Adding custom retry policy and log hook enables us to keep the logs in the format we want.
	retryClient.CheckRetry = customRetryPolicy
	retryClient.RequestLogHook = requestLogHook

	// Hand back the last response as-is once retries are exhausted so that the
	// status code and body reach the caller.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		retryClient: retryClient,
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		headers:     config.Headers,
	}
}

// Get performs a GET request and unmarshals the JSON response into the provided response object
// Returns the HTTP status code and any error encountered
func (c *Client) Get(ctx context.Context, path string, response interface{}) (int, error) {
	return c.do(ctx, http.MethodGet, path, nil, response)
}

// Post performs a POST request with the given payload (marshaled as JSON) and
// unmarshals the JSON response into response when it is non-nil.
// Returns the HTTP status code and any error encountered
func (c *Client) Post(ctx context.Context, path string, payload interface{}, response interface{}) (int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal JSON payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, jsonData, response)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, response interface{}) (int, error) {
	url := c.buildURL(path)

	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	attempts := 0
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", method, err)
	}

	c.addHeaders(req)

	startTime := time.Now()
	resp, err := c.retryClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		log.Warnf("%s request failed: url=%s, duration=%s, attempts=%d, error=%v", method, url, duration, attempts, err)
		return 0, fmt.Errorf("%s request failed after %d attempt(s): %w", method, attempts, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Infof("%s request completed: url=%s, status=%d, duration=%s", method, url, resp.StatusCode, duration)

	// Check for non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Attempts:   attempts,
		}
	}

	// Unmarshal JSON response if response object is provided
	if response != nil {
		if raw, ok := response.(*[]byte); ok {
			*raw = respBody
			return resp.StatusCode, nil
		}
		if err := json.Unmarshal(respBody, response); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to unmarshal JSON response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// buildURL combines baseURL and path
func (c *Client) buildURL(path string) string {
	if c.baseURL == "" {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// addHeaders adds common headers to the request
func (c *Client) addHeaders(req *retryablehttp.Request) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	// Ensure Content-Type is set for JSON requests
	if req.Header.Get("Content-Type") == "" && (req.Method == "POST" || req.Method == "PUT") {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

type attemptsKey struct{}

// customRetryPolicy determines if a request should be retried
// This wraps the default policy with additional logging
func customRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// Use default retry policy from go-retryablehttp
	shouldRetry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)

	if shouldRetry {
		reason := "unknown"
		if err != nil {
			reason = fmt.Sprintf("error: %v", err)
		} else if resp != nil {
			reason = fmt.Sprintf("status: %d", resp.StatusCode)
		}
		log.Debugf("Retrying request due to: %s", reason)
	}

	return shouldRetry, checkErr
}

// requestLogHook logs each request attempt for observability
func requestLogHook(logger retryablehttp.Logger, req *http.Request, attemptNum int) {
	if n, ok := req.Context().Value(attemptsKey{}).(*int); ok {
		*n = attemptNum + 1
	}
	if attemptNum == 0 {
		log.Infof("Attempting request: method=%s, url=%s", req.Method, req.URL.String())
	} else {
		log.Infof("Retrying request: attempt=%d, method=%s, url=%s", attemptNum+1, req.Method, req.URL.String())
	}
}
