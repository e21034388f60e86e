// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the client for OpenAI-compatible chat endpoints.
//
// Any server speaking the OpenAI chat completions protocol works: the
// hosted OpenAI API, OpenRouter, llama.cpp server, vLLM, LM Studio and
// others. The client handles retries with exponential backoff, client-side
// rate limiting, and both buffered and streaming completions.
package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants.
const (
	// DefaultBaseURL is the default API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// defaultRequestsPerMinute is the client-side rate limit.
	defaultRequestsPerMinute = 60
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for buffered requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests.
	// No client timeout - streaming lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Sentinel errors for common failure modes.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// =============================================================================
// CLIENT
// =============================================================================

// Client communicates with an OpenAI-compatible chat completions endpoint.
//
// The zero value is not usable; construct with NewClient. Configuration
// setters return the client so they chain.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxRetries int
	timeout    time.Duration
	userAgent  string

	// limiter throttles outgoing requests client-side.
	limiter *rate.Limiter
}

// NewClient creates a new client with the given API key.
//
// An empty API key is allowed for endpoints that do not require
// authentication (local llama.cpp, LM Studio); hosted endpoints will
// reject such requests with ErrAuthFailed.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: sharedHTTPClient,
		model:      DefaultModel,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		userAgent:  "forgechat/0.1.0",
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerMinute)/60.0, defaultRequestsPerMinute/6),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets the request timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	c.maxRetries = maxRetries
	return c
}

// WithRateLimit sets the client-side request rate limit in requests per
// minute. Zero disables throttling.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = nil
		return c
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perMinute)/60.0, burst)
	return c
}

// SetModel sets the model to use for chat requests.
func (c *Client) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *Client) GetModel() string {
	return c.model
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a displayable form of the API key.
// SECURITY: Never exposes key fragments - uses a fingerprint instead.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.KeyFingerprint())
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key,
// safe for logs.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// setHeaders sets the required headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// logRequest logs an API request without exposing sensitive data.
// Headers may contain auth and bodies may contain user content, so only
// method and path are logged.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
}

// logResponse logs an API response with duration.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// wait blocks until the rate limiter admits a request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// readResponse reads a response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat performs a buffered chat completion request with the given messages.
//
// Transient errors (5xx, rate limits) are retried with exponential
// backoff; authentication and other 4xx failures are terminal.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	return c.ChatWithRequest(ctx, &ChatRequest{
		Model:    c.model,
		Messages: messages,
	})
}

// ChatWithModel performs a chat completion with a specific model without
// mutating the client.
func (c *Client) ChatWithModel(ctx context.Context, model string, messages []ChatMessage) (*ChatResponse, error) {
	return c.ChatWithRequest(ctx, &ChatRequest{
		Model:    model,
		Messages: messages,
	})
}

// ChatWithRequest performs a buffered chat completion with full request
// control (temperature, tools, stop sequences).
func (c *Client) ChatWithRequest(ctx context.Context, reqBody *ChatRequest) (*ChatResponse, error) {
	if reqBody.Model == "" {
		reqBody.Model = c.model
	}
	reqBody.Stream = false

	url := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffFor(lastErr, attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		response, err := c.doRequest(ctx, url, reqBody)
		if err != nil {
			if c.isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return response, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, errors.New("max retries exceeded")
}

// Generate performs a simple text generation with a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (*ChatResponse, error) {
	return c.Chat(ctx, []ChatMessage{NewUserMessage(prompt)})
}

// doRequest performs a single HTTP request to the chat completions endpoint.
func (c *Client) doRequest(ctx context.Context, requestURL string, reqBody *ChatRequest) (*ChatResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, requestURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	c.logRequest(req)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chatResp, nil
}

// =============================================================================
// ERROR HANDLING
// =============================================================================

// handleErrorResponse converts HTTP error responses to Go errors.
func (c *Client) handleErrorResponse(resp *http.Response, body []byte) error {
	statusCode := resp.StatusCode

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		wrapped := &APIError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}

		switch statusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, wrapped.Message)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrInsufficientCredits, wrapped.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrModelNotFound, wrapped.Message)
		case http.StatusTooManyRequests:
			return rateLimitError(resp, wrapped.Message)
		default:
			return wrapped
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return rateLimitError(resp, "")
	default:
		return &APIError{
			Message: string(body),
			Status:  statusCode,
		}
	}
}

// rateLimitError builds a RateLimitError from the Retry-After header
// when present, falling back to the plain sentinel.
func rateLimitError(resp *http.Response, message string) error {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		if message != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return ErrRateLimited
	}

	if d, ok := parseRetryAfter(retryAfter); ok {
		return &RateLimitError{RetryAfter: d}
	}
	return ErrRateLimited
}

// parseRetryAfter parses the Retry-After header as either seconds or an
// HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	var seconds int
	if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t), true
	}
	return 0, false
}

// RateLimitError represents a rate limit error with retry information.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// isRetryable determines if an error should trigger a retry.
func (c *Client) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}

	return false
}

// calculateBackoff returns the delay to wait before the next retry.
// Exponential: 500ms, 1s, 2s, ... capped at retryMaxDelay. When the
// server supplied Retry-After, that wins.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// backoffFor returns the retry delay for an error, honoring Retry-After.
func (c *Client) backoffFor(err error, attempt int) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		if rle.RetryAfter > retryMaxDelay {
			return retryMaxDelay
		}
		return rle.RetryAfter
	}
	return c.calculateBackoff(attempt)
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels retrieves the list of models available at the endpoint.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	url := c.baseURL + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, body)
	}

	var mr modelsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return mr.Data, nil
}
