// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return false
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests (default: 120s)
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "qwen2.5-coder:7b")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      120 * time.Second,
		DefaultModel: "qwen2.5-coder:7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
// It provides methods for health checks, model listing, and chat
// operations, and is safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClient()
//	if err := client.CheckRunning(ctx); err != nil {
//	    log.Fatal("Ollama not available:", err)
//	}
//	resp, err := client.Chat(ctx, "qwen2.5-coder:7b", messages)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "qwen2.5-coder:7b"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// SetModel updates the default model.
func (c *Client) SetModel(model string) {
	c.config.DefaultModel = model
}

// GetDefaultModel returns the current default model.
func (c *Client) GetDefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// GetModel retrieves information about a specific model.
func (c *Client) GetModel(ctx context.Context, name string) (*ShowModelResponse, error) {
	body, err := json.Marshal(ShowModelRequest{Name: name})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to get model: " + resp.Status,
		}
	}

	var result ShowModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return &result, nil
}

// ModelExists checks if a model is available locally.
func (c *Client) ModelExists(ctx context.Context, model string) bool {
	_, err := c.GetModel(ctx, model)
	return err == nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a chat request and returns the complete response (non-streaming).
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp, "chat request failed")
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return &result, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
type StreamCallback func(chunk StreamChunk)

// ChatStream sends a streaming chat request and calls the callback for
// each chunk. The callback is called synchronously in the order chunks
// are received. Returns when streaming is complete or an error occurs.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	// Use a client without timeout for streaming; lifetime is governed
	// by ctx.
	// SECURITY: TLS not required - Ollama runs locally over HTTP.
	streamClient := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp, "stream request failed")
	}

	reader := NewStreamReader(resp.Body)
	return reader.Process(ctx, callback)
}

// ChatStreamChan sends a streaming chat request and returns a channel of
// chunks. The channel is closed when streaming is complete or an error
// occurs. Errors are delivered as chunks with the Error field set.
func (c *Client) ChatStreamChan(ctx context.Context, model string, messages []Message) <-chan StreamChunk {
	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, model, messages, func(chunk StreamChunk) {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		})

		if err != nil {
			select {
			case ch <- StreamChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// decodeAPIError reads an error body from the server, falling back to
// the HTTP status.
func decodeAPIError(resp *http.Response, prefix string) error {
	var serverErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&serverErr); err == nil && serverErr.Error != "" {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: serverErr.Error,
		}
	}
	return &ClientError{
		Type:    ErrTypeInvalidResponse,
		Message: prefix + ": " + resp.Status,
	}
}
