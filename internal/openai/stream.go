// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// =============================================================================
// STREAMING TYPES
// =============================================================================

// DeltaToolCall is a streamed tool call fragment. Fragments for the same
// Index are concatenated in arrival order to rebuild the full call.
type DeltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// Delta is the incremental payload of a streamed choice.
type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []DeltaToolCall `json:"tool_calls,omitempty"`
}

// ReasoningText returns whichever reasoning field the provider populated.
func (d *Delta) ReasoningText() string {
	if d.Reasoning != "" {
		return d.Reasoning
	}
	return d.ReasoningContent
}

// StreamChunk represents a single chunk from the streaming response.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta        Delta  `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
	Error error  `json:"-"` // Error field for channel-based streaming
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetReasoning returns the reasoning text from the first choice's delta.
func (c *StreamChunk) GetReasoning() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.ReasoningText()
	}
	return ""
}

// GetToolCalls returns tool call fragments from the first choice's delta.
func (c *StreamChunk) GetToolCalls() []DeltaToolCall {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.ToolCalls
	}
	return nil
}

// IsDone returns true if the stream has finished.
func (c *StreamChunk) IsDone() bool {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason != ""
	}
	return false
}

// GetFinishReason returns the finish reason if streaming is complete.
func (c *StreamChunk) GetFinishReason() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason
	}
	return ""
}

// HasError returns true if the chunk contains an error.
func (c *StreamChunk) HasError() bool {
	return c.Error != nil
}

// StreamCallback is the function type called for each received chunk.
type StreamCallback func(chunk StreamChunk)

// StreamError represents an error that occurred during streaming,
// preserving any partial content received before the error.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream, returning the event
// type and joined data lines. Comment lines and id/retry fields are
// ignored. An event larger than MaxEventSize is an error. Returns io.EOF
// when the stream ends; a final event without a trailing blank line is
// still delivered before EOF.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(line) > 0 {
					// Missing final newline: process the last line.
					if rest := parseSSELine(bytes.TrimRight(line, "\r\n"), &eventType); rest != nil {
						dataLines = append(dataLines, rest)
					}
				}
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		size += len(line)
		if size > MaxEventSize {
			return "", nil, fmt.Errorf("sse event too large: %d bytes", size)
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if rest := parseSSELine(line, &eventType); rest != nil {
			dataLines = append(dataLines, rest)
		}
	}
}

// parseSSELine parses a single SSE field line, updating eventType in place
// and returning the data payload for data: lines, or nil otherwise.
func parseSSELine(line []byte, eventType *string) []byte {
	switch {
	case bytes.HasPrefix(line, []byte(":")):
		// Comment line, ignore.
		return nil
	case bytes.HasPrefix(line, []byte("event:")):
		*eventType = string(bytes.TrimSpace(line[6:]))
		return nil
	case bytes.HasPrefix(line, []byte("data:")):
		return bytes.TrimSpace(line[5:])
	default:
		// id:, retry: and unknown fields are ignored.
		return nil
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion request. The callback
// is called synchronously for each chunk in arrival order. Returns when
// the stream completes, the context is cancelled, or an error occurs.
func (c *Client) ChatStream(ctx context.Context, messages []ChatMessage, callback StreamCallback) error {
	return c.ChatStreamWithRequest(ctx, &ChatRequest{
		Model:    c.model,
		Messages: messages,
	}, callback)
}

// ChatStreamWithRequest is ChatStream with full request control.
func (c *Client) ChatStreamWithRequest(ctx context.Context, reqBody *ChatRequest, callback StreamCallback) error {
	resp, err := c.sendStreamRequest(ctx, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.processStream(ctx, resp.Body, callback)
}

// sendStreamRequest sends the streaming HTTP request and returns the
// response, with error responses already converted.
func (c *Client) sendStreamRequest(ctx context.Context, reqBody *ChatRequest) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	if reqBody.Model == "" {
		reqBody.Model = c.model
	}
	reqBody.Stream = true

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Streaming lifetime is governed by ctx, not a client timeout.
	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp, body)
	}

	return resp, nil
}

// processStream reads and processes the SSE stream.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks rather than aborting the stream.
			continue
		}

		callback(chunk)

		if chunk.IsDone() {
			return nil
		}
	}
}

// =============================================================================
// STREAMING WITH RETRY
// =============================================================================

// ChatStreamWithRetry performs a streaming chat with retry on connection
// and server errors. Content received before a failed attempt is carried
// in the returned StreamError so callers can salvage partial output.
func (c *Client) ChatStreamWithRetry(ctx context.Context, messages []ChatMessage, callback StreamCallback) error {
	reqBody := &ChatRequest{
		Model:    c.model,
		Messages: messages,
	}

	var lastErr error
	var accumulated strings.Builder

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffFor(lastErr, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.sendStreamRequest(ctx, reqBody)
		if err != nil {
			if !isStreamRetryable(err) {
				return err
			}
			lastErr = err
			continue
		}

		wrappedCallback := func(chunk StreamChunk) {
			accumulated.WriteString(chunk.GetContent())
			callback(chunk)
		}

		err = c.processStream(ctx, resp.Body, wrappedCallback)
		resp.Body.Close()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			lastErr = &StreamError{
				Partial: accumulated.String(),
				Err:     err,
			}
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return errors.New("max retries exceeded")
}

// isStreamRetryable determines if a streaming error should trigger a retry.
func isStreamRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// 4xx are terminal, 5xx retryable.
		return apiErr.Status >= 500
	}

	// Network errors are retryable.
	return true
}

// =============================================================================
// CHANNEL-BASED STREAMING
// =============================================================================

// ChatStreamChan performs a streaming chat and returns a channel of
// chunks. The channel is closed when streaming completes; errors are
// delivered as chunks with the Error field set.
func (c *Client) ChatStreamChan(ctx context.Context, messages []ChatMessage) <-chan StreamChunk {
	ch := make(chan StreamChunk, 64)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, messages, func(chunk StreamChunk) {
			select {
			case ch <- chunk:
			case <-ctx.Done():
			}
		})

		if err != nil {
			select {
			case ch <- StreamChunk{Error: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// ChatStreamAccumulate performs a streaming chat but returns the complete
// response content at the end. Useful when the caller wants streaming for
// liveness but only needs the full text.
func (c *Client) ChatStreamAccumulate(ctx context.Context, messages []ChatMessage) (string, error) {
	acc := NewStreamAccumulator()

	err := c.ChatStream(ctx, messages, acc.Callback())
	if err != nil {
		var streamErr *StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			return streamErr.Partial, err
		}
		return acc.Content(), err
	}

	return acc.Content(), nil
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator rebuilds a complete assistant message from streamed
// deltas: content, reasoning (kept separate), and tool calls merged from
// fragments by index.
type StreamAccumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations.
	content   strings.Builder
	reasoning strings.Builder

	toolCalls    []ToolCall
	Model        string
	FinishReason string
	Usage        Usage

	TokenCount   int
	StartTime    time.Time
	FirstTokenAt time.Time
	Done         bool
	Err          error
}

// NewStreamAccumulator creates a new accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{
		StartTime: time.Now(),
	}
}

// Add processes a new chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.Err = chunk.Error
		a.Done = true
		return
	}

	if content := chunk.GetContent(); content != "" {
		a.TokenCount++
		if a.FirstTokenAt.IsZero() {
			a.FirstTokenAt = time.Now()
		}
		a.content.WriteString(content)
	}

	if reasoning := chunk.GetReasoning(); reasoning != "" {
		if a.FirstTokenAt.IsZero() {
			a.FirstTokenAt = time.Now()
		}
		a.reasoning.WriteString(reasoning)
	}

	for _, tc := range chunk.GetToolCalls() {
		a.mergeToolCall(tc)
	}

	if chunk.Model != "" {
		a.Model = chunk.Model
	}
	if chunk.Usage != nil {
		a.Usage = *chunk.Usage
	}

	if chunk.IsDone() {
		a.Done = true
		a.FinishReason = chunk.GetFinishReason()
	}
}

// mergeToolCall folds a tool call fragment into the call at its index.
func (a *StreamAccumulator) mergeToolCall(tc DeltaToolCall) {
	for len(a.toolCalls) <= tc.Index {
		a.toolCalls = append(a.toolCalls, ToolCall{Type: "function"})
	}

	call := &a.toolCalls[tc.Index]
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Type != "" {
		call.Type = tc.Type
	}
	if tc.Function.Name != "" {
		call.Function.Name = tc.Function.Name
	}
	call.Function.Arguments += tc.Function.Arguments
}

// Content returns the accumulated answer content.
func (a *StreamAccumulator) Content() string {
	return a.content.String()
}

// Reasoning returns the accumulated reasoning text.
func (a *StreamAccumulator) Reasoning() string {
	return a.reasoning.String()
}

// ToolCalls returns the reconstructed tool calls.
func (a *StreamAccumulator) ToolCalls() []ToolCall {
	return a.toolCalls
}

// TTFT returns the time to first token, or zero if no token arrived.
func (a *StreamAccumulator) TTFT() time.Duration {
	if a.FirstTokenAt.IsZero() {
		return 0
	}
	return a.FirstTokenAt.Sub(a.StartTime)
}

// Callback returns a StreamCallback that accumulates into this accumulator.
func (a *StreamAccumulator) Callback() StreamCallback {
	return func(chunk StreamChunk) {
		a.Add(chunk)
	}
}
