// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role     string `json:"role"`               // "user", "assistant", "system", "tool"
	Content  string `json:"content"`            // The message content
	Thinking string `json:"thinking,omitempty"` // Thinking output from reasoning models
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`  // Response format (e.g., "json")
	Options  *Options  `json:"options,omitempty"` // Model parameters
	Think    *bool     `json:"think,omitempty"`   // Enable thinking for reasoning models
}

// Options contains model parameters for inference.
type Options struct {
	Temperature   float64  `json:"temperature,omitempty"`    // 0.0-2.0, default 0.8
	TopK          int      `json:"top_k,omitempty"`          // Default 40
	TopP          float64  `json:"top_p,omitempty"`          // 0.0-1.0, default 0.9
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"` // Default 1.1
	NumCtx        int      `json:"num_ctx,omitempty"`        // Context window size
	NumPredict    int      `json:"num_predict,omitempty"`    // Max tokens, -1 for unlimited
	Stop          []string `json:"stop,omitempty"`           // Stop sequences
	Seed          int      `json:"seed,omitempty"`           // Random seed
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the response from the /api/chat endpoint.
type ChatResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Message            Message   `json:"message"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"`       // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`        // nanoseconds
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`    // tokens in prompt
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"` // nanoseconds
	EvalCount          int       `json:"eval_count,omitempty"`           // tokens generated
	EvalDuration       int64     `json:"eval_duration,omitempty"`        // nanoseconds
}

// TokensPerSecond calculates the generation speed from a response.
func (r *ChatResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	seconds := float64(r.EvalDuration) / 1e9
	return float64(r.EvalCount) / seconds
}

// TotalTime returns the total generation time.
func (r *ChatResponse) TotalTime() time.Duration {
	return time.Duration(r.TotalDuration)
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a locally available model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case m.Size >= GB:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/GB)
	case m.Size >= MB:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/MB)
	case m.Size >= KB:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/KB)
	default:
		return fmt.Sprintf("%d B", m.Size)
	}
}

// ListModelsResponse is the response from the /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ShowModelRequest is the request for the /api/show endpoint.
type ShowModelRequest struct {
	Name string `json:"name"`
}

// ShowModelResponse is the response from the /api/show endpoint.
type ShowModelResponse struct {
	License    string       `json:"license"`
	Modelfile  string       `json:"modelfile"`
	Parameters string       `json:"parameters"`
	Template   string       `json:"template"`
	Details    ModelDetails `json:"details"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk represents a single chunk from a streaming response.
type StreamChunk struct {
	// Content from this chunk's message.
	Content string

	// Thinking output from this chunk; kept separate from Content.
	Thinking string

	// Timing information (only populated on the final chunk).
	Done               bool
	DoneReason         string
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	// Token counts (only populated on the final chunk).
	PromptTokens     int
	CompletionTokens int

	// Model information.
	Model string

	// Error if any occurred during streaming.
	Error error
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// apiError is the error body the Ollama server returns.
type apiError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}
