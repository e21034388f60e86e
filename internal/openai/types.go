// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides the client for OpenAI-compatible chat endpoints.
package openai

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role       string     `json:"role"`              // "user", "assistant", "system", or "tool"
	Content    string     `json:"content"`           // The message content
	Name       string     `json:"name,omitempty"`    // Optional participant name
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For role "tool": which call this answers
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// NewToolMessage creates a tool result message answering the given call.
func NewToolMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// =============================================================================
// TOOL TYPES
// =============================================================================

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"` // Always "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction defines a callable function's schema.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the function name and its JSON-encoded arguments.
// During streaming the arguments arrive as fragments that are concatenated
// in order; the complete value is a JSON object.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// ChatRequest represents a request to the chat completions endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Tools       []Tool        `json:"tools,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// Usage holds token accounting reported by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is a single completion choice in a non-streaming response.
type Choice struct {
	Index        int         `json:"index"`
	Message      RichMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// RichMessage is an assistant message as returned by the endpoint,
// including reasoning content where the provider supports it.
type RichMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	Reasoning        string     `json:"reasoning,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ReasoningText returns whichever reasoning field the provider populated.
// OpenAI-compatible servers disagree on the field name.
func (m *RichMessage) ReasoningText() string {
	if m.Reasoning != "" {
		return m.Reasoning
	}
	return m.ReasoningContent
}

// ChatResponse represents a non-streaming chat completions response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// GetContent returns the content of the first choice, or empty string.
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// GetReasoning returns the reasoning text of the first choice, if any.
func (r *ChatResponse) GetReasoning() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.ReasoningText()
	}
	return ""
}

// GetToolCalls returns tool calls from the first choice.
func (r *ChatResponse) GetToolCalls() []ToolCall {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.ToolCalls
	}
	return nil
}

// GetFinishReason returns the finish reason of the first choice.
func (r *ChatResponse) GetFinishReason() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].FinishReason
	}
	return ""
}

// ModelInfo describes a model available at the endpoint.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// modelsResponse is the internal response structure for listing models.
type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// apiErrorResponse represents an error payload from the API.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// API ERROR
// =============================================================================

// APIError represents an error response from the endpoint.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}
