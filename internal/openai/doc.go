// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai provides a client for OpenAI-compatible chat completion
// endpoints.
//
// The client targets any server speaking the OpenAI wire format: the
// hosted OpenAI API, OpenRouter, llama.cpp's server, LM Studio, vLLM.
// It supports buffered and streaming (Server-Sent Events) completions,
// reasoning/thinking deltas, tool calls, retry with exponential backoff,
// and client-side rate limiting.
//
// # Key Types
//
//   - Client: HTTP client with TLS, retry, and rate limit support
//   - ChatMessage: chat message in the OpenAI wire format
//   - ChatRequest: request structure for chat completions
//   - StreamChunk: one SSE delta of a streaming response
//   - StreamAccumulator: rebuilds the full message from deltas
//
// # Usage
//
// Create a client and stream a chat completion:
//
//	client := openai.NewClient(apiKey)
//	err := client.ChatStream(ctx, messages, func(chunk openai.StreamChunk) {
//	    fmt.Print(chunk.GetContent())
//	})
//
// Reasoning deltas are accumulated separately from answer content and
// never appear in Content(); use StreamAccumulator.Reasoning() to read
// them.
//
// # Security
//
// API keys are never logged. Log output shows only a SHA-256 key
// fingerprint, and all hosted requests use TLS 1.2+.
package openai
