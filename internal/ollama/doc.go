// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server.
//
// Ollama streams chat completions as newline-delimited JSON rather than
// Server-Sent Events; this package implements that wire format along
// with model listing and health checks.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - Message: chat message with role, content, and optional thinking
//   - ChatRequest: request structure for chat completions
//   - StreamReader: NDJSON streaming response reader
//   - StreamAccumulator: rebuilds the full message and statistics
//
// # Usage
//
// Create a client and stream a chat:
//
//	client := ollama.NewClient()
//	err := client.ChatStream(ctx, "qwen2.5-coder:7b", messages,
//	    func(chunk ollama.StreamChunk) {
//	        fmt.Print(chunk.Content)
//	    })
//
// Thinking output from reasoning models arrives in the Thinking field
// and is accumulated separately from answer content.
package ollama
