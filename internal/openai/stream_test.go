// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// SSE READER TESTS
// =============================================================================

// TestSSEReaderBasic verifies basic event parsing.
func TestSSEReaderBasic(t *testing.T) {
	input := "data: {\"x\": 1}\n\ndata: {\"x\": 2}\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != `{"x": 1}` {
		t.Errorf("First event = %q, expected {\"x\": 1}", data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != `{"x": 2}` {
		t.Errorf("Second event = %q, expected {\"x\": 2}", data)
	}

	_, _, err = reader.ReadEvent()
	if err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

// TestSSEReaderMultilineData verifies data lines are joined with newlines.
func TestSSEReaderMultilineData(t *testing.T) {
	input := "data: line one\ndata: line two\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != "line one\nline two" {
		t.Errorf("Multiline data = %q, expected joined lines", data)
	}
}

// TestSSEReaderIgnoresCommentsAndFields verifies comment, id and retry
// lines are skipped.
func TestSSEReaderIgnoresCommentsAndFields(t *testing.T) {
	input := ": keepalive comment\nid: 42\nretry: 1000\ndata: payload\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Data = %q, expected 'payload'", data)
	}
}

// TestSSEReaderEventType verifies the event: field is captured.
func TestSSEReaderEventType(t *testing.T) {
	input := "event: message\ndata: hello\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	eventType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if eventType != "message" {
		t.Errorf("Event type = %q, expected 'message'", eventType)
	}
	if string(data) != "hello" {
		t.Errorf("Data = %q, expected 'hello'", data)
	}
}

// TestSSEReaderCRLF verifies CRLF line endings are tolerated.
func TestSSEReaderCRLF(t *testing.T) {
	input := "data: windows\r\n\r\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != "windows" {
		t.Errorf("Data = %q, expected 'windows'", data)
	}
}

// TestSSEReaderMissingFinalNewline verifies a trailing event without a
// blank line is still delivered before EOF.
func TestSSEReaderMissingFinalNewline(t *testing.T) {
	input := "data: last"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error: %v", err)
	}
	if string(data) != "last" {
		t.Errorf("Data = %q, expected 'last'", data)
	}

	_, _, err = reader.ReadEvent()
	if err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

// TestSSEReaderOversizedEvent verifies the event size cap.
func TestSSEReaderOversizedEvent(t *testing.T) {
	huge := "data: " + strings.Repeat("a", MaxEventSize+1) + "\n\n"
	reader := NewSSEReader(strings.NewReader(huge))

	_, _, err := reader.ReadEvent()
	if err == nil {
		t.Fatal("Expected error for oversized event, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

// =============================================================================
// STREAMING CHAT TESTS
// =============================================================================

// sseHandler returns an HTTP handler that writes the given SSE lines.
func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("ResponseWriter does not support flushing")
		}
		for _, line := range lines {
			io.WriteString(w, line)
			flusher.Flush()
		}
	}
}

// TestChatStream verifies content deltas arrive in order.
func TestChatStream(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\", \"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	var sb strings.Builder
	var finishReason string
	err := client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, func(chunk StreamChunk) {
		sb.WriteString(chunk.GetContent())
		if chunk.IsDone() {
			finishReason = chunk.GetFinishReason()
		}
	})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	if sb.String() != "Hello, world" {
		t.Errorf("Accumulated content = %q, expected 'Hello, world'", sb.String())
	}
	if finishReason != "stop" {
		t.Errorf("Finish reason = %q, expected 'stop'", finishReason)
	}
}

// TestChatStreamSkipsMalformedChunks verifies invalid JSON does not abort
// the stream.
func TestChatStreamSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n",
		"data: {not valid json\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\" still ok\"}}]}\n\n",
		"data: [DONE]\n\n",
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	var sb strings.Builder
	err := client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, func(chunk StreamChunk) {
		sb.WriteString(chunk.GetContent())
	})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}
	if sb.String() != "ok still ok" {
		t.Errorf("Accumulated content = %q, expected 'ok still ok'", sb.String())
	}
}

// TestChatStreamReasoningSeparation verifies reasoning deltas never mix
// into the answer content.
func TestChatStreamReasoningSeparation(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"data: {\"choices\":[{\"delta\":{\"reasoning\":\"let me think\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"reasoning_content\":\" about this\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"the answer\"}}]}\n\n",
		"data: [DONE]\n\n",
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	acc := NewStreamAccumulator()
	err := client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, acc.Callback())
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	if acc.Content() != "the answer" {
		t.Errorf("Content() = %q, expected 'the answer'", acc.Content())
	}
	if acc.Reasoning() != "let me think about this" {
		t.Errorf("Reasoning() = %q, expected 'let me think about this'", acc.Reasoning())
	}
}

// TestChatStreamError verifies HTTP error responses are converted before
// any streaming begins.
func TestChatStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	err := client.ChatStream(context.Background(), []ChatMessage{NewUserMessage("hi")}, func(chunk StreamChunk) {
		t.Error("Callback should not be invoked on error response")
	})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

// TestChatStreamContextCancellation verifies the stream stops on cancel.
func TestChatStreamContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		flusher.Flush()
		// Hold the stream open longer than the test is willing to wait.
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	err := client.ChatStream(ctx, []ChatMessage{NewUserMessage("hi")}, func(chunk StreamChunk) {
		cancel()
	})
	if err == nil {
		t.Fatal("Expected context error, got nil")
	}
}

// TestChatStreamAccumulate verifies full-response accumulation.
func TestChatStreamAccumulate(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n",
		"data: [DONE]\n\n",
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	content, err := client.ChatStreamAccumulate(context.Background(), []ChatMessage{NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("ChatStreamAccumulate() error: %v", err)
	}
	if content != "one two" {
		t.Errorf("Content = %q, expected 'one two'", content)
	}
}

// TestChatStreamChan verifies channel-based streaming.
func TestChatStreamChan(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n",
		"data: [DONE]\n\n",
	}))
	defer server.Close()

	client := NewClient("sk-test-key").WithBaseURL(server.URL)

	var sb strings.Builder
	for chunk := range client.ChatStreamChan(context.Background(), []ChatMessage{NewUserMessage("hi")}) {
		if chunk.HasError() {
			t.Fatalf("Unexpected chunk error: %v", chunk.Error)
		}
		sb.WriteString(chunk.GetContent())
	}
	if sb.String() != "ab" {
		t.Errorf("Accumulated = %q, expected 'ab'", sb.String())
	}
}

// =============================================================================
// STREAM ACCUMULATOR TESTS
// =============================================================================

// TestStreamAccumulatorToolCalls verifies tool call fragments are merged
// by index with arguments concatenated in arrival order.
func TestStreamAccumulatorToolCalls(t *testing.T) {
	acc := NewStreamAccumulator()

	chunks := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"apply_patch","arguments":"{\"file\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"main.go\"}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","type":"function","function":{"name":"run_tests","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}

	for _, raw := range chunks {
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			t.Fatalf("Failed to unmarshal test chunk: %v", err)
		}
		acc.Add(chunk)
	}

	calls := acc.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(calls))
	}

	if calls[0].ID != "call_1" || calls[0].Function.Name != "apply_patch" {
		t.Errorf("First call = %+v, expected apply_patch/call_1", calls[0])
	}
	if calls[0].Function.Arguments != `{"file":"main.go"}` {
		t.Errorf("First call arguments = %q, expected concatenated fragments", calls[0].Function.Arguments)
	}
	if calls[1].Function.Name != "run_tests" {
		t.Errorf("Second call = %+v, expected run_tests", calls[1])
	}

	if !acc.Done {
		t.Error("Accumulator should be done after finish_reason")
	}
	if acc.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q, expected 'tool_calls'", acc.FinishReason)
	}
}

// TestStreamAccumulatorStats verifies token counting and TTFT tracking.
func TestStreamAccumulatorStats(t *testing.T) {
	acc := NewStreamAccumulator()

	if acc.TTFT() != 0 {
		t.Error("TTFT should be zero before any token")
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(`{"model":"gpt-4o-mini","choices":[{"delta":{"content":"x"}}]}`), &chunk); err != nil {
		t.Fatalf("Failed to unmarshal test chunk: %v", err)
	}
	acc.Add(chunk)

	if acc.TokenCount != 1 {
		t.Errorf("TokenCount = %d, expected 1", acc.TokenCount)
	}
	if acc.TTFT() <= 0 {
		t.Error("TTFT should be positive after first token")
	}
	if acc.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, expected gpt-4o-mini", acc.Model)
	}
}
