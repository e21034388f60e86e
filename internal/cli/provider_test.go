// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
)

// testConfig returns a config pointing the OpenAI client at a test server.
func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.OpenAI.BaseURL = baseURL
	cfg.OpenAI.APIKey = "sk-test-key"
	cfg.OpenAI.MaxRetries = 1
	return cfg
}

// TestStreamReplyCancelDropsExchange verifies that a stream aborted
// mid-flight finalizes the partial assistant message so the failed
// exchange can be undone and its partial content never goes back to
// the provider.
func TestStreamReplyCancelDropsExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial answ\"}}]}\n\n")
		w.(http.Flusher).Flush()
		// Hold the stream open until the client gives up.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv := chat.NewConversationWithModel("test-model")
	conv.AddUserMessage("hello")

	// Cancel as soon as the first token arrives, like Ctrl+C mid-answer.
	sink := tokenSink{OnContent: func(string) { cancel() }}
	_, err := streamReply(ctx, testConfig(server.URL), ProviderOpenAI, "test-model", conv, sink)
	if err == nil {
		t.Fatal("expected an error from the aborted stream")
	}

	last := conv.GetLastMessage()
	if last == nil || last.IsStreaming {
		t.Fatal("assistant message left streaming after stream error")
	}
	if !conv.Undo() {
		t.Fatal("Undo() = false, failed exchange not removable")
	}
	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount() = %d after undo, want 0", conv.MessageCount())
	}
	for _, m := range conv.ToWireMessages() {
		if strings.Contains(m.Content, "partial") {
			t.Errorf("partial content still on the wire: %q", m.Content)
		}
	}
}

// TestStreamReplyUnknownProvider verifies that a bad provider name is
// rejected before any assistant message is appended.
func TestStreamReplyUnknownProvider(t *testing.T) {
	conv := chat.NewConversationWithModel("m")
	conv.AddUserMessage("hi")

	_, err := streamReply(context.Background(), config.Default(), "bogus", "m", conv, tokenSink{})
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		t.Fatalf("expected *UsageError, got %v", err)
	}
	if conv.MessageCount() != 1 {
		t.Errorf("MessageCount() = %d, want 1", conv.MessageCount())
	}
}
