// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("Hello")

	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want user", msg.Role)
	}
	if msg.Content != "Hello" {
		t.Errorf("Content = %q, want 'Hello'", msg.Content)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
}

func TestMessage_Streaming(t *testing.T) {
	msg := NewAssistantMessage()

	if !msg.IsStreaming {
		t.Fatal("New assistant message should be streaming")
	}

	msg.AppendToken("Hello")
	msg.AppendToken(", world")

	if msg.GetDisplayContent() != "Hello, world" {
		t.Errorf("GetDisplayContent() = %q during streaming", msg.GetDisplayContent())
	}
	if msg.Content != "" {
		t.Errorf("Content should be empty until finalized, got %q", msg.Content)
	}

	msg.FinalizeStream(nil)

	if msg.IsStreaming {
		t.Error("Message should not be streaming after finalize")
	}
	if msg.Content != "Hello, world" {
		t.Errorf("Content = %q after finalize", msg.Content)
	}
}

func TestMessage_ReasoningSeparation(t *testing.T) {
	msg := NewAssistantMessage()

	msg.AppendReasoning("thinking about it")
	msg.AppendToken("the answer")
	msg.FinalizeStream(nil)

	if msg.Content != "the answer" {
		t.Errorf("Content = %q, reasoning must not leak into content", msg.Content)
	}
	if msg.Reasoning != "thinking about it" {
		t.Errorf("Reasoning = %q", msg.Reasoning)
	}
}

func TestMessage_FinalizeStreamWithStats(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendToken("x")

	stats := &Statistics{
		TTFT:             100 * time.Millisecond,
		TotalDuration:    2 * time.Second,
		CompletionTokens: 42,
		TokensPerSecond:  21.0,
	}
	msg.FinalizeStream(stats)

	if msg.TokenCount != 42 {
		t.Errorf("TokenCount = %d, want 42", msg.TokenCount)
	}
	if msg.TTFT != 100*time.Millisecond {
		t.Errorf("TTFT = %v", msg.TTFT)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("short")
	if msg.Preview(50) != "short" {
		t.Errorf("Preview() = %q", msg.Preview(50))
	}

	long := NewUserMessage(strings.Repeat("日本語", 30))
	preview := msg.Preview(10)
	if len([]rune(preview)) > 10 {
		t.Errorf("Preview too long: %q", preview)
	}
	longPreview := long.Preview(10)
	if !strings.HasSuffix(longPreview, "...") {
		t.Errorf("Long preview should end with ellipsis: %q", longPreview)
	}
}

func TestMessage_EstimateTokens(t *testing.T) {
	msg := NewUserMessage(strings.Repeat("a", 40))
	if got := msg.EstimateTokens(); got != 10 {
		t.Errorf("EstimateTokens() = %d, want 10", got)
	}
}

func TestStatistics_Finalize(t *testing.T) {
	stats := NewStatistics()
	stats.RecordFirstToken()
	time.Sleep(time.Millisecond)
	stats.Finalize(100)

	if stats.CompletionTokens != 100 {
		t.Errorf("CompletionTokens = %d", stats.CompletionTokens)
	}
	if stats.TotalDuration <= 0 {
		t.Error("TotalDuration should be positive")
	}
	if stats.TokensPerSecond <= 0 {
		t.Error("TokensPerSecond should be positive")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation(t *testing.T) {
	conv := NewConversation()

	if !strings.HasPrefix(conv.ID, "conv_") {
		t.Errorf("ID = %q, want conv_ prefix", conv.ID)
	}
	if !conv.IsEmpty() {
		t.Error("New conversation should be empty")
	}
	if conv.GetTitle() != "New Conversation" {
		t.Errorf("GetTitle() = %q", conv.GetTitle())
	}
}

func TestConversation_AutoTitle(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("How do I apply a unified diff?")

	if conv.GetTitle() != "How do I apply a unified diff?" {
		t.Errorf("Title = %q, should come from first user message", conv.GetTitle())
	}

	// Title is sticky once set
	conv.AddUserMessage("Another question")
	if conv.GetTitle() != "How do I apply a unified diff?" {
		t.Errorf("Title changed unexpectedly: %q", conv.GetTitle())
	}
}

func TestConversation_StreamingFlow(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hi")
	conv.AddAssistantMessage()

	conv.AppendToLast("partial ")
	conv.AppendToLast("response")
	conv.AppendReasoningToLast("hmm")
	conv.FinalizeLast(nil)

	last := conv.GetLastMessage()
	if last.Content != "partial response" {
		t.Errorf("Content = %q", last.Content)
	}
	if last.Reasoning != "hmm" {
		t.Errorf("Reasoning = %q", last.Reasoning)
	}
}

func TestConversation_ToWireMessages(t *testing.T) {
	conv := NewConversation()
	conv.SystemPrompt = "You are a coding assistant."
	conv.AddUserMessage("question")

	asst := conv.AddAssistantMessage()
	asst.AppendReasoning("private thinking")
	asst.AppendToken("answer")
	asst.FinalizeStream(nil)

	wire := conv.ToWireMessages()
	if len(wire) != 3 {
		t.Fatalf("Expected 3 wire messages, got %d", len(wire))
	}
	if wire[0].Role != "system" || wire[0].Content != "You are a coding assistant." {
		t.Errorf("First wire message = %+v, want system prompt", wire[0])
	}
	if wire[2].Content != "answer" {
		t.Errorf("Assistant wire content = %q", wire[2].Content)
	}

	// Reasoning must never be sent back to the model
	for _, m := range wire {
		if strings.Contains(m.Content, "private thinking") {
			t.Errorf("Reasoning leaked into wire message: %q", m.Content)
		}
	}
}

func TestConversation_ToWireMessagesWithOverride(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("@file:main.go explain this")

	wire := conv.ToWireMessagesWithOverride("File contents:\n...\n\nexplain this")
	if len(wire) != 1 {
		t.Fatalf("Expected 1 wire message, got %d", len(wire))
	}
	if !strings.HasPrefix(wire[0].Content, "File contents:") {
		t.Errorf("Override not applied: %q", wire[0].Content)
	}

	// The conversation itself keeps the original text
	if conv.GetLastUserMessage().Content != "@file:main.go explain this" {
		t.Error("Original message content should be unchanged")
	}
}

func TestConversation_ToOllamaMessages(t *testing.T) {
	conv := NewConversation()
	conv.SystemPrompt = "sys"
	conv.AddUserMessage("hi")

	msgs := conv.ToOllamaMessages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("First role = %q", msgs[0].Role)
	}
}

func TestConversation_ToolMessages(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hi")
	conv.AddMessage(NewMessage(RoleTool, `{"result":42}`))

	wire := conv.ToWireMessages()
	if len(wire) != 2 {
		t.Fatalf("Expected 2 wire messages, got %d", len(wire))
	}
	if wire[1].Role != "tool" {
		t.Errorf("wire[1].Role = %q, want tool", wire[1].Role)
	}

	// Ollama has no tool role; those messages stay out of its history.
	msgs := conv.ToOllamaMessages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 ollama message, got %d", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("msgs[0].Role = %q, want user", msgs[0].Role)
	}
}

func TestConversation_TokenTracking(t *testing.T) {
	conv := NewConversation()
	conv.SetMaxTokens(100)

	conv.AddUserMessage(strings.Repeat("a", 400)) // ~100 tokens + overhead

	if !conv.IsContextNearLimit() {
		t.Errorf("Context should be near limit at %.1f%%", conv.GetContextPercent())
	}
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("original")

	clone := conv.Clone()
	clone.Messages[0].Content = "modified"

	if conv.Messages[0].Content != "original" {
		t.Error("Clone should not share message storage")
	}
}

func TestConversation_Prune(t *testing.T) {
	conv := NewConversation()
	conv.AddSystemMessage("keep me")

	for i := 0; i < MaxMessages+10; i++ {
		conv.AddUserMessage("msg")
	}

	if conv.MessageCount() != MaxMessages+1 {
		t.Errorf("MessageCount = %d, want %d", conv.MessageCount(), MaxMessages+1)
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("System message should survive pruning")
	}
}

// =============================================================================
// UNDO / REDO TESTS
// =============================================================================

// buildExchange adds one user/assistant exchange to the conversation.
func buildExchange(conv *Conversation, question, answer string) {
	conv.AddUserMessage(question)
	asst := conv.AddAssistantMessage()
	asst.AppendToken(answer)
	asst.FinalizeStream(nil)
}

func TestUndo_Empty(t *testing.T) {
	conv := NewConversation()
	if conv.CanUndo() {
		t.Error("CanUndo() should be false for empty conversation")
	}
	if conv.Undo() {
		t.Error("Undo() should fail on empty conversation")
	}
}

func TestUndoRedo_SingleExchange(t *testing.T) {
	conv := NewConversation()
	buildExchange(conv, "q1", "a1")

	if !conv.CanUndo() {
		t.Fatal("CanUndo() should be true")
	}
	if !conv.Undo() {
		t.Fatal("Undo() failed")
	}
	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount = %d after undo, want 0", conv.MessageCount())
	}
	if !conv.CanRedo() {
		t.Fatal("CanRedo() should be true after undo")
	}

	if !conv.Redo() {
		t.Fatal("Redo() failed")
	}
	if conv.MessageCount() != 2 {
		t.Errorf("MessageCount = %d after redo, want 2", conv.MessageCount())
	}
	if conv.GetLastMessage().Content != "a1" {
		t.Errorf("Restored content = %q", conv.GetLastMessage().Content)
	}
}

func TestUndo_RemovesWholeExchange(t *testing.T) {
	conv := NewConversation()
	buildExchange(conv, "q1", "a1")
	buildExchange(conv, "q2", "a2")

	conv.Undo()

	// Only the q2/a2 pair is removed
	if conv.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want 2", conv.MessageCount())
	}
	if conv.GetLastMessage().Content != "a1" {
		t.Errorf("Last message = %q, want 'a1'", conv.GetLastMessage().Content)
	}
}

func TestUndo_Multiple(t *testing.T) {
	conv := NewConversation()
	buildExchange(conv, "q1", "a1")
	buildExchange(conv, "q2", "a2")

	conv.Undo()
	conv.Undo()

	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount = %d after two undos", conv.MessageCount())
	}
	if conv.UndoDepth() != 2 {
		t.Errorf("UndoDepth = %d, want 2", conv.UndoDepth())
	}

	// Redo restores in reverse order
	conv.Redo()
	if conv.GetLastMessage().Content != "a1" {
		t.Errorf("First redo restored %q, want 'a1'", conv.GetLastMessage().Content)
	}
	conv.Redo()
	if conv.GetLastMessage().Content != "a2" {
		t.Errorf("Second redo restored %q, want 'a2'", conv.GetLastMessage().Content)
	}
}

func TestUndo_NewMessageClearsRedo(t *testing.T) {
	conv := NewConversation()
	buildExchange(conv, "q1", "a1")
	conv.Undo()

	if !conv.CanRedo() {
		t.Fatal("CanRedo() should be true after undo")
	}

	// A new message invalidates the redo stack
	buildExchange(conv, "q2", "a2")

	if conv.CanRedo() {
		t.Error("CanRedo() should be false after new message")
	}
	if conv.Redo() {
		t.Error("Redo() should fail after new message")
	}
}

func TestUndo_BlockedDuringStreaming(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("q")
	conv.AddAssistantMessage() // still streaming

	if conv.Undo() {
		t.Error("Undo() should fail while a message is streaming")
	}
}

func TestUndo_AfterAbortedStream(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("q")
	conv.AddAssistantMessage()
	conv.AppendToLast("partial answ")

	// An aborted stream gets finalized without stats before cleanup.
	conv.FinalizeLast(nil)

	if !conv.Undo() {
		t.Fatal("Undo() = false after finalizing an aborted stream")
	}
	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount = %d, want 0", conv.MessageCount())
	}
	if len(conv.ToWireMessages()) != 0 {
		t.Error("Aborted exchange still present in wire messages")
	}
}

func TestUndo_PreservesSystemMessages(t *testing.T) {
	conv := NewConversation()
	conv.AddSystemMessage("system setup")
	buildExchange(conv, "q1", "a1")

	conv.Undo()

	if conv.MessageCount() != 1 {
		t.Fatalf("MessageCount = %d, want 1", conv.MessageCount())
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("System message should survive undo")
	}
	if conv.CanUndo() {
		t.Error("CanUndo() should be false with only system messages left")
	}
}
