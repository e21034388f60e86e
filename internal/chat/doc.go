// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat contains the data structures for conversations and messages.
//
// A Conversation owns an ordered message history with streaming support,
// token estimation, automatic titling, and exchange-level undo/redo.
// Undo removes the newest user message together with everything
// generated after it; redo restores it. Adding any new message clears
// the redo stack.
//
// Assistant messages carry reasoning output separately from content.
// Wire conversion (ToWireMessages, ToOllamaMessages) strips reasoning
// so models never see their own prior thinking.
package chat
