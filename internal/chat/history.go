// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "time"

// =============================================================================
// UNDO / REDO
// =============================================================================

// An exchange is a user message together with everything generated in
// response to it: the trailing slice of messages starting at the last
// user message. Undo and redo move whole exchanges, never individual
// messages, so the conversation always alternates cleanly.

// CanUndo reports whether there is an exchange to undo.
func (c *Conversation) CanUndo() bool {
	return c.lastExchangeStart() >= 0
}

// CanRedo reports whether there is an undone exchange to restore.
func (c *Conversation) CanRedo() bool {
	return len(c.undoneExchanges) > 0
}

// Undo removes the newest exchange from the conversation and pushes it
// onto the redo stack. Returns false if there is nothing to undo.
// A streaming message cannot be undone mid-flight.
func (c *Conversation) Undo() bool {
	if last := c.GetLastMessage(); last != nil && last.IsStreaming {
		return false
	}

	start := c.lastExchangeStart()
	if start < 0 {
		return false
	}

	removed := make([]*Message, len(c.Messages[start:]))
	copy(removed, c.Messages[start:])
	c.Messages = c.Messages[:start]
	c.undoneExchanges = append(c.undoneExchanges, removed)

	c.UpdatedAt = time.Now()
	c.updateTokenEstimate()
	return true
}

// Redo restores the most recently undone exchange. Returns false if the
// redo stack is empty.
func (c *Conversation) Redo() bool {
	if len(c.undoneExchanges) == 0 {
		return false
	}

	last := len(c.undoneExchanges) - 1
	exchange := c.undoneExchanges[last]
	c.undoneExchanges = c.undoneExchanges[:last]
	c.Messages = append(c.Messages, exchange...)

	c.UpdatedAt = time.Now()
	c.updateTokenEstimate()
	return true
}

// UndoDepth returns how many exchanges can currently be redone.
func (c *Conversation) UndoDepth() int {
	return len(c.undoneExchanges)
}

// lastExchangeStart returns the index of the last user message, which
// anchors the newest exchange. System messages are never part of an
// exchange. Returns -1 when no exchange exists.
func (c *Conversation) lastExchangeStart() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
