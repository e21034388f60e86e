// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation history to SQLite.
//
// The store keeps two tables, conversations and messages, in a
// single-writer WAL database at ~/.forgechat/history.db. Conversations
// are saved wholesale: each Save replaces the stored message list so
// undo and redo edits survive a round trip.
//
// # Usage
//
//	store, err := storage.Open(path)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	if err := store.Save(ctx, conv); err != nil {
//		return err
//	}
//
//	metas, err := store.List(ctx)
package storage
