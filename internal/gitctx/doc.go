// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitctx gathers workspace and Git context for chat messages.
//
// User input may carry @ mentions that pull content into the prompt:
//
//   - @file:path or @file:path:10-20 for file content or a line range
//   - @git or @git:HEAD~3 for recent commits, status, and a change
//     summary
//   - @staged for the staged diff
//   - @clipboard for the system clipboard
//   - @error for the last stored error
//
// ParseMentions extracts the mentions, Fetcher resolves their content
// (git via exec with timeouts, files through an mtime-validated LRU
// cache), and Expander assembles a <context> block ahead of the user's
// message. The diff fetchers (StagedDiff, UnstagedDiff, CombinedDiff)
// also back commit message generation.
package gitctx
