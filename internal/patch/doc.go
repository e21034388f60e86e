// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package patch parses, normalizes, and applies unified diffs.
//
// The parser is tuned for model-generated patches, which routinely
// arrive with miscounted hunk headers, Markdown code fences, CRLF line
// endings, or missing file headers. Parse accepts all of these and
// Normalize repairs the counts from the hunk bodies.
//
// # Key Types
//
//   - Patch, FilePatch, Hunk, Line: the parsed diff structure
//   - Options: matching tolerance (search radius, fuzz level)
//   - Result, HunkResult: per-hunk outcome with the strategy used
//   - Strategy: how a hunk was located (exact, offset, trimmed, fuzz)
//
// # Usage
//
//	p, err := patch.Parse(diffText)
//	if err != nil {
//		return err
//	}
//	for _, fp := range p.Files {
//		res, err := patch.Apply(content, fp, patch.DefaultOptions())
//		if err != nil {
//			return err
//		}
//		content = res.NewContent
//	}
//
// Application is atomic per file: either every hunk is located and the
// new content is produced, or an error is returned and nothing is
// written. DryRun runs the same matching without producing content so
// callers can preview which hunks would land and how.
package patch
