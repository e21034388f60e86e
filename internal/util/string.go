// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for forgechat.
package util

import (
	"github.com/mattn/go-runewidth"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.

// TruncateRunes truncates a string to a maximum number of runes (characters).
// This is safe for UTF-8 strings as it counts characters, not bytes.
// If the string is truncated, "..." is appended.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesNoEllipsis truncates a string to a maximum number of runes
// without appending an ellipsis.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// TruncateWidth truncates a string to a maximum display width.
// Double-width characters (CJK) count as 2 columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth > 3 {
		return runewidth.Truncate(s, maxWidth, "...")
	}
	return runewidth.Truncate(s, maxWidth, "")
}

// StringWidth returns the display width of a string.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// SafeSubstring returns a substring using rune indices (not byte indices).
// This prevents splitting multi-byte UTF-8 characters.
func SafeSubstring(s string, start, end int) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		return ""
	}
	if end < 0 || end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}
