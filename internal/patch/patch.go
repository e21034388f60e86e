// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package patch parses, normalizes, and applies unified diffs.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// LINE TYPES
// =============================================================================

// LineType represents the kind of a diff body line.
type LineType int

const (
	// LineContext represents unchanged context lines
	LineContext LineType = iota
	// LineAdd represents added lines
	LineAdd
	// LineRemove represents removed lines
	LineRemove
)

// String returns the string representation of a line type.
func (t LineType) String() string {
	switch t {
	case LineContext:
		return "context"
	case LineAdd:
		return "added"
	case LineRemove:
		return "removed"
	default:
		return "unknown"
	}
}

// Prefix returns the diff prefix character for this line type.
func (t LineType) Prefix() string {
	switch t {
	case LineContext:
		return " "
	case LineAdd:
		return "+"
	case LineRemove:
		return "-"
	default:
		return " "
	}
}

// =============================================================================
// PATCH TYPES
// =============================================================================

// Line is a single body line of a hunk.
type Line struct {
	Type    LineType
	Content string
	// NoEOL marks a line followed by a "\ No newline at end of file"
	// marker.
	NoEOL bool
}

// Hunk is one @@-delimited change region.
type Hunk struct {
	OldStart int // 1-based starting line in the old file
	OldCount int
	NewStart int // 1-based starting line in the new file
	NewCount int
	Section  string // trailing text after the closing @@, if any
	Lines    []Line
}

// oldLines returns the hunk lines present on the old side (context and
// removals).
func (h *Hunk) oldLines() []Line {
	out := make([]Line, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Type != LineAdd {
			out = append(out, l)
		}
	}
	return out
}

// newLines returns the hunk lines present on the new side (context and
// additions).
func (h *Hunk) newLines() []Line {
	out := make([]Line, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Type != LineRemove {
			out = append(out, l)
		}
	}
	return out
}

// FilePatch is the set of hunks for one target file.
type FilePatch struct {
	OldPath  string // path from the --- header, prefix stripped
	NewPath  string // path from the +++ header, prefix stripped
	IsNew    bool   // old side was /dev/null
	IsDelete bool   // new side was /dev/null
	Hunks    []*Hunk
}

// TargetPath returns the path the patch should be applied to.
func (fp *FilePatch) TargetPath() string {
	if fp.IsDelete || fp.NewPath == "" {
		return fp.OldPath
	}
	return fp.NewPath
}

// Stats returns the added and removed line counts for the file.
func (fp *FilePatch) Stats() (additions, deletions int) {
	for _, h := range fp.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdd:
				additions++
			case LineRemove:
				deletions++
			}
		}
	}
	return additions, deletions
}

// Patch is a parsed multi-file unified diff.
type Patch struct {
	Files []*FilePatch
}

// Summary returns a human-readable one-line summary.
func (p *Patch) Summary() string {
	var adds, dels int
	for _, fp := range p.Files {
		a, d := fp.Stats()
		adds += a
		dels += d
	}
	return fmt.Sprintf("%d file(s), +%d -%d", len(p.Files), adds, dels)
}

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors for easy checking.
var (
	ErrEmptyPatch       = errors.New("patch contains no hunks")
	ErrOverlappingHunks = errors.New("hunks overlap")
	ErrNoTargetPath     = errors.New("patch has no target path")
)

// HunkError reports a hunk that could not be located in the target.
type HunkError struct {
	HunkIndex int // 0-based index within the file patch
	OldStart  int // declared position
	Reason    string
}

// Error implements the error interface.
func (e *HunkError) Error() string {
	return fmt.Sprintf("hunk %d (at line %d): %s", e.HunkIndex+1, e.OldStart, e.Reason)
}

// =============================================================================
// HELPERS
// =============================================================================

// stripPathPrefix removes the conventional a/ or b/ prefix from a diff
// header path.
func stripPathPrefix(path string) string {
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}
