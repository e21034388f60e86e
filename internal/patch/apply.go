// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package patch

import (
	"fmt"
	"strings"
)

// =============================================================================
// MATCH STRATEGIES
// =============================================================================

// Strategy identifies how a hunk was located in the target content.
// Strategies are tried in order; later entries tolerate more drift.
type Strategy int

const (
	// StrategyNone means the hunk was not located.
	StrategyNone Strategy = iota
	// StrategyExact matched the hunk verbatim at its declared line.
	StrategyExact
	// StrategyOffset matched verbatim at a different line.
	StrategyOffset
	// StrategyTrimmed matched with leading/trailing whitespace ignored.
	StrategyTrimmed
	// StrategyFuzz1 matched with one context line dropped at each end.
	StrategyFuzz1
	// StrategyFuzz2 matched with two context lines dropped at each end.
	StrategyFuzz2
)

// String returns the string representation of a strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyOffset:
		return "offset"
	case StrategyTrimmed:
		return "trimmed"
	case StrategyFuzz1:
		return "fuzz1"
	case StrategyFuzz2:
		return "fuzz2"
	default:
		return "none"
	}
}

// =============================================================================
// OPTIONS AND RESULTS
// =============================================================================

// Options controls hunk matching tolerance.
type Options struct {
	// MaxOffset is the search radius in lines around a hunk's declared
	// position (default 200).
	MaxOffset int

	// MaxFuzz is the number of context lines that may be dropped from
	// each end of a hunk, 0 to 2 (default 2).
	MaxFuzz int
}

// DefaultOptions returns the default matching tolerance.
func DefaultOptions() Options {
	return Options{
		MaxOffset: 200,
		MaxFuzz:   2,
	}
}

func (o Options) normalized() Options {
	if o.MaxOffset <= 0 {
		o.MaxOffset = 200
	}
	if o.MaxFuzz < 0 {
		o.MaxFuzz = 0
	}
	if o.MaxFuzz > 2 {
		o.MaxFuzz = 2
	}
	return o
}

// HunkResult reports how one hunk fared.
type HunkResult struct {
	HunkIndex int      // 0-based index within the file patch
	Strategy  Strategy // how the hunk was located
	// OffsetDelta is the difference in lines between the declared and
	// actual position.
	OffsetDelta int
	Err         error
}

// Applied reports whether the hunk was located.
func (r HunkResult) Applied() bool {
	return r.Err == nil && r.Strategy != StrategyNone
}

// Result is the outcome of applying one FilePatch.
type Result struct {
	// NewContent is the transformed content. Empty on failure and for
	// dry runs of file deletions.
	NewContent string
	Hunks      []HunkResult
	// Deleted is true when the patch deletes the file.
	Deleted bool
}

// AllApplied reports whether every hunk was located.
func (r *Result) AllApplied() bool {
	for _, h := range r.Hunks {
		if !h.Applied() {
			return false
		}
	}
	return true
}

// =============================================================================
// APPLY
// =============================================================================

// Apply transforms content by the file patch. The transformation is
// atomic: if any hunk cannot be located, the returned error carries
// per-hunk detail and no content is produced.
func Apply(content string, fp *FilePatch, opts Options) (*Result, error) {
	return run(content, fp, opts, false)
}

// DryRun locates every hunk without producing content. The per-hunk
// results report the strategy and line offset each hunk would need.
// Content is never mutated.
func DryRun(content string, fp *FilePatch, opts Options) (*Result, error) {
	return run(content, fp, opts, true)
}

func run(content string, fp *FilePatch, opts Options, dry bool) (*Result, error) {
	opts = opts.normalized()

	if err := validateHunks(fp); err != nil {
		return nil, err
	}

	res := &Result{}

	if fp.IsDelete {
		res.Deleted = true
		return res, nil
	}

	if fp.IsNew {
		return applyNewFile(content, fp, res, dry)
	}

	lines, hadFinalNewline := splitTarget(content)

	var out []string
	noEOL := false
	// cursor is the next unconsumed target line. Hunk positions are in
	// old-file coordinates, so no shifting for earlier hunks is needed.
	cursor := 0
	failed := false

	for i, h := range fp.Hunks {
		want := h.OldStart - 1 // expected 0-based position
		if len(h.oldLines()) == 0 {
			// Zero-count hunk headers name the line before a pure
			// insertion, so the insertion point is OldStart itself.
			want = h.OldStart
		}
		pos, strategy, fuzz := locate(lines, h, want, cursor, opts)

		hr := HunkResult{HunkIndex: i, Strategy: strategy}
		if strategy == StrategyNone {
			hr.Err = &HunkError{
				HunkIndex: i,
				OldStart:  h.OldStart,
				Reason:    "no matching context found",
			}
			failed = true
			res.Hunks = append(res.Hunks, hr)
			continue
		}
		hr.OffsetDelta = pos - want
		res.Hunks = append(res.Hunks, hr)

		if failed || dry {
			// Keep locating remaining hunks for reporting, but skip
			// content assembly.
			cursor = pos + len(trimmedOld(h, fuzz))
			continue
		}

		// Copy untouched lines up to the hunk.
		out = append(out, lines[cursor:pos]...)

		// Emit the new side. With fuzz, the dropped context lines are
		// left to the surrounding copy; only the core is replaced.
		for _, l := range trimmedNew(h, fuzz) {
			out = append(out, l.Content)
			noEOL = l.NoEOL
		}

		cursor = pos + len(trimmedOld(h, fuzz))
	}

	if dry {
		// Dry runs report failures per hunk, not as an error.
		return res, nil
	}
	if failed {
		return res, applyError(res)
	}

	out = append(out, lines[cursor:]...)
	res.NewContent = joinTarget(out, hadFinalNewline, noEOL, cursor == len(lines))
	return res, nil
}

// applyNewFile handles a patch whose old side is /dev/null.
func applyNewFile(content string, fp *FilePatch, res *Result, dry bool) (*Result, error) {
	if strings.TrimSpace(content) != "" {
		return nil, fmt.Errorf("target for new-file patch %q is not empty", fp.TargetPath())
	}

	noEOL := false
	var out []string
	for i, h := range fp.Hunks {
		res.Hunks = append(res.Hunks, HunkResult{HunkIndex: i, Strategy: StrategyExact})
		for _, l := range h.newLines() {
			out = append(out, l.Content)
			noEOL = l.NoEOL
		}
	}
	if !dry {
		res.NewContent = joinTarget(out, true, noEOL, true)
	}
	return res, nil
}

// applyError summarizes failed hunks.
func applyError(res *Result) error {
	var parts []string
	for _, h := range res.Hunks {
		if !h.Applied() {
			parts = append(parts, h.Err.Error())
		}
	}
	return fmt.Errorf("patch does not apply: %s", strings.Join(parts, "; "))
}

// =============================================================================
// HUNK LOCATION
// =============================================================================

// locate finds the position of a hunk's old side in the target lines.
// The strategy ladder: exact at the declared position, exact within the
// search radius, whitespace-trimmed within the radius, then fuzzed
// variants with 1 and 2 context lines dropped from each end.
func locate(lines []string, h *Hunk, want, minPos int, opts Options) (pos int, strategy Strategy, fuzz int) {
	if want < minPos {
		want = minPos
	}

	// A hunk with an empty old side is a pure insertion. There is no
	// context to match against; it applies at the declared position.
	if len(h.oldLines()) == 0 {
		if want > len(lines) {
			want = len(lines)
		}
		return want, StrategyExact, 0
	}

	// Rung 1: exact at the declared offset.
	if matchAt(lines, h, want, 0, false) {
		return want, StrategyExact, 0
	}

	// Rung 2: exact search within the radius.
	if p, ok := search(lines, h, want, minPos, opts.MaxOffset, 0, false); ok {
		return p, StrategyOffset, 0
	}

	// Rung 3: whitespace-trimmed search.
	if p, ok := search(lines, h, want, minPos, opts.MaxOffset, 0, true); ok {
		return p, StrategyTrimmed, 0
	}

	// Rungs 4..5: drop context from the ends, exact then trimmed.
	for f := 1; f <= opts.MaxFuzz; f++ {
		if len(trimmedOld(h, f)) == 0 {
			break
		}
		if p, ok := search(lines, h, want+f, minPos, opts.MaxOffset, f, false); ok {
			return p, fuzzStrategy(f), f
		}
		if p, ok := search(lines, h, want+f, minPos, opts.MaxOffset, f, true); ok {
			return p, fuzzStrategy(f), f
		}
	}

	return 0, StrategyNone, 0
}

func fuzzStrategy(f int) Strategy {
	if f == 1 {
		return StrategyFuzz1
	}
	return StrategyFuzz2
}

// search scans outward from want within radius, nearest position first.
func search(lines []string, h *Hunk, want, minPos, radius, fuzz int, trimmed bool) (int, bool) {
	for d := 0; d <= radius; d++ {
		for _, p := range []int{want + d, want - d} {
			if p < minPos || p > len(lines) {
				continue
			}
			if matchAt(lines, h, p, fuzz, trimmed) {
				return p, true
			}
			if d == 0 {
				break
			}
		}
	}
	return 0, false
}

// matchAt reports whether the hunk's old side (with fuzz context lines
// dropped from each end) matches the target at pos.
func matchAt(lines []string, h *Hunk, pos, fuzz int, trimmed bool) bool {
	pattern := trimmedOld(h, fuzz)
	if pos < 0 || pos+len(pattern) > len(lines) {
		return false
	}
	for i, pl := range pattern {
		got := lines[pos+i]
		want := pl.Content
		if trimmed {
			got = strings.TrimSpace(got)
			want = strings.TrimSpace(want)
		}
		if got != want {
			return false
		}
	}
	return len(pattern) > 0
}

// trimmedOld returns the hunk's old side with up to fuzz context lines
// dropped from each end. Only context lines are droppable.
func trimmedOld(h *Hunk, fuzz int) []Line {
	return trimContext(h.oldLines(), fuzz)
}

// trimmedNew returns the hunk's new side trimmed consistently with
// trimmedOld: the same context lines dropped from each end.
func trimmedNew(h *Hunk, fuzz int) []Line {
	return trimContext(h.newLines(), fuzz)
}

func trimContext(lines []Line, fuzz int) []Line {
	start, end := 0, len(lines)
	for i := 0; i < fuzz && start < end && lines[start].Type == LineContext; i++ {
		start++
	}
	for i := 0; i < fuzz && end > start && lines[end-1].Type == LineContext; i++ {
		end--
	}
	return lines[start:end]
}

// =============================================================================
// LINE SPLITTING
// =============================================================================

// splitTarget splits content into lines, remembering whether a final
// newline was present. CRLF endings are normalized to LF.
func splitTarget(content string) (lines []string, hadFinalNewline bool) {
	if content == "" {
		return []string{}, true
	}
	hadFinalNewline = strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	lines = strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines, hadFinalNewline
}

// joinTarget reassembles lines into file content. The trailing newline
// follows the patch's NoEOL marker when the last line came from the
// patch, otherwise the original file's convention.
func joinTarget(lines []string, hadFinalNewline, lastFromPatchNoEOL, lastIsFromPatch bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, "\n")
	if lastIsFromPatch {
		if !lastFromPatchNoEOL {
			s += "\n"
		}
	} else if hadFinalNewline {
		s += "\n"
	}
	return s
}
