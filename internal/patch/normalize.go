// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package patch

import "sort"

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize repairs a parsed patch in place:
//
//   - hunk counts are recomputed from the body, which overrides counts
//     a model miscounted in the @@ header
//   - hunks are ordered by old-file position
//   - a missing old or new path is filled from the other side
//
// Parse calls Normalize automatically; it is exported for callers that
// construct or modify patches programmatically.
func Normalize(p *Patch) {
	for _, fp := range p.Files {
		if fp.OldPath == "" && !fp.IsNew {
			fp.OldPath = fp.NewPath
		}
		if fp.NewPath == "" && !fp.IsDelete {
			fp.NewPath = fp.OldPath
		}

		for _, h := range fp.Hunks {
			recountHunk(h)
		}

		sort.SliceStable(fp.Hunks, func(i, j int) bool {
			return fp.Hunks[i].OldStart < fp.Hunks[j].OldStart
		})
	}
}

// recountHunk recomputes OldCount and NewCount from the hunk body and
// trims trailing empty context lines that carry no information.
func recountHunk(h *Hunk) {
	// Trailing empty context lines are usually parser artifacts from
	// blank lines after the hunk; drop them unless the declared counts
	// say they belong.
	declaredOld, declaredNew := h.OldCount, h.NewCount
	for len(h.Lines) > 0 {
		last := h.Lines[len(h.Lines)-1]
		if last.Type != LineContext || last.Content != "" || last.NoEOL {
			break
		}
		oldCount, newCount := countLines(h.Lines)
		if oldCount <= declaredOld && newCount <= declaredNew {
			break
		}
		h.Lines = h.Lines[:len(h.Lines)-1]
	}

	h.OldCount, h.NewCount = countLines(h.Lines)
}

func countLines(lines []Line) (oldCount, newCount int) {
	for _, l := range lines {
		switch l.Type {
		case LineContext:
			oldCount++
			newCount++
		case LineAdd:
			newCount++
		case LineRemove:
			oldCount++
		}
	}
	return oldCount, newCount
}

// validateHunks rejects hunks whose declared old-file regions overlap.
// Assumes Normalize has already ordered them.
func validateHunks(fp *FilePatch) error {
	for i := 1; i < len(fp.Hunks); i++ {
		prev := fp.Hunks[i-1]
		cur := fp.Hunks[i]
		if cur.OldStart < prev.OldStart+prev.OldCount {
			return ErrOverlappingHunks
		}
	}
	return nil
}
