// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package patch

import (
	"fmt"
	"strings"
)

// =============================================================================
// CANONICAL OUTPUT
// =============================================================================

// Format renders the patch as a canonical unified diff. Counts come
// from the hunk bodies, so formatting a parsed patch repairs any header
// drift the input carried.
func Format(p *Patch) string {
	var sb strings.Builder
	for _, fp := range p.Files {
		formatFile(&sb, fp)
	}
	return sb.String()
}

// FormatFile renders a single file patch as a unified diff.
func FormatFile(fp *FilePatch) string {
	var sb strings.Builder
	formatFile(&sb, fp)
	return sb.String()
}

func formatFile(sb *strings.Builder, fp *FilePatch) {
	oldPath := "a/" + fp.OldPath
	newPath := "b/" + fp.NewPath
	if fp.IsNew {
		oldPath = "/dev/null"
	}
	if fp.IsDelete {
		newPath = "/dev/null"
	}
	fmt.Fprintf(sb, "--- %s\n", oldPath)
	fmt.Fprintf(sb, "+++ %s\n", newPath)

	for _, h := range fp.Hunks {
		oldCount, newCount := countLines(h.Lines)
		section := h.Section
		if section != "" && !strings.HasPrefix(section, " ") {
			section = " " + section
		}
		fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@%s\n", h.OldStart, oldCount, h.NewStart, newCount, section)
		for _, l := range h.Lines {
			sb.WriteString(l.Type.Prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
			if l.NoEOL {
				sb.WriteString("\\ No newline at end of file\n")
			}
		}
	}
}
