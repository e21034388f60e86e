// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package patch

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// PARSER
// =============================================================================

// hunkHeaderRe matches "@@ -l[,c] +l[,c] @@[ section]". Counts default
// to 1 when absent.
var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Parse parses unified diff text into a Patch.
//
// The parser is deliberately tolerant of model-generated diffs: code
// fences around the patch are dropped, CRLF line endings are accepted,
// header timestamps are ignored, and hunk counts that disagree with the
// body are taken from the body (see Normalize). It returns ErrEmptyPatch
// when no hunk survives parsing.
func Parse(text string) (*Patch, error) {
	lines := strings.Split(text, "\n")

	p := &Patch{}
	var file *FilePatch
	var hunk *Hunk
	// Remaining declared counts for the open hunk; the body may run
	// longer or shorter, so these only guide, never force.
	var oldLeft, newLeft int

	closeHunk := func() {
		if hunk != nil && len(hunk.Lines) > 0 {
			file.Hunks = append(file.Hunks, hunk)
		}
		hunk = nil
	}
	closeFile := func() {
		closeHunk()
		if file != nil && len(file.Hunks) > 0 {
			p.Files = append(p.Files, file)
		}
		file = nil
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")

		// Inside a hunk, body prefixes win over everything else so
		// that content lines starting with "---" or "@@" are not
		// misread as structure while the declared counts are unmet.
		if hunk != nil && (oldLeft > 0 || newLeft > 0) {
			if done := parseBodyLine(line, hunk, &oldLeft, &newLeft); done {
				continue
			}
			// Not a body line: the declared counts were wrong.
			// Fall through and let the structural parser decide.
		}

		switch {
		case isFence(line):
			// ``` or ```diff around a model-emitted patch
			continue

		case strings.HasPrefix(line, "--- "):
			closeFile()
			file = &FilePatch{}
			path, devNull := parseHeaderPath(line[4:])
			file.OldPath = path
			file.IsNew = devNull

		case strings.HasPrefix(line, "+++ "):
			closeHunk()
			if file == nil {
				file = &FilePatch{}
			}
			path, devNull := parseHeaderPath(line[4:])
			file.NewPath = path
			file.IsDelete = devNull

		case strings.HasPrefix(line, "@@ "):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			closeHunk()
			if file == nil {
				// Headerless patch; paths may be repaired later.
				file = &FilePatch{}
			}
			hunk = &Hunk{
				OldStart: atoiDefault(m[1], 1),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 1),
				NewCount: atoiDefault(m[4], 1),
				Section:  strings.TrimSpace(m[5]),
			}
			oldLeft = hunk.OldCount
			newLeft = hunk.NewCount

		case hunk != nil:
			// Counts exhausted but the body continues: accept
			// trailing prefixed lines until anything else appears.
			// Bare empty lines end the hunk here, they separate
			// hunks in hand-edited patches.
			if line != "" && parseBodyLine(line, hunk, &oldLeft, &newLeft) {
				continue
			}
			closeHunk()

		default:
			// git headers, Index: lines, commentary between files
			continue
		}
	}
	closeFile()

	if len(p.Files) == 0 {
		return nil, ErrEmptyPatch
	}

	Normalize(p)
	return p, nil
}

// ParseWithTarget parses diff text and repairs missing file headers
// using the supplied target path. Models frequently emit bare @@ hunks.
func ParseWithTarget(text, targetPath string) (*Patch, error) {
	p, err := Parse(text)
	if err != nil {
		return nil, err
	}
	for _, fp := range p.Files {
		if fp.OldPath == "" && fp.NewPath == "" {
			fp.OldPath = targetPath
			fp.NewPath = targetPath
		}
	}
	return p, nil
}

// parseBodyLine interprets one line as hunk body content. Returns false
// when the line cannot belong to the hunk body.
func parseBodyLine(line string, hunk *Hunk, oldLeft, newLeft *int) bool {
	if line == "" {
		// Models and mailers drop the leading space from empty
		// context lines.
		hunk.Lines = append(hunk.Lines, Line{Type: LineContext})
		*oldLeft--
		*newLeft--
		return true
	}

	switch line[0] {
	case ' ':
		hunk.Lines = append(hunk.Lines, Line{Type: LineContext, Content: line[1:]})
		*oldLeft--
		*newLeft--
	case '+':
		hunk.Lines = append(hunk.Lines, Line{Type: LineAdd, Content: line[1:]})
		*newLeft--
	case '-':
		hunk.Lines = append(hunk.Lines, Line{Type: LineRemove, Content: line[1:]})
		*oldLeft--
	case '\\':
		// "\ No newline at end of file" applies to the previous line.
		if n := len(hunk.Lines); n > 0 {
			hunk.Lines[n-1].NoEOL = true
		}
	default:
		return false
	}
	return true
}

// parseHeaderPath extracts the path from a ---/+++ header value,
// dropping timestamps and the a/ b/ prefix. Reports /dev/null.
func parseHeaderPath(v string) (path string, devNull bool) {
	// Timestamps follow a tab: "--- a/x.go\t2024-01-01 00:00:00"
	if idx := strings.IndexByte(v, '\t'); idx >= 0 {
		v = v[:idx]
	}
	v = strings.TrimSpace(v)
	if v == "/dev/null" {
		return "", true
	}
	return stripPathPrefix(v), false
}

// isFence reports whether a line is a Markdown code fence.
func isFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```")
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
