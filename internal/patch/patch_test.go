// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package patch

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// PARSE TESTS
// =============================================================================

const simplePatch = `--- a/main.go
+++ b/main.go
@@ -1,3 +1,3 @@
 line1
-line2
+LINE2
 line3
`

func TestParse(t *testing.T) {
	p, err := Parse(simplePatch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(p.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(p.Files))
	}

	fp := p.Files[0]
	if fp.OldPath != "main.go" || fp.NewPath != "main.go" {
		t.Errorf("paths = %q, %q, want main.go both", fp.OldPath, fp.NewPath)
	}
	if fp.TargetPath() != "main.go" {
		t.Errorf("TargetPath() = %q, want main.go", fp.TargetPath())
	}
	if len(fp.Hunks) != 1 {
		t.Fatalf("len(Hunks) = %d, want 1", len(fp.Hunks))
	}

	h := fp.Hunks[0]
	if h.OldStart != 1 || h.OldCount != 3 || h.NewStart != 1 || h.NewCount != 3 {
		t.Errorf("hunk header = -%d,%d +%d,%d, want -1,3 +1,3",
			h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	}
	if len(h.Lines) != 4 {
		t.Fatalf("len(Lines) = %d, want 4", len(h.Lines))
	}
	if h.Lines[1].Type != LineRemove || h.Lines[1].Content != "line2" {
		t.Errorf("Lines[1] = %v %q, want removed line2", h.Lines[1].Type, h.Lines[1].Content)
	}
	if h.Lines[2].Type != LineAdd || h.Lines[2].Content != "LINE2" {
		t.Errorf("Lines[2] = %v %q, want added LINE2", h.Lines[2].Type, h.Lines[2].Content)
	}

	adds, dels := fp.Stats()
	if adds != 1 || dels != 1 {
		t.Errorf("Stats() = +%d -%d, want +1 -1", adds, dels)
	}
}

func TestParseFencedDiff(t *testing.T) {
	fenced := "Here is the fix:\n```diff\n" + simplePatch + "```\n"
	p, err := Parse(fenced)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(p.Files) != 1 || len(p.Files[0].Hunks) != 1 {
		t.Errorf("fenced diff not parsed: %s", p.Summary())
	}
}

func TestParseCRLF(t *testing.T) {
	crlf := strings.ReplaceAll(simplePatch, "\n", "\r\n")
	p, err := Parse(crlf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	h := p.Files[0].Hunks[0]
	if h.Lines[2].Content != "LINE2" {
		t.Errorf("CRLF line content = %q, want LINE2 without CR", h.Lines[2].Content)
	}
}

func TestParseRecountsBadHeader(t *testing.T) {
	// Header claims nine lines, body has four.
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,9 +1,9 @@
 a
-b
+B
 c
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	h := p.Files[0].Hunks[0]
	if h.OldCount != 3 || h.NewCount != 3 {
		t.Errorf("recounted = -%d +%d, want -3 +3", h.OldCount, h.NewCount)
	}
}

func TestParseBodyLineStartingWithDashes(t *testing.T) {
	// A removed line whose content begins with "--" must not be read
	// as a file header while the declared counts are unmet.
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,2 +1,2 @@
---old comment
+// new comment
 code
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(p.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(p.Files))
	}
	h := p.Files[0].Hunks[0]
	if h.Lines[0].Type != LineRemove || h.Lines[0].Content != "--old comment" {
		t.Errorf("Lines[0] = %v %q", h.Lines[0].Type, h.Lines[0].Content)
	}
}

func TestParseHeaderTimestamps(t *testing.T) {
	text := "--- a/f.txt\t2024-01-01 00:00:00.000000000 +0000\n" +
		"+++ b/f.txt\t2024-01-02 00:00:00.000000000 +0000\n" +
		"@@ -1 +1 @@\n-a\n+b\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Files[0].OldPath != "f.txt" {
		t.Errorf("OldPath = %q, want f.txt", p.Files[0].OldPath)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, text := range []string{"", "no diff here", "--- a/f.txt\n+++ b/f.txt\n"} {
		if _, err := Parse(text); !errors.Is(err, ErrEmptyPatch) {
			t.Errorf("Parse(%q) error = %v, want ErrEmptyPatch", text, err)
		}
	}
}

func TestParseMultiFile(t *testing.T) {
	text := `--- a/one.go
+++ b/one.go
@@ -1 +1 @@
-a
+A
--- a/two.go
+++ b/two.go
@@ -1 +1 @@
-b
+B
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(p.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(p.Files))
	}
	if p.Files[1].TargetPath() != "two.go" {
		t.Errorf("Files[1].TargetPath() = %q, want two.go", p.Files[1].TargetPath())
	}
	if got := p.Summary(); got != "2 file(s), +2 -2" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestParseWithTarget(t *testing.T) {
	text := "@@ -1,2 +1,2 @@\n-a\n+A\n b\n"
	p, err := ParseWithTarget(text, "repaired.go")
	if err != nil {
		t.Fatalf("ParseWithTarget() error = %v", err)
	}
	if p.Files[0].TargetPath() != "repaired.go" {
		t.Errorf("TargetPath() = %q, want repaired.go", p.Files[0].TargetPath())
	}
}

func TestParseNewAndDelete(t *testing.T) {
	text := `--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+hello
+world
--- a/old.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-goodbye
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.Files[0].IsNew || p.Files[0].TargetPath() != "new.txt" {
		t.Errorf("Files[0] IsNew = %v, TargetPath = %q", p.Files[0].IsNew, p.Files[0].TargetPath())
	}
	if !p.Files[1].IsDelete || p.Files[1].TargetPath() != "old.txt" {
		t.Errorf("Files[1] IsDelete = %v, TargetPath = %q", p.Files[1].IsDelete, p.Files[1].TargetPath())
	}
}

func TestParseNoEOLMarker(t *testing.T) {
	text := "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n\\ No newline at end of file\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	lines := p.Files[0].Hunks[0].Lines
	last := lines[len(lines)-1]
	if !last.NoEOL {
		t.Error("last line should carry NoEOL")
	}
}

func TestParseSortsHunks(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -10,1 +10,1 @@
-x
+X
@@ -1,1 +1,1 @@
-a
+A
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	hunks := p.Files[0].Hunks
	if hunks[0].OldStart != 1 || hunks[1].OldStart != 10 {
		t.Errorf("hunks not sorted: %d, %d", hunks[0].OldStart, hunks[1].OldStart)
	}
}

// =============================================================================
// APPLY TESTS
// =============================================================================

func mustParseFile(t *testing.T, text string) *FilePatch {
	t.Helper()
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p.Files[0]
}

func TestApplyExact(t *testing.T) {
	fp := mustParseFile(t, simplePatch)
	res, err := Apply("line1\nline2\nline3\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "line1\nLINE2\nline3\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
	if res.Hunks[0].Strategy != StrategyExact || res.Hunks[0].OffsetDelta != 0 {
		t.Errorf("strategy = %v delta = %d, want exact 0",
			res.Hunks[0].Strategy, res.Hunks[0].OffsetDelta)
	}
}

func TestApplyOffset(t *testing.T) {
	fp := mustParseFile(t, simplePatch)
	content := "pre1\npre2\nline1\nline2\nline3\ntail\n"
	res, err := Apply(content, fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "pre1\npre2\nline1\nLINE2\nline3\ntail\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
	if res.Hunks[0].Strategy != StrategyOffset || res.Hunks[0].OffsetDelta != 2 {
		t.Errorf("strategy = %v delta = %d, want offset 2",
			res.Hunks[0].Strategy, res.Hunks[0].OffsetDelta)
	}
}

func TestApplyTrimmedWhitespace(t *testing.T) {
	// Target is indented differently than the patch context.
	fp := mustParseFile(t, simplePatch)
	content := "  line1\nline2\n  line3\n"
	res, err := Apply(content, fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Hunks[0].Strategy != StrategyTrimmed {
		t.Errorf("strategy = %v, want trimmed", res.Hunks[0].Strategy)
	}
	if !strings.Contains(res.NewContent, "LINE2") {
		t.Errorf("NewContent = %q, want LINE2 present", res.NewContent)
	}
}

func TestApplyFuzz(t *testing.T) {
	// First context line does not exist in the target; fuzz drops it
	// together with the matching trailing context.
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,3 +1,3 @@
 WRONG
-line2
+LINE2
 line3
`
	fp := mustParseFile(t, text)
	res, err := Apply("line1\nline2\nline3\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Hunks[0].Strategy != StrategyFuzz1 {
		t.Errorf("strategy = %v, want fuzz1", res.Hunks[0].Strategy)
	}
	if res.NewContent != "line1\nLINE2\nline3\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
}

func TestApplyFuzzDisabled(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,3 +1,3 @@
 WRONG
-line2
+LINE2
 line3
`
	fp := mustParseFile(t, text)
	opts := DefaultOptions()
	opts.MaxFuzz = 0
	if _, err := Apply("line1\nline2\nline3\n", fp, opts); err == nil {
		t.Error("Apply() with fuzz disabled should fail")
	}
}

func TestApplyAtomicFailure(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,1 +1,1 @@
-a
+A
@@ -5,1 +5,1 @@
-NOSUCH
+X
`
	fp := mustParseFile(t, text)
	res, err := Apply("a\nb\nc\nd\ne\n", fp, DefaultOptions())
	if err == nil {
		t.Fatal("Apply() should fail when any hunk cannot be located")
	}
	if res.NewContent != "" {
		t.Errorf("NewContent = %q, want empty on failure", res.NewContent)
	}
	if res.Hunks[0].Err != nil {
		t.Errorf("Hunks[0].Err = %v, hunk 1 should still be reported as located", res.Hunks[0].Err)
	}
	var he *HunkError
	if !errors.As(res.Hunks[1].Err, &he) {
		t.Fatalf("Hunks[1].Err = %v, want *HunkError", res.Hunks[1].Err)
	}
	if he.HunkIndex != 1 || he.OldStart != 5 {
		t.Errorf("HunkError = %+v", he)
	}
}

func TestApplyMultipleHunks(t *testing.T) {
	// The first hunk grows the file; the second still lands because
	// hunk positions are old-file coordinates.
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,2 +1,3 @@
 a
+inserted
 b
@@ -4,2 +5,2 @@
 d
-e
+E
`
	fp := mustParseFile(t, text)
	res, err := Apply("a\nb\nc\nd\ne\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "a\ninserted\nb\nc\nd\nE\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
	if res.Hunks[1].Strategy != StrategyExact {
		t.Errorf("Hunks[1].Strategy = %v, want exact after drift adjustment", res.Hunks[1].Strategy)
	}
}

func TestApplyOverlappingHunks(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,3 +1,3 @@
 a
-b
+B
 c
@@ -2,3 +2,3 @@
 b
-c
+C
 d
`
	fp := mustParseFile(t, text)
	if _, err := Apply("a\nb\nc\nd\n", fp, DefaultOptions()); !errors.Is(err, ErrOverlappingHunks) {
		t.Errorf("Apply() error = %v, want ErrOverlappingHunks", err)
	}
}

func TestApplyNewFile(t *testing.T) {
	text := `--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+hello
+world
`
	fp := mustParseFile(t, text)
	res, err := Apply("", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "hello\nworld\n" {
		t.Errorf("NewContent = %q", res.NewContent)
	}
}

func TestApplyNewFileNonEmptyTarget(t *testing.T) {
	text := "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,1 @@\n+hello\n"
	fp := mustParseFile(t, text)
	if _, err := Apply("existing content", fp, DefaultOptions()); err == nil {
		t.Error("Apply() new-file patch over non-empty target should fail")
	}
}

func TestApplyPureInsertion(t *testing.T) {
	// A -U0 style hunk with an empty old side inserts after the line
	// its zero-count header names.
	text := "--- a/f.txt\n+++ b/f.txt\n@@ -1,0 +2,1 @@\n+inserted\n"
	fp := mustParseFile(t, text)
	res, err := Apply("one\ntwo\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "one\ninserted\ntwo\n" {
		t.Errorf("NewContent = %q, want insertion after line 1", res.NewContent)
	}
	if res.Hunks[0].Strategy != StrategyExact || res.Hunks[0].OffsetDelta != 0 {
		t.Errorf("strategy = %v delta = %d, want exact 0",
			res.Hunks[0].Strategy, res.Hunks[0].OffsetDelta)
	}
}

func TestApplyPureInsertionAtEnds(t *testing.T) {
	top := "--- a/f.txt\n+++ b/f.txt\n@@ -0,0 +1,1 @@\n+first\n"
	res, err := Apply("one\n", mustParseFile(t, top), DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() top insertion error = %v", err)
	}
	if res.NewContent != "first\none\n" {
		t.Errorf("top insertion NewContent = %q", res.NewContent)
	}

	bottom := "--- a/f.txt\n+++ b/f.txt\n@@ -2,0 +3,1 @@\n+last\n"
	res, err = Apply("one\ntwo\n", mustParseFile(t, bottom), DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() bottom insertion error = %v", err)
	}
	if res.NewContent != "one\ntwo\nlast\n" {
		t.Errorf("bottom insertion NewContent = %q", res.NewContent)
	}
}

func TestApplyDelete(t *testing.T) {
	text := "--- a/old.txt\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-goodbye\n"
	fp := mustParseFile(t, text)
	res, err := Apply("goodbye\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Deleted {
		t.Error("Deleted = false, want true")
	}
}

func TestApplyNoEOL(t *testing.T) {
	text := "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n\\ No newline at end of file\n"
	fp := mustParseFile(t, text)
	res, err := Apply("a\nb\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "a\nc" {
		t.Errorf("NewContent = %q, want no trailing newline", res.NewContent)
	}
}

func TestApplyPreservesMissingFinalNewline(t *testing.T) {
	// The untouched tail of the file keeps its own convention.
	text := "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n-a\n+A\n b\n"
	fp := mustParseFile(t, text)
	res, err := Apply("a\nb\nc", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewContent != "A\nb\nc" {
		t.Errorf("NewContent = %q, want no trailing newline", res.NewContent)
	}
}

func TestApplyCRLFTarget(t *testing.T) {
	fp := mustParseFile(t, simplePatch)
	res, err := Apply("line1\r\nline2\r\nline3\r\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !strings.Contains(res.NewContent, "LINE2") {
		t.Errorf("NewContent = %q", res.NewContent)
	}
}

// =============================================================================
// DRY RUN TESTS
// =============================================================================

func TestDryRun(t *testing.T) {
	fp := mustParseFile(t, simplePatch)
	content := "pre\nline1\nline2\nline3\n"
	res, err := DryRun(content, fp, DefaultOptions())
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if res.NewContent != "" {
		t.Errorf("DryRun NewContent = %q, want empty", res.NewContent)
	}
	if !res.AllApplied() {
		t.Error("AllApplied() = false")
	}
	if res.Hunks[0].Strategy != StrategyOffset || res.Hunks[0].OffsetDelta != 1 {
		t.Errorf("strategy = %v delta = %d, want offset 1",
			res.Hunks[0].Strategy, res.Hunks[0].OffsetDelta)
	}
}

func TestDryRunReportsAllFailures(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,1 +1,1 @@
-NOSUCH1
+X
@@ -3,1 +3,1 @@
-c
+C
`
	fp := mustParseFile(t, text)
	res, err := DryRun("a\nb\nc\n", fp, DefaultOptions())
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if res.Hunks[0].Applied() {
		t.Error("Hunks[0] should not apply")
	}
	if !res.Hunks[1].Applied() {
		t.Error("Hunks[1] should apply even after an earlier failure")
	}
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatRepairsCounts(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,9 +1,9 @@
 a
-b
+B
 c
`
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := Format(p)
	if !strings.Contains(out, "@@ -1,3 +1,3 @@") {
		t.Errorf("Format() = %q, want recounted header", out)
	}
	if !strings.HasPrefix(out, "--- a/f.txt\n+++ b/f.txt\n") {
		t.Errorf("Format() headers = %q", out)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	p, err := Parse(simplePatch)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := Format(p)
	p2, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Format()) error = %v", err)
	}
	if Format(p2) != out {
		t.Error("Format() not stable across a parse round trip")
	}
}

func TestFormatNewAndDelete(t *testing.T) {
	text := "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,1 @@\n+hi\n"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	out := Format(p)
	if !strings.HasPrefix(out, "--- /dev/null\n+++ b/new.txt\n") {
		t.Errorf("Format() = %q", out)
	}
}

// =============================================================================
// STRATEGY TESTS
// =============================================================================

func TestStrategyString(t *testing.T) {
	tests := []struct {
		s    Strategy
		want string
	}{
		{StrategyNone, "none"},
		{StrategyExact, "exact"},
		{StrategyOffset, "offset"},
		{StrategyTrimmed, "trimmed"},
		{StrategyFuzz1, "fuzz1"},
		{StrategyFuzz2, "fuzz2"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Strategy(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestHunkError(t *testing.T) {
	e := &HunkError{HunkIndex: 0, OldStart: 7, Reason: "no matching context found"}
	want := "hunk 1 (at line 7): no matching context found"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
