// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitctx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MENTION PARSING TESTS
// =============================================================================

func TestParseMentionsFile(t *testing.T) {
	mentions, clean := ParseMentions("explain @file:src/main.go please")
	if len(mentions) != 1 {
		t.Fatalf("len(mentions) = %d, want 1", len(mentions))
	}
	m := mentions[0]
	if m.Type != MentionFile || m.Path != "src/main.go" {
		t.Errorf("mention = %v %q", m.Type, m.Path)
	}
	if m.StartLine != 0 {
		t.Errorf("StartLine = %d, want 0 for whole file", m.StartLine)
	}
	if clean != "explain please" {
		t.Errorf("clean = %q", clean)
	}
}

func TestParseMentionsFileQuoted(t *testing.T) {
	mentions, _ := ParseMentions(`@file:"my dir/a b.go" what is this`)
	if len(mentions) != 1 || mentions[0].Path != "my dir/a b.go" {
		t.Fatalf("mentions = %+v", mentions)
	}
}

func TestParseMentionsLineRange(t *testing.T) {
	tests := []struct {
		input      string
		start, end int
	}{
		{"@file:main.go:10-20 x", 10, 20},
		{"@file:main.go:7 x", 7, 7},
	}
	for _, tt := range tests {
		mentions, _ := ParseMentions(tt.input)
		if len(mentions) != 1 {
			t.Fatalf("ParseMentions(%q): %d mentions", tt.input, len(mentions))
		}
		m := mentions[0]
		if m.Path != "main.go" || m.StartLine != tt.start || m.EndLine != tt.end {
			t.Errorf("ParseMentions(%q) = %q %d-%d, want main.go %d-%d",
				tt.input, m.Path, m.StartLine, m.EndLine, tt.start, tt.end)
		}
	}
}

func TestParseMentionsGit(t *testing.T) {
	mentions, _ := ParseMentions("summarize @git:HEAD~3")
	if len(mentions) != 1 || mentions[0].Type != MentionGit || mentions[0].Range != "HEAD~3" {
		t.Fatalf("mentions = %+v", mentions)
	}

	mentions, _ = ParseMentions("what changed? @git")
	if len(mentions) != 1 || mentions[0].Range != "" {
		t.Fatalf("mentions = %+v", mentions)
	}
}

func TestParseMentionsSimpleKinds(t *testing.T) {
	input := "look at @staged and @clipboard and @error"
	mentions, clean := ParseMentions(input)
	if len(mentions) != 3 {
		t.Fatalf("len(mentions) = %d, want 3", len(mentions))
	}
	wantTypes := []MentionType{MentionStaged, MentionClipboard, MentionLastError}
	for i, want := range wantTypes {
		if mentions[i].Type != want {
			t.Errorf("mentions[%d].Type = %v, want %v", i, mentions[i].Type, want)
		}
	}
	if clean != "look at and and" {
		t.Errorf("clean = %q", clean)
	}
}

func TestParseMentionsOrder(t *testing.T) {
	mentions, _ := ParseMentions("@staged then @file:a.go then @git")
	if len(mentions) != 3 {
		t.Fatalf("len(mentions) = %d, want 3", len(mentions))
	}
	if mentions[0].Type != MentionStaged || mentions[1].Type != MentionFile || mentions[2].Type != MentionGit {
		t.Errorf("order = %v %v %v", mentions[0].Type, mentions[1].Type, mentions[2].Type)
	}
}

func TestHasMentions(t *testing.T) {
	if !HasMentions("check @file:x.go") {
		t.Error("HasMentions() = false, want true")
	}
	if HasMentions("plain email a@b.com text") {
		t.Error("HasMentions() = true, want false")
	}
}

// =============================================================================
// FILE FETCHER TESTS
// =============================================================================

func testFetcher(t *testing.T) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultFetcherConfig()
	cfg.WorkingDirectory = dir
	f := NewFetcher(cfg)
	f.SetFileCache(NewFileCache(10, 1024*1024))
	return f, dir
}

func TestFetchFile(t *testing.T) {
	f, dir := testFetcher(t)
	os.WriteFile(filepath.Join(dir, "hello.go"), []byte("package main\n\nfunc main() {}\n"), 0o644)

	content, err := f.FetchFile("hello.go")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if !strings.Contains(content, "File: ") {
		t.Error("missing file header")
	}
	if !strings.Contains(content, "   1| package main") {
		t.Errorf("missing numbered first line:\n%s", content)
	}
	if !strings.Contains(content, "   3| func main() {}") {
		t.Errorf("missing numbered third line:\n%s", content)
	}
}

func TestFetchFileNotFound(t *testing.T) {
	f, _ := testFetcher(t)
	if _, err := f.FetchFile("missing.go"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}
}

func TestFetchFileTooLarge(t *testing.T) {
	f, dir := testFetcher(t)
	f.config.MaxFileSize = 4
	os.WriteFile(filepath.Join(dir, "big.txt"), []byte("more than four bytes"), 0o644)

	if _, err := f.FetchFile("big.txt"); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}

func TestFetchFileTruncation(t *testing.T) {
	f, dir := testFetcher(t)
	f.config.MaxLines = 2
	os.WriteFile(filepath.Join(dir, "long.txt"), []byte("a\nb\nc\nd\n"), 0o644)

	content, err := f.FetchFile("long.txt")
	if err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	if !strings.Contains(content, "... (truncated)") {
		t.Errorf("missing truncation marker:\n%s", content)
	}
	if strings.Contains(content, "| c") {
		t.Error("content beyond MaxLines included")
	}
}

func TestFetchSelection(t *testing.T) {
	f, dir := testFetcher(t)
	os.WriteFile(filepath.Join(dir, "sel.txt"), []byte("one\ntwo\nthree\nfour\n"), 0o644)

	content, err := f.FetchSelection("sel.txt", 2, 3)
	if err != nil {
		t.Fatalf("FetchSelection() error = %v", err)
	}
	if !strings.Contains(content, "   2| two") || !strings.Contains(content, "   3| three") {
		t.Errorf("selection content:\n%s", content)
	}
	if strings.Contains(content, "| one") || strings.Contains(content, "| four") {
		t.Error("selection includes lines outside the range")
	}
}

func TestFetchSelectionBadRange(t *testing.T) {
	f, dir := testFetcher(t)
	os.WriteFile(filepath.Join(dir, "sel.txt"), []byte("one\ntwo\n"), 0o644)

	if _, err := f.FetchSelection("sel.txt", 5, 9); !errors.Is(err, ErrBadLineRange) {
		t.Errorf("error = %v, want ErrBadLineRange", err)
	}
	if _, err := f.FetchSelection("sel.txt", 2, 1); !errors.Is(err, ErrBadLineRange) {
		t.Errorf("inverted range error = %v, want ErrBadLineRange", err)
	}
}

func TestFetchError(t *testing.T) {
	f, _ := testFetcher(t)
	if _, err := f.FetchError(); !errors.Is(err, ErrNoError) {
		t.Errorf("error = %v, want ErrNoError", err)
	}

	f.StoreError("build failed: main.go:10: undefined: x")
	content, err := f.FetchError()
	if err != nil {
		t.Fatalf("FetchError() error = %v", err)
	}
	if !strings.Contains(content, "undefined: x") {
		t.Errorf("content = %q", content)
	}
}

// =============================================================================
// GIT TESTS
// =============================================================================

func TestGitOutsideRepo(t *testing.T) {
	f, _ := testFetcher(t)
	ctx := context.Background()

	if f.IsGitRepo(ctx) {
		t.Skip("temp dir unexpectedly inside a git repository")
	}
	if _, err := f.StagedDiff(ctx); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("StagedDiff() error = %v, want ErrNotGitRepo", err)
	}
	if _, err := f.UnstagedDiff(ctx); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("UnstagedDiff() error = %v, want ErrNotGitRepo", err)
	}
	if _, err := f.CombinedDiff(ctx); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("CombinedDiff() error = %v, want ErrNotGitRepo", err)
	}
	if _, err := f.RangeDiff(ctx, "HEAD~1.."); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("RangeDiff() error = %v, want ErrNotGitRepo", err)
	}
	if _, err := f.FetchGit(ctx, ""); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("FetchGit() error = %v, want ErrNotGitRepo", err)
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestFileCacheHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("content"), 0o644)
	info, _ := os.Stat(path)

	c := NewFileCache(10, 1024)
	c.Put(path, "formatted", info.ModTime())

	got, hit := c.Get(path)
	if !hit || got != "formatted" {
		t.Errorf("Get() = %q, %v", got, hit)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.EntryCount != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestFileCacheMtimeInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("v1"), 0o644)
	info, _ := os.Stat(path)

	c := NewFileCache(10, 1024)
	// Cache against an mtime in the past so the current file looks
	// newer.
	c.Put(path, "stale", info.ModTime().Add(-time.Hour))

	if _, hit := c.Get(path); hit {
		t.Error("Get() hit on a modified file")
	}
	if c.Stats().EntryCount != 0 {
		t.Error("stale entry not evicted")
	}
}

func TestFileCacheMissingFile(t *testing.T) {
	c := NewFileCache(10, 1024)
	c.Put("/no/such/file", "x", time.Now())
	if _, hit := c.Get("/no/such/file"); hit {
		t.Error("Get() hit on a deleted file")
	}
}

func TestFileCacheEviction(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(2, 1024*1024)

	paths := make([]string, 3)
	for i, name := range []string{"a", "b", "c"} {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte(name), 0o644)
		paths[i] = p
	}

	info0, _ := os.Stat(paths[0])
	c.Put(paths[0], "a", info0.ModTime())
	info1, _ := os.Stat(paths[1])
	c.Put(paths[1], "b", info1.ModTime())

	// Touch a so b is least recently used.
	c.Get(paths[0])

	info2, _ := os.Stat(paths[2])
	c.Put(paths[2], "c", info2.ModTime())

	if _, hit := c.Get(paths[1]); hit {
		t.Error("least recently used entry survived eviction")
	}
	if _, hit := c.Get(paths[0]); !hit {
		t.Error("recently used entry was evicted")
	}
}

// =============================================================================
// EXPANDER TESTS
// =============================================================================

func TestExpandNoMentions(t *testing.T) {
	e := NewExpander(nil)
	result := e.Expand(context.Background(), "just a question")
	if result.ExpandedMessage != "just a question" {
		t.Errorf("ExpandedMessage = %q", result.ExpandedMessage)
	}
	if len(result.Mentions) != 0 || result.HasErrors() {
		t.Errorf("result = %+v", result)
	}
}

func TestExpandFileMention(t *testing.T) {
	f, dir := testFetcher(t)
	os.WriteFile(filepath.Join(dir, "x.go"), []byte("package x\n"), 0o644)

	e := NewExpander(f)
	result := e.Expand(context.Background(), "explain @file:x.go briefly")

	if result.CleanMessage != "explain briefly" {
		t.Errorf("CleanMessage = %q", result.CleanMessage)
	}
	if !strings.Contains(result.ExpandedMessage, "<context>") {
		t.Error("missing context block")
	}
	if !strings.Contains(result.ExpandedMessage, `<file path="x.go">`) {
		t.Errorf("missing typed tag:\n%s", result.ExpandedMessage)
	}
	if !strings.Contains(result.ExpandedMessage, "package x") {
		t.Error("missing file content")
	}
	if !strings.HasSuffix(result.ExpandedMessage, "explain briefly") {
		t.Errorf("user message not appended:\n%s", result.ExpandedMessage)
	}
}

func TestExpandFailedMention(t *testing.T) {
	f, _ := testFetcher(t)
	e := NewExpander(f)
	result := e.Expand(context.Background(), "look at @file:nope.go")

	if !result.HasErrors() {
		t.Fatal("HasErrors() = false")
	}
	if !strings.Contains(result.ErrorSummary(), "file not found") {
		t.Errorf("ErrorSummary() = %q", result.ErrorSummary())
	}
	if strings.Contains(result.ExpandedMessage, "<context>") {
		t.Error("failed mention produced a context block")
	}
}
