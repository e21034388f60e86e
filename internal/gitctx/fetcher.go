// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrFileNotFound is returned when a mentioned file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileTooLarge is returned when a file exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrBadLineRange is returned for a line range outside the file.
	ErrBadLineRange = errors.New("line range out of bounds")

	// ErrClipboardEmpty is returned when the clipboard holds nothing.
	ErrClipboardEmpty = errors.New("clipboard is empty")

	// ErrClipboardUnavailable is returned when no clipboard tool works.
	ErrClipboardUnavailable = errors.New("clipboard unavailable")

	// ErrNotGitRepo is returned outside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoError is returned by @error when nothing is stored.
	ErrNoError = errors.New("no recent error stored")

	// ErrNoChanges is returned when a requested diff is empty.
	ErrNoChanges = errors.New("no changes")
)

// =============================================================================
// FETCHER
// =============================================================================

const (
	clipboardTimeout = 5 * time.Second
	gitTimeout       = 10 * time.Second
)

// FetcherConfig holds limits for context fetchers.
type FetcherConfig struct {
	// MaxFileSize is the largest file read for @file (default 100KB).
	MaxFileSize int64

	// MaxLines caps the lines included per file (default 1000).
	MaxLines int

	// WorkingDirectory is the base for relative paths and git commands.
	WorkingDirectory string

	// GitCommitCount is the number of commits shown for @git.
	GitCommitCount int
}

// DefaultFetcherConfig returns the default limits.
func DefaultFetcherConfig() *FetcherConfig {
	wd, _ := os.Getwd()
	return &FetcherConfig{
		MaxFileSize:      100 * 1024,
		MaxLines:         1000,
		WorkingDirectory: wd,
		GitCommitCount:   10,
	}
}

// Fetcher resolves mention content from the workspace.
type Fetcher struct {
	config *FetcherConfig
	cache  *FileCache

	lastError string
}

// NewFetcher creates a fetcher. A nil config selects the defaults.
func NewFetcher(config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultFetcherConfig()
	}
	return &Fetcher{
		config: config,
		cache:  DefaultFileCache,
	}
}

// SetFileCache replaces the file cache. A nil cache disables caching.
func (f *Fetcher) SetFileCache(cache *FileCache) {
	f.cache = cache
}

// StoreError records an error message for later @error retrieval.
func (f *Fetcher) StoreError(msg string) {
	f.lastError = msg
}

// Fetch resolves content for a single mention in place.
func (f *Fetcher) Fetch(ctx context.Context, m *Mention) {
	switch m.Type {
	case MentionFile:
		if m.StartLine > 0 {
			m.Content, m.Error = f.FetchSelection(m.Path, m.StartLine, m.EndLine)
		} else {
			m.Content, m.Error = f.FetchFile(m.Path)
		}
	case MentionGit:
		m.Content, m.Error = f.FetchGit(ctx, m.Range)
	case MentionStaged:
		m.Content, m.Error = f.StagedDiff(ctx)
	case MentionClipboard:
		m.Content, m.Error = f.FetchClipboard(ctx)
	case MentionLastError:
		m.Content, m.Error = f.FetchError()
	}
}

// FetchAll resolves every mention, returning a new slice.
func (f *Fetcher) FetchAll(ctx context.Context, mentions []Mention) []Mention {
	result := make([]Mention, len(mentions))
	copy(result, mentions)
	for i := range result {
		f.Fetch(ctx, &result[i])
	}
	return result
}

// =============================================================================
// FILE FETCHER
// =============================================================================

// FetchFile reads a file, numbered per line, within the configured
// limits. Repeated reads are served from the cache until the file's
// mtime changes.
func (f *Fetcher) FetchFile(path string) (string, error) {
	path = f.resolve(path)

	if f.cache != nil {
		if content, hit := f.cache.Get(path); hit {
			return content, nil
		}
	}

	lines, info, err := f.readLimited(path)
	if err != nil {
		return "", err
	}

	truncated := false
	if len(lines) > f.config.MaxLines {
		lines = append(lines[:f.config.MaxLines], "... (truncated)")
		truncated = true
	}

	content := numberLines(path, lines, 1)

	if f.cache != nil && !truncated {
		f.cache.Put(path, content, info.ModTime())
	}
	return content, nil
}

// FetchSelection reads a 1-based inclusive line range from a file,
// numbered with the original line numbers.
func (f *Fetcher) FetchSelection(path string, startLine, endLine int) (string, error) {
	path = f.resolve(path)

	lines, _, err := f.readLimited(path)
	if err != nil {
		return "", err
	}

	if endLine == 0 || endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine < 1 || startLine > len(lines) || startLine > endLine {
		return "", fmt.Errorf("%w: %d-%d of %d lines", ErrBadLineRange, startLine, endLine, len(lines))
	}

	return numberLines(path, lines[startLine-1:endLine], startLine), nil
}

func (f *Fetcher) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.config.WorkingDirectory, path)
}

func (f *Fetcher) readLimited(path string) ([]string, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, errors.New("path is a directory")
	}
	if info.Size() > f.config.MaxFileSize {
		return nil, nil, ErrFileTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	text := strings.TrimSuffix(string(data), "\n")
	return strings.Split(text, "\n"), info, nil
}

// numberLines formats lines with right-aligned line numbers and a
// file header. startNum is the number of the first line.
func numberLines(path string, lines []string, startNum int) string {
	var sb strings.Builder
	sb.WriteString("File: ")
	sb.WriteString(path)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")
	for i, line := range lines {
		fmt.Fprintf(&sb, "%4d| %s\n", startNum+i, line)
	}
	return sb.String()
}

// =============================================================================
// GIT FETCHERS
// =============================================================================

// git runs a git subcommand in the working directory with a timeout.
func (f *Fetcher) git(ctx context.Context, args ...string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gitTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = f.config.WorkingDirectory

	output, err := cmd.Output()
	if err != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// IsGitRepo reports whether the working directory is inside a git
// repository.
func (f *Fetcher) IsGitRepo(ctx context.Context) bool {
	_, err := f.git(ctx, "rev-parse", "--git-dir")
	return err == nil
}

func (f *Fetcher) requireRepo(ctx context.Context) error {
	if !f.IsGitRepo(ctx) {
		return ErrNotGitRepo
	}
	return nil
}

// StagedDiff returns the diff of staged changes.
func (f *Fetcher) StagedDiff(ctx context.Context) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	out, err := f.git(ctx, "diff", "--cached")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w staged", ErrNoChanges)
	}
	return out, nil
}

// UnstagedDiff returns the diff of unstaged changes.
func (f *Fetcher) UnstagedDiff(ctx context.Context) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	out, err := f.git(ctx, "diff")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w unstaged", ErrNoChanges)
	}
	return out, nil
}

// CombinedDiff returns staged plus unstaged changes against HEAD,
// the diff a commit of everything would record. Used for commit
// message generation.
func (f *Fetcher) CombinedDiff(ctx context.Context) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	out, err := f.git(ctx, "diff", "HEAD")
	if err != nil {
		// A repository with no commits yet has no HEAD; fall back to
		// the staged diff.
		return f.StagedDiff(ctx)
	}
	if out == "" {
		return "", ErrNoChanges
	}
	return out, nil
}

// RangeDiff returns the diff for a commit range, e.g. "HEAD~3.." or
// "v1.0..v1.1".
func (f *Fetcher) RangeDiff(ctx context.Context, gitRange string) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	out, err := f.git(ctx, "diff", gitRange)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w in range %s", ErrNoChanges, gitRange)
	}
	return out, nil
}

// RecentLog returns recent one-line commit history. An empty gitRange
// selects the configured commit count.
func (f *Fetcher) RecentLog(ctx context.Context, gitRange string) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	args := []string{"log", "--oneline"}
	if gitRange != "" {
		args = append(args, gitRange)
	} else {
		args = append(args, "-n", fmt.Sprintf("%d", f.config.GitCommitCount))
	}
	return f.git(ctx, args...)
}

// Status returns the short git status.
func (f *Fetcher) Status(ctx context.Context) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}
	return f.git(ctx, "status", "--short")
}

// FetchGit assembles the @git context block: recent commits, status,
// and a change summary.
func (f *Fetcher) FetchGit(ctx context.Context, gitRange string) (string, error) {
	if err := f.requireRepo(ctx); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Git Context\n")
	sb.WriteString(strings.Repeat("=", 40))
	sb.WriteString("\n")

	if commits, err := f.RecentLog(ctx, gitRange); err == nil && commits != "" {
		sb.WriteString("\nRecent Commits:\n")
		sb.WriteString(commits)
		sb.WriteString("\n")
	}
	if status, err := f.Status(ctx); err == nil && status != "" {
		sb.WriteString("\nStatus:\n")
		sb.WriteString(status)
		sb.WriteString("\n")
	}
	if stat, err := f.git(ctx, "diff", "--stat"); err == nil && stat != "" {
		sb.WriteString("\nChanges:\n")
		sb.WriteString(stat)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// =============================================================================
// CLIPBOARD FETCHER
// =============================================================================

// FetchClipboard reads the system clipboard, trying the platform tools
// in order.
func (f *Fetcher) FetchClipboard(ctx context.Context) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, clipboardTimeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	switch {
	case lookPath("xclip"):
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-o")
	case lookPath("xsel"):
		cmd = exec.CommandContext(ctx, "xsel", "--clipboard", "--output")
	case lookPath("pbpaste"):
		cmd = exec.CommandContext(ctx, "pbpaste")
	case lookPath("powershell.exe"):
		cmd = exec.CommandContext(ctx, "powershell.exe", "-command", "Get-Clipboard")
	default:
		return "", ErrClipboardUnavailable
	}

	output, err := cmd.Output()
	if err != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return "", ErrClipboardUnavailable
	}

	content := strings.TrimSpace(string(output))
	if content == "" {
		return "", ErrClipboardEmpty
	}
	return content, nil
}

func lookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// =============================================================================
// ERROR FETCHER
// =============================================================================

// FetchError returns the last stored error message.
func (f *Fetcher) FetchError() (string, error) {
	if f.lastError == "" {
		return "", ErrNoError
	}
	return "Last Error:\n" + strings.Repeat("-", 40) + "\n" + f.lastError, nil
}
