// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitctx

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// MENTION TYPES
// =============================================================================

// MentionType indicates the type of @ mention.
type MentionType int

const (
	MentionFile      MentionType = iota // @file:path or @file:path:10-20
	MentionGit                          // @git or @git:range
	MentionStaged                       // @staged
	MentionClipboard                    // @clipboard
	MentionLastError                    // @error
)

// String returns the string representation of the mention type.
func (t MentionType) String() string {
	switch t {
	case MentionFile:
		return "file"
	case MentionGit:
		return "git"
	case MentionStaged:
		return "staged"
	case MentionClipboard:
		return "clipboard"
	case MentionLastError:
		return "error"
	default:
		return "unknown"
	}
}

// Mention is one parsed @ mention in user input.
type Mention struct {
	Type MentionType

	// Raw is the original text, e.g. "@file:src/main.go:10-20".
	Raw string

	// Path for file mentions.
	Path string

	// StartLine and EndLine select a range for file mentions, 1-based
	// inclusive. Zero means the whole file.
	StartLine int
	EndLine   int

	// Range for git mentions, e.g. "HEAD~3".
	Range string

	// Content is populated by the fetcher.
	Content string
	Error   error

	// Start and End positions in the original input.
	Start int
	End   int
}

// HasError reports whether fetching the mention failed.
func (m *Mention) HasError() bool {
	return m.Error != nil
}

// =============================================================================
// PARSER
// =============================================================================

var (
	// @file:path, @file:"path with spaces", optional :start-end suffix
	filePattern = regexp.MustCompile(`@file:(?:"([^"]+)"|'([^']+)'|([^\s:]+))(?::(\d+)(?:-(\d+))?)?`)

	gitPattern       = regexp.MustCompile(`@git(?::(\S+))?\b`)
	stagedPattern    = regexp.MustCompile(`@staged\b`)
	clipboardPattern = regexp.MustCompile(`@clipboard\b`)
	errorPattern     = regexp.MustCompile(`@error\b`)
)

// MentionPrefixes returns the @ mention prefixes for completion.
func MentionPrefixes() []string {
	return []string{"@file:", "@git", "@staged", "@clipboard", "@error"}
}

// HasMentions reports whether the input contains any @ mentions.
func HasMentions(input string) bool {
	for _, p := range MentionPrefixes() {
		if strings.Contains(input, p) {
			return true
		}
	}
	return false
}

// ParseMentions extracts all @ mentions from the input. Returns the
// mentions in input order and the remaining text with mentions removed.
func ParseMentions(input string) ([]Mention, string) {
	var mentions []Mention

	for _, match := range filePattern.FindAllStringSubmatchIndex(input, -1) {
		m := Mention{
			Type:  MentionFile,
			Raw:   input[match[0]:match[1]],
			Start: match[0],
			End:   match[1],
		}
		// Path is whichever quoting alternative matched.
		for g := 1; g <= 3; g++ {
			if match[2*g] != -1 {
				m.Path = input[match[2*g]:match[2*g+1]]
				break
			}
		}
		if match[8] != -1 {
			m.StartLine = atoi(input[match[8]:match[9]])
			m.EndLine = m.StartLine
		}
		if match[10] != -1 {
			m.EndLine = atoi(input[match[10]:match[11]])
		}
		mentions = append(mentions, m)
	}

	for _, match := range gitPattern.FindAllStringSubmatchIndex(input, -1) {
		m := Mention{
			Type:  MentionGit,
			Raw:   input[match[0]:match[1]],
			Start: match[0],
			End:   match[1],
		}
		if match[2] != -1 {
			m.Range = input[match[2]:match[3]]
		}
		mentions = append(mentions, m)
	}

	simple := []struct {
		re *regexp.Regexp
		t  MentionType
	}{
		{stagedPattern, MentionStaged},
		{clipboardPattern, MentionClipboard},
		{errorPattern, MentionLastError},
	}
	for _, s := range simple {
		for _, match := range s.re.FindAllStringIndex(input, -1) {
			mentions = append(mentions, Mention{
				Type:  s.t,
				Raw:   input[match[0]:match[1]],
				Start: match[0],
				End:   match[1],
			})
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Start < mentions[j].Start
	})

	return mentions, stripMentions(input, mentions)
}

// stripMentions removes mention spans from the input and collapses the
// leftover whitespace.
func stripMentions(input string, mentions []Mention) string {
	if len(mentions) == 0 {
		return input
	}

	var sb strings.Builder
	last := 0
	for _, m := range mentions {
		if m.Start < last {
			continue
		}
		sb.WriteString(input[last:m.Start])
		last = m.End
	}
	sb.WriteString(input[last:])

	return strings.TrimSpace(strings.Join(strings.Fields(sb.String()), " "))
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
