// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitctx

import (
	"context"
	"strings"
)

// =============================================================================
// EXPANDER
// =============================================================================

// Expander turns @ mentions into a prompt-ready context block.
type Expander struct {
	fetcher *Fetcher
}

// NewExpander creates an expander. A nil fetcher selects the defaults.
func NewExpander(fetcher *Fetcher) *Expander {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	return &Expander{fetcher: fetcher}
}

// ExpansionResult is the outcome of expanding one message.
type ExpansionResult struct {
	// OriginalMessage is the input as typed.
	OriginalMessage string

	// ExpandedMessage has the fetched context prepended and mentions
	// removed. This is what goes to the model.
	ExpandedMessage string

	// CleanMessage is the input with mentions removed, for display.
	CleanMessage string

	Mentions []Mention
	Errors   []MentionError
}

// MentionError pairs a mention with its fetch failure.
type MentionError struct {
	Mention Mention
	Err     error
}

// HasErrors reports whether any mention failed to resolve.
func (r *ExpansionResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ErrorSummary joins the failures into one line.
func (r *ExpansionResult) ErrorSummary() string {
	var parts []string
	for _, e := range r.Errors {
		parts = append(parts, e.Mention.Raw+": "+e.Err.Error())
	}
	return strings.Join(parts, "; ")
}

// Expand resolves every @ mention in the message and builds the
// expanded message with a <context> block prepended.
func (e *Expander) Expand(ctx context.Context, message string) *ExpansionResult {
	result := &ExpansionResult{OriginalMessage: message}

	mentions, clean := ParseMentions(message)
	result.CleanMessage = clean

	if len(mentions) == 0 {
		result.ExpandedMessage = message
		return result
	}

	result.Mentions = e.fetcher.FetchAll(ctx, mentions)

	for _, m := range result.Mentions {
		if m.Error != nil {
			result.Errors = append(result.Errors, MentionError{Mention: m, Err: m.Error})
		}
	}

	result.ExpandedMessage = buildExpandedMessage(result.Mentions, clean)
	return result
}

// buildExpandedMessage prepends resolved mention content wrapped in
// typed tags.
func buildExpandedMessage(mentions []Mention, userMessage string) string {
	hasContent := false
	for _, m := range mentions {
		if m.Content != "" {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return userMessage
	}

	var sb strings.Builder
	sb.WriteString("<context>\n")
	for _, m := range mentions {
		if m.Content == "" {
			continue
		}
		sb.WriteString("\n<")
		sb.WriteString(m.Type.String())
		if m.Type == MentionFile && m.Path != "" {
			sb.WriteString(" path=\"")
			sb.WriteString(m.Path)
			sb.WriteString("\"")
		}
		sb.WriteString(">\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n</")
		sb.WriteString(m.Type.String())
		sb.WriteString(">\n")
	}
	sb.WriteString("\n</context>\n\n")
	sb.WriteString(userMessage)
	return sb.String()
}
