// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for forgechat.
//
// Streams the answer token by token when stdout is piped, or collects
// it and renders markdown when stdout is a terminal. Context mentions
// (@file:path, @git, @staged, @clipboard, @error) are expanded before
// sending.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/gitctx"
)

// MaxContextFileSize limits files included with --file.
const MaxContextFileSize = 100 * 1024

// markdownRenderer is the global glamour renderer for markdown output.
// nil when initialization failed, callers fall back to plain text.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown for terminal display, falling back
// to the raw text when the renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// HandleAskCommand implements the "ask" command.
func HandleAskCommand(args Args) error {
	if args.Query == "" && !IsStdinPiped() {
		return &UsageError{Message: `no question given (usage: forgechat ask "question")`}
	}

	cfg := config.Global()

	query, err := buildAskQuery(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expand @file: / @git / @staged mentions inline
	if gitctx.HasMentions(query) {
		expander := gitctx.NewExpander(gitctx.NewFetcher(gitctx.DefaultFetcherConfig()))
		result := expander.Expand(ctx, query)
		if result.HasErrors() && !args.Quiet {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: "+result.ErrorSummary()))
		}
		query = result.ExpandedMessage
	}

	provider := resolveProvider(cfg, args.Provider)
	model := resolveModel(cfg, provider, args.Model)
	showReasoning := args.ShowReasoning || cfg.Chat.ShowReasoning

	conv := chat.NewConversationWithModel(model)
	conv.SystemPrompt = systemPromptFor(cfg)
	conv.AddUserMessage(query)

	// TTY: collect and render markdown. Piped: stream plain tokens.
	if IsStdoutTTY() {
		return askRendered(ctx, cfg, provider, model, conv, args, showReasoning)
	}
	return askStreamed(ctx, cfg, provider, model, conv, args, showReasoning)
}

// askStreamed writes tokens to stdout as they arrive.
func askStreamed(ctx context.Context, cfg *config.Config, provider, model string, conv *chat.Conversation, args Args, showReasoning bool) error {
	sink := tokenSink{
		OnContent: func(token string) { fmt.Print(token) },
	}
	if showReasoning {
		sink.OnReasoning = func(token string) { fmt.Fprint(os.Stderr, token) }
	}

	stats, err := streamReply(ctx, cfg, provider, model, conv, sink)
	if err != nil {
		return err
	}
	fmt.Println()

	if args.Verbose {
		fmt.Fprintln(os.Stderr, stats.Format())
	}
	return nil
}

// askRendered collects the full answer, then renders it as markdown.
// Tokens are not echoed while streaming so the rendered output is the
// only copy on screen.
func askRendered(ctx context.Context, cfg *config.Config, provider, model string, conv *chat.Conversation, args Args, showReasoning bool) error {
	if !args.Quiet {
		fmt.Println(DimStyle.Render(fmt.Sprintf("%s · %s", provider, model)))
	}

	sink := tokenSink{}
	if showReasoning {
		// Reasoning goes to stderr live; the answer waits for rendering
		sink.OnReasoning = func(token string) {
			fmt.Fprint(os.Stderr, ReasoningStyle.Render(token))
		}
	}

	stats, err := streamReply(ctx, cfg, provider, model, conv, sink)
	if err != nil {
		return err
	}

	msg := conv.GetLastAssistantMessage()
	if msg != nil {
		fmt.Println()
		fmt.Print(renderMarkdown(msg.GetDisplayContent()))
	}
	fmt.Println()

	if !args.Quiet {
		fmt.Println(DimStyle.Render(stats.Format()))
	}
	return nil
}

// buildAskQuery assembles the question from arguments, piped stdin,
// and an optional context file.
func buildAskQuery(args Args) (string, error) {
	var sb strings.Builder
	sb.WriteString(args.Query)

	if IsStdinPiped() {
		piped, err := io.ReadAll(io.LimitReader(os.Stdin, MaxContextFileSize))
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		if len(piped) > 0 {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("```\n")
			sb.Write(piped)
			if piped[len(piped)-1] != '\n' {
				sb.WriteByte('\n')
			}
			sb.WriteString("```")
		}
	}

	if args.File != "" {
		content, err := readFileForContext(args.File)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n\n")
		sb.WriteString(content)
	}

	query := strings.TrimSpace(sb.String())
	if query == "" {
		return "", &UsageError{Message: "empty question"}
	}
	return query, nil
}

// readFileForContext reads a file for inclusion with the question,
// framed so the model knows where it came from.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &NotFoundError{Resource: "file", ID: path}
	}
	if info.Size() > MaxContextFileSize {
		return "", fmt.Errorf("file too large: %s (%d bytes, limit %d)", path, info.Size(), MaxContextFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- File: %s ---\n", path)
	sb.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		sb.WriteByte('\n')
	}
	sb.WriteString("--- End file ---")
	return sb.String(), nil
}
