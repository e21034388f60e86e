// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commitmsg.go - Commit message generation command for forgechat.
//
// Feeds the working tree diff (or a commit range) through the
// git-comment prompt template and prints the model's commit message to
// stdout, suitable for: git commit -F <(forgechat commit-msg)
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/gitctx"
	"github.com/jeranaias/forgechat/internal/prompt"
)

// HandleCommitMsgCommand implements the "commit-msg" command.
func HandleCommitMsgCommand(args Args) error {
	cfg := config.Global()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := gitctx.NewFetcher(gitctx.DefaultFetcherConfig())
	if !fetcher.IsGitRepo(ctx) {
		return &CommandError{Command: "commit-msg", Action: "diff", Reason: "not inside a git repository"}
	}

	diff, err := gatherDiff(ctx, fetcher, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(diff) == "" {
		return &CommandError{Command: "commit-msg", Action: "diff", Reason: "no changes to describe"}
	}

	loader := newPromptLoader(cfg)
	query, err := loader.Render(prompt.KindGitComment, map[string]string{"diff": diff})
	if err != nil {
		return err
	}

	provider := resolveProvider(cfg, args.Provider)
	model := resolveModel(cfg, provider, args.Model)

	conv := chat.NewConversationWithModel(model)
	conv.AddUserMessage(query)

	sink := tokenSink{}
	if _, err := streamReply(ctx, cfg, provider, model, conv, sink); err != nil {
		return err
	}

	msg := conv.GetLastAssistantMessage()
	if msg == nil || strings.TrimSpace(msg.GetDisplayContent()) == "" {
		return &CommandError{Command: "commit-msg", Action: "generate", Reason: "model returned no message"}
	}

	fmt.Println(strings.TrimSpace(stripFences(msg.GetDisplayContent())))
	return nil
}

// gatherDiff selects the diff source: a commit range, staged changes,
// or the combined working tree diff.
func gatherDiff(ctx context.Context, fetcher *gitctx.Fetcher, args Args) (string, error) {
	if r := args.Options["range"]; r != "" {
		return fetcher.RangeDiff(ctx, r)
	}
	if args.Options["staged"] == "true" {
		return fetcher.StagedDiff(ctx)
	}
	return fetcher.CombinedDiff(ctx)
}

// stripFences removes a wrapping markdown code fence if the model
// ignored the "no fences" instruction.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return s
}
