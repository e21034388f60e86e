// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Conversation history command handlers for forgechat.
//
// Subcommands: list, show, search, delete. Backed by the sqlite
// history database.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/storage"
	"github.com/jeranaias/forgechat/internal/util"
)

// DefaultHistoryLimit caps list output unless --limit is given.
const DefaultHistoryLimit = 20

// HandleHistoryCommand implements the "history" command.
func HandleHistoryCommand(args Args) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args.Subcommand {
	case "", "list", "ls", "l":
		return historyList(ctx, store, args)
	case "show":
		return historyShow(ctx, store, args)
	case "search":
		return historySearch(ctx, store, args)
	case "delete", "rm":
		return historyDelete(ctx, store, args)
	default:
		return &UsageError{Message: fmt.Sprintf("unknown history subcommand %q (expected list, show, search, or delete)", args.Subcommand)}
	}
}

// openHistoryStore opens the configured history database.
func openHistoryStore() (*storage.Store, error) {
	cfg := config.Global()
	if !cfg.History.Enabled {
		return nil, &CommandError{
			Command: "history",
			Action:  "open",
			Reason:  "history is disabled (run: forgechat config set history.enabled true)",
		}
	}
	path := cfg.History.DatabasePath
	if path == "" {
		var err error
		path, err = storage.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return storage.Open(path)
}

func historyList(ctx context.Context, store *storage.Store, args Args) error {
	metas, err := store.List(ctx)
	if err != nil {
		return err
	}

	limit := DefaultHistoryLimit
	if v := args.Options["limit"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if len(metas) > limit {
		metas = metas[:limit]
	}

	return printHistoryMetas(metas, args)
}

func historySearch(ctx context.Context, store *storage.Store, args Args) error {
	if args.Query == "" {
		return &UsageError{Message: "usage: forgechat history search <text>"}
	}
	metas, err := store.Search(ctx, args.Query)
	if err != nil {
		return err
	}
	return printHistoryMetas(metas, args)
}

func printHistoryMetas(metas []chat.ConversationMeta, args Args) error {
	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(metas)
	}
	if len(metas) == 0 {
		fmt.Println(DimStyle.Render("No conversations"))
		return nil
	}

	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s\n", TitleStyle.Render(util.TruncateRunes(title, 60)), DimStyle.Render(m.ID))
		detail := fmt.Sprintf("%s · %d messages · %s", m.Model, m.MessageCount, m.UpdatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Println("  " + DimStyle.Render(detail))
		if m.Preview != "" {
			fmt.Println("  " + ValueStyle.Render(util.TruncateRunes(m.Preview, 76)))
		}
		fmt.Println()
	}
	return nil
}

func historyShow(ctx context.Context, store *storage.Store, args Args) error {
	if args.Query == "" {
		return &UsageError{Message: "usage: forgechat history show <id>"}
	}

	conv, err := store.Load(ctx, args.Query)
	if err != nil {
		return err
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(conv)
	}

	fmt.Println(TitleStyle.Render(conv.GetTitle()))
	fmt.Println(DimStyle.Render(fmt.Sprintf("%s · %s · %d messages", conv.ID, conv.Model, conv.MessageCount())))
	fmt.Println()
	for _, msg := range conv.Messages {
		fmt.Println(PromptStyle.Render(msg.Role.DisplayName() + ":"))
		content := msg.GetDisplayContent()
		if IsStdoutTTY() && msg.Role == chat.RoleAssistant {
			fmt.Print(renderMarkdown(content))
		} else {
			fmt.Println(content)
		}
		fmt.Println()
	}
	return nil
}

func historyDelete(ctx context.Context, store *storage.Store, args Args) error {
	if args.Query == "" {
		return &UsageError{Message: "usage: forgechat history delete <id>"}
	}
	if err := store.Delete(ctx, args.Query); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", SuccessStyle.Render("Deleted"), args.Query)
	return nil
}
