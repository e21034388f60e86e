// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for the forgechat CLI.
//
// Handles the "forgechat chat" command which provides an interactive
// REPL for conversing with the model.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /model [name]       Show or switch model
//   /undo, /u           Remove the last exchange
//   /redo, /r           Restore an undone exchange
//   /reasoning          Toggle display of model reasoning
//   /history            Show the conversation so far
//   /save               Save the conversation now
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/gitctx"
	"github.com/jeranaias/forgechat/internal/session"
	"github.com/jeranaias/forgechat/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	Config   *config.Config
	Provider string
	Model    string
	Quiet    bool
	Verbose  bool

	// ShowReasoning controls live display of reasoning tokens. It can
	// be toggled mid-session with /reasoning.
	ShowReasoning bool

	// Manager owns the conversation and persists it when history is
	// enabled.
	Manager *session.Manager
	store   *storage.Store

	// Expander handles @file: / @git / @staged mentions.
	Expander *gitctx.Expander

	// Cancel function for the in-flight stream
	CancelFunc context.CancelFunc

	InputCLI *ChatCLI
}

// HandleChatCommand implements the "chat" command.
func HandleChatCommand(args Args) error {
	if err := requireTTY(); err != nil {
		return err
	}

	cfg := config.Global()
	provider := resolveProvider(cfg, args.Provider)
	model := resolveModel(cfg, provider, args.Model)

	sess := &ChatSession{
		Config:        cfg,
		Provider:      provider,
		Model:         model,
		Quiet:         args.Quiet,
		Verbose:       args.Verbose,
		ShowReasoning: args.ShowReasoning || cfg.Chat.ShowReasoning,
		Expander:      gitctx.NewExpander(gitctx.NewFetcher(gitctx.DefaultFetcherConfig())),
		InputCLI:      NewChatCLI(),
	}
	defer sess.InputCLI.Close()

	// Open conversation persistence when history is enabled. A broken
	// history database degrades to an in-memory session, not a crash.
	var opts []session.Option
	if cfg.History.Enabled {
		path := cfg.History.DatabasePath
		if path == "" {
			var err error
			path, err = storage.DefaultPath()
			if err != nil {
				path = ""
			}
		}
		if path != "" {
			store, err := storage.Open(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: history disabled: "+err.Error()))
			} else {
				sess.store = store
				defer store.Close()
				opts = append(opts, session.WithStore(store))
			}
		}
	}
	opts = append(opts, session.WithCallbacks(
		func() {
			fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("Session expires soon, press Enter to stay active"))
		},
		nil,
	))
	sess.Manager = session.NewManager(opts...)

	if resumeID := args.Options["resume"]; resumeID != "" {
		if _, err := sess.Manager.Resume(context.Background(), resumeID); err != nil {
			return &CommandError{Command: "chat", Action: "resume", Reason: "cannot resume conversation", Err: err}
		}
	} else {
		if _, err := sess.Manager.Start(model); err != nil {
			return err
		}
		sess.Manager.Conversation().SystemPrompt = systemPromptFor(cfg)
	}

	return runChatLoop(sess)
}

func requireTTY() error {
	if !IsTTY() {
		return &UsageError{Message: "chat requires an interactive terminal (use: forgechat ask)"}
	}
	return nil
}

// runChatLoop is the main REPL loop.
func runChatLoop(sess *ChatSession) error {
	if !sess.Quiet {
		printWelcome(sess)
	}

	// First Ctrl+C cancels the in-flight generation; at the prompt,
	// liner turns it into ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if sess.CancelFunc != nil {
				sess.CancelFunc()
				sess.CancelFunc = nil
				fmt.Fprintln(os.Stderr, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := sess.InputCLI.ReadInput(PromptStyle.Render("forgechat> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D both exit gracefully
			fmt.Println()
			return endChatSession(sess)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			sess.Manager.Touch()
			continue
		}

		if err := sess.Manager.Touch(); err != nil {
			if errors.Is(err, session.ErrSessionExpired) {
				fmt.Fprintln(os.Stderr, WarningStyle.Render("Session expired, starting a new one"))
				sess.Manager.End(context.Background())
				if _, err := sess.Manager.Start(sess.Model); err != nil {
					return err
				}
				sess.Manager.Conversation().SystemPrompt = systemPromptFor(sess.Config)
			}
		}

		if strings.HasPrefix(input, "/") {
			cont, err := handleSlashCommand(input, sess)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !cont {
				return endChatSession(sess)
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return endChatSession(sess)
		}

		if err := processMessage(sess, input); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// endChatSession flushes state and prints the exit summary.
func endChatSession(sess *ChatSession) error {
	printExitSummary(sess)
	return sess.Manager.End(context.Background())
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends a message and streams the response.
func processMessage(sess *ChatSession, input string) error {
	conv := sess.Manager.Conversation()
	if conv == nil {
		return session.ErrNoSession
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.CancelFunc = cancel
	defer func() {
		sess.CancelFunc = nil
		cancel()
	}()

	// Expand @-mentions before sending
	sendText := input
	if gitctx.HasMentions(input) {
		result := sess.Expander.Expand(ctx, input)
		if result.HasErrors() {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: "+result.ErrorSummary()))
		}
		sendText = result.ExpandedMessage
	}

	conv.AddUserMessage(sendText)

	fmt.Println()
	sink := tokenSink{
		OnContent: func(token string) { fmt.Print(token) },
	}
	if sess.ShowReasoning {
		sink.OnReasoning = func(token string) { fmt.Print(ReasoningStyle.Render(token)) }
	}

	stats, err := streamReply(ctx, sess.Config, sess.Provider, sess.Model, conv, sink)
	if err != nil {
		// Drop the failed exchange so a retry does not resend a
		// half-answered turn
		conv.Undo()
		return err
	}
	fmt.Println()

	if !sess.Quiet {
		fmt.Println(DimStyle.Render(stats.Format()))
	}
	fmt.Println()

	sess.Manager.MarkDirty()
	if err := sess.Manager.SaveIfDirty(ctx); err != nil && sess.Verbose {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: save failed: "+err.Error()))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a / command. Returns false when the
// session should end.
func handleSlashCommand(input string, sess *ChatSession) (bool, error) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	cmdArgs := parts[1:]

	conv := sess.Manager.Conversation()

	switch command {
	case "/help", "/h", "/?":
		printChatHelp()
		return true, nil

	case "/clear", "/c":
		if conv != nil {
			conv.ClearHistory()
			sess.Manager.MarkDirty()
		}
		fmt.Println(DimStyle.Render("Conversation cleared"))
		return true, nil

	case "/model", "/m":
		return true, handleModelSwitch(sess, cmdArgs)

	case "/undo", "/u":
		if conv == nil || !conv.CanUndo() {
			return true, errors.New("nothing to undo")
		}
		conv.Undo()
		sess.Manager.MarkDirty()
		fmt.Println(DimStyle.Render("Removed last exchange"))
		return true, nil

	case "/redo", "/r":
		if conv == nil || !conv.CanRedo() {
			return true, errors.New("nothing to redo")
		}
		conv.Redo()
		sess.Manager.MarkDirty()
		fmt.Println(DimStyle.Render("Restored exchange"))
		return true, nil

	case "/reasoning":
		sess.ShowReasoning = !sess.ShowReasoning
		if sess.ShowReasoning {
			fmt.Println(DimStyle.Render("Reasoning display on"))
		} else {
			fmt.Println(DimStyle.Render("Reasoning display off"))
		}
		return true, nil

	case "/history":
		printConversation(conv)
		return true, nil

	case "/save":
		sess.Manager.MarkDirty()
		if err := sess.Manager.SaveIfDirty(context.Background()); err != nil {
			return true, err
		}
		if sess.store == nil {
			fmt.Println(DimStyle.Render("History is disabled, nothing saved"))
		} else if conv != nil {
			fmt.Println(SuccessStyle.Render("Saved ") + DimStyle.Render(conv.ID))
		}
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", command)
	}
}

// handleModelSwitch shows or switches the active model.
func handleModelSwitch(sess *ChatSession, args []string) error {
	if len(args) == 0 {
		fmt.Printf("%s %s (%s)\n", LabelStyle.Render("Model:"), ValueStyle.Render(sess.Model), sess.Provider)
		return nil
	}
	sess.Model = args[0]
	if conv := sess.Manager.Conversation(); conv != nil {
		conv.Model = sess.Model
		sess.Manager.MarkDirty()
	}
	fmt.Println(DimStyle.Render("Switched to " + sess.Model))
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func printWelcome(sess *ChatSession) {
	fmt.Println(TitleStyle.Render("forgechat " + Version))
	fmt.Printf("%s %s (%s)\n", DimStyle.Render("Model:"), sess.Model, sess.Provider)
	if sess.store != nil {
		fmt.Println(DimStyle.Render("History: on"))
	}
	fmt.Println(DimStyle.Render("Type /help for commands, Ctrl+D to exit"))
	fmt.Println()
}

func printChatHelp() {
	commands := [][2]string{
		{"/help", "Show this help"},
		{"/clear", "Clear conversation history"},
		{"/model [name]", "Show or switch model"},
		{"/undo", "Remove the last exchange"},
		{"/redo", "Restore an undone exchange"},
		{"/reasoning", "Toggle display of model reasoning"},
		{"/history", "Show the conversation so far"},
		{"/save", "Save the conversation now"},
		{"/quit", "Exit chat"},
	}
	fmt.Println(TitleStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Printf("  %s %s\n", LabelStyle.Render(c[0]), DimStyle.Render(c[1]))
	}
	fmt.Println(DimStyle.Render("  @file:path, @git, @staged, @clipboard, @error expand into context"))
	fmt.Println()
}

// printConversation prints the transcript of the current conversation.
func printConversation(conv *chat.Conversation) {
	if conv == nil || conv.IsEmpty() {
		fmt.Println(DimStyle.Render("No messages yet"))
		return
	}
	for _, msg := range conv.Messages {
		label := msg.Role.DisplayName()
		switch msg.Role {
		case chat.RoleUser:
			fmt.Println(PromptStyle.Render(label + ":"))
		default:
			fmt.Println(SuccessStyle.Render(label + ":"))
		}
		fmt.Println(msg.GetDisplayContent())
		fmt.Println()
	}
}

func printExitSummary(sess *ChatSession) {
	if sess.Quiet {
		return
	}
	conv := sess.Manager.Conversation()
	if conv == nil || conv.IsEmpty() {
		return
	}
	fmt.Println(DimStyle.Render(fmt.Sprintf("%d messages, ~%d tokens", conv.MessageCount(), conv.EstimateTokens())))
	if sess.store != nil {
		fmt.Println(DimStyle.Render("Resume with: forgechat chat --resume " + conv.ID))
	}
}
