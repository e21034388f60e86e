// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for forgechat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdAsk Command = iota
	CmdChat
	CmdApply
	CmdCommitMsg
	CmdModels
	CmdConfig
	CmdHistory
	CmdPrompts
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet         bool
	Verbose       bool
	JSON          bool
	Model         string // Override the configured model
	Provider      string // Override the configured provider
	ShowReasoning bool   // Show model reasoning output

	// Command-specific
	Query      string
	File       string
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Patch application
	DryRun    bool
	MaxFuzz   int
	MaxOffset int

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g., --limit, --range)
	Options map[string]string
}

const usageText = `forgechat - AI chat assistant for the terminal

Forgechat streams answers from an OpenAI-compatible endpoint or a
local Ollama server, understands your Git working tree, and can apply
the unified diffs a model proposes back to your files.

Usage:
  forgechat ask "question"       Ask a single question
  forgechat chat                 Interactive chat session
  forgechat apply [patch]        Apply a unified diff to your files
  forgechat commit-msg           Generate a commit message from your diff
  forgechat models               List available models
  forgechat config [show|get|set|path]  Configuration
  forgechat history [list|show|search|delete]  Conversation history
  forgechat prompts              List prompt templates and overrides
  forgechat version              Show version information

Ask Command:
  forgechat ask "question"            Ask and stream the answer
  forgechat ask "review this" --file main.go   Include a file
  echo "text" | forgechat ask "summarize"      Read context from stdin
    -f, --file PATH                 Include a file with the question
    --show-reasoning                Show model reasoning output

  Context mentions expand inline:
    @file:main.go         Include a file
    @file:main.go:10-40   Include a line range
    @staged               Include the staged git diff
    @git                  Include recent commits, status, and changes
    @git:HEAD~5..         Limit the commit range
    @clipboard            Include the system clipboard
    @error                Include the last captured error

Apply Command:
  forgechat apply changes.patch       Apply a patch file
  git diff | forgechat apply          Apply a patch from stdin
    --dry-run                       Report what would change, write nothing
    --fuzz N                        Max context lines ignored per hunk (default 2)
    --offset N                      Max lines searched from declared position (default 200)

History Commands:
  forgechat history list              List saved conversations
    --limit N                       Show at most N conversations (default 20)
  forgechat history show <id>         Print a conversation transcript
  forgechat history search <text>     Search titles and message content
  forgechat history delete <id>       Delete a conversation

Commit Message Command:
  forgechat commit-msg                Generate from staged + unstaged changes
    --staged                        Staged changes only
    --range REV..REV                Describe a commit range instead

Config Commands:
  forgechat config show               Show current configuration
  forgechat config get <key>          Get a value (e.g., general.provider)
  forgechat config set <key> <value>  Set a value and save
  forgechat config path               Print the config file location

Global Flags:
  -q, --quiet        Minimal output
  -v, --verbose      Debug output
  --json             Output in JSON format where supported
  --model NAME       Override the configured model
  --provider NAME    Override the configured provider (openai, ollama)

Examples:
  forgechat ask "What does this error mean?" --file build.log
  forgechat ask "@staged review these changes"
  forgechat chat --model qwen2.5-coder:7b --provider ollama
  forgechat apply --dry-run fix.patch
  forgechat commit-msg --staged
  forgechat history search "race condition"
  forgechat config set general.provider ollama

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("forgechat version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given argument list. Split out from Parse for
// testing.
func ParseArgs(args []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(args)

	// No command defaults to interactive chat
	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "ask":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "apply":
		parseApplyArgs(&parsedArgs, remaining)
		return CmdApply, parsedArgs

	case "commit-msg", "commitmsg", "cm":
		parseCommitMsgArgs(&parsedArgs, remaining)
		return CmdCommitMsg, parsedArgs

	case "models", "model", "m":
		return CmdModels, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "history", "hist", "h":
		parseHistoryArgs(&parsedArgs, remaining)
		return CmdHistory, parsedArgs

	case "prompts", "prompt":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
		}
		return CmdPrompts, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command is treated as a direct question
		parseAskArgs(&parsedArgs, append([]string{cmd}, remaining...))
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--show-reasoning":
			parsedArgs.ShowReasoning = true
		case "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		case "--provider":
			if i+1 < len(args) {
				i++
				parsedArgs.Provider = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--provider="):
				parsedArgs.Provider = strings.TrimPrefix(arg, "--provider=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-f", "--file":
			if i+1 < len(remaining) {
				i++
				args.File = remaining[i]
			}
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--show-reasoning":
			args.ShowReasoning = true
		default:
			switch {
			case strings.HasPrefix(arg, "--file="):
				args.File = strings.TrimPrefix(arg, "--file=")
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			default:
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--resume":
			if i+1 < len(remaining) {
				i++
				args.Options["resume"] = remaining[i]
			}
		case "--show-reasoning":
			args.ShowReasoning = true
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--resume="):
				args.Options["resume"] = strings.TrimPrefix(arg, "--resume=")
			}
		}
	}
}

// parseApplyArgs parses apply command specific arguments.
func parseApplyArgs(args *Args, remaining []string) {
	args.MaxFuzz = -1
	args.MaxOffset = -1

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--dry-run", "-n":
			args.DryRun = true
		case "--fuzz":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n >= 0 {
					args.MaxFuzz = n
				}
			}
		case "--offset":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n >= 0 {
					args.MaxOffset = n
				}
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--fuzz="):
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--fuzz=")); err == nil && n >= 0 {
					args.MaxFuzz = n
				}
			case strings.HasPrefix(arg, "--offset="):
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--offset=")); err == nil && n >= 0 {
					args.MaxOffset = n
				}
			case !strings.HasPrefix(arg, "-") && args.File == "":
				args.File = arg
			}
		}
	}
}

// parseCommitMsgArgs parses commit-msg command specific arguments.
func parseCommitMsgArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--staged":
			args.Options["staged"] = "true"
		case "--range":
			if i+1 < len(remaining) {
				i++
				args.Options["range"] = remaining[i]
			}
		default:
			if strings.HasPrefix(arg, "--range=") {
				args.Options["range"] = strings.TrimPrefix(arg, "--range=")
			}
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = remaining[0]
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}

// parseHistoryArgs parses history command specific arguments.
func parseHistoryArgs(args *Args, remaining []string) {
	var positional []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--limit":
			if i+1 < len(remaining) {
				i++
				args.Options["limit"] = remaining[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--limit="):
				args.Options["limit"] = strings.TrimPrefix(arg, "--limit=")
			case !strings.HasPrefix(arg, "-"):
				positional = append(positional, arg)
			}
		}
	}

	if len(positional) > 0 {
		args.Subcommand = positional[0]
		if len(positional) > 1 {
			args.Query = strings.Join(positional[1:], " ")
		}
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleAsk handles the "ask" command.
// This delegates to the full implementation in ask.go.
func HandleAsk(args Args) {
	if err := HandleAskCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleChat handles the "chat" command.
// This delegates to the full implementation in chat.go.
func HandleChat(args Args) {
	if err := HandleChatCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleApply handles the "apply" command.
func HandleApply(args Args) {
	if err := HandleApplyCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleCommitMsg handles the "commit-msg" command.
func HandleCommitMsg(args Args) {
	if err := HandleCommitMsgCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleModels handles the "models" command.
func HandleModels(args Args) {
	if err := HandleModelsCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) {
	if err := HandleConfigCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleHistory handles the "history" command.
func HandleHistory(args Args) {
	if err := HandleHistoryCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandlePrompts handles the "prompts" command.
func HandlePrompts(args Args) {
	if err := HandlePromptsCommand(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(GetExitCode(err))
	}
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		fmt.Printf("{\"version\":%q,\"git_commit\":%q,\"build_date\":%q,\"go_version\":%q}\n",
			Version, GitCommit, BuildDate, runtime.Version())
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}
