// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompts.go - Prompt template command for forgechat.
//
// Lists the built-in templates and whether a user override is active
// for each. "prompts show <kind>" prints the effective template text.
package cli

import (
	"fmt"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/prompt"
)

// newPromptLoader builds the template loader from config.
func newPromptLoader(cfg *config.Config) *prompt.Loader {
	return prompt.NewLoader(cfg.Prompts.Dir)
}

// HandlePromptsCommand implements the "prompts" command.
func HandlePromptsCommand(args Args) error {
	cfg := config.Global()
	loader := newPromptLoader(cfg)

	switch args.Subcommand {
	case "", "list":
		return promptsList(loader)
	case "show":
		return promptsShow(loader, args)
	case "dir", "path":
		fmt.Println(loader.Dir())
		return nil
	default:
		// "prompts show" takes the kind as the next raw arg; anything
		// else here is a kind name for show as a shorthand
		if prompt.Kind(args.Subcommand).Valid() {
			return printTemplate(loader, prompt.Kind(args.Subcommand))
		}
		return &UsageError{Message: fmt.Sprintf("unknown prompts subcommand %q (expected list, show, or dir)", args.Subcommand)}
	}
}

func promptsList(loader *prompt.Loader) error {
	fmt.Println(TitleStyle.Render("Prompt templates"))
	fmt.Println(DimStyle.Render("Override directory: " + loader.Dir()))
	fmt.Println()
	for _, k := range prompt.Kinds() {
		marker := DimStyle.Render("builtin")
		if loader.IsOverridden(k) {
			marker = SuccessStyle.Render("override")
		}
		fmt.Printf("  %s %s\n", LabelStyle.Render(string(k)), marker)
	}
	return nil
}

func promptsShow(loader *prompt.Loader, args Args) error {
	if len(args.Raw) < 2 {
		return &UsageError{Message: "usage: forgechat prompts show <kind>"}
	}
	k := prompt.Kind(args.Raw[1])
	if !k.Valid() {
		return &NotFoundError{Resource: "prompt kind", ID: string(k)}
	}
	return printTemplate(loader, k)
}

func printTemplate(loader *prompt.Loader, k prompt.Kind) error {
	text, err := loader.Load(k)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
