// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model listing command for forgechat.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/forgechat/internal/config"
)

// HandleModelsCommand implements the "models" command.
func HandleModelsCommand(args Args) error {
	cfg := config.Global()
	provider := resolveProvider(cfg, args.Provider)
	active := resolveModel(cfg, provider, args.Model)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch provider {
	case ProviderOllama:
		return listOllamaModels(ctx, cfg, active, args)
	case ProviderOpenAI:
		return listOpenAIModels(ctx, cfg, active, args)
	default:
		return &UsageError{Message: fmt.Sprintf("unknown provider %q (expected openai or ollama)", provider)}
	}
}

func listOpenAIModels(ctx context.Context, cfg *config.Config, active string, args Args) error {
	client := newOpenAIClient(cfg, "")
	if !client.IsConfigured() {
		return &CommandError{Command: "models", Action: "list", Reason: "no API key configured"}
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(models)
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("Models (%s)", ProviderOpenAI)))
	for _, m := range models {
		marker := "  "
		if m.ID == active {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Printf("%s%s %s\n", marker, ValueStyle.Render(m.ID), DimStyle.Render(m.OwnedBy))
	}
	return nil
}

func listOllamaModels(ctx context.Context, cfg *config.Config, active string, args Args) error {
	client := newOllamaClient(cfg)
	if err := client.CheckRunning(ctx); err != nil {
		return err
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(models)
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("Models (%s)", ProviderOllama)))
	for _, m := range models {
		marker := "  "
		if m.Name == active {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Printf("%s%s %s\n", marker, ValueStyle.Render(m.Name), DimStyle.Render(m.FormatSize()))
	}
	return nil
}
