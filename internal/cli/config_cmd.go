// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration command handlers for forgechat.
//
// Subcommands: show, get, set, path. Keys use dotted section.field
// notation matching the TOML layout, e.g. general.provider.
package cli

import (
	"fmt"

	"github.com/jeranaias/forgechat/internal/config"
)

// HandleConfigCommand implements the "config" command.
func HandleConfigCommand(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	case "path":
		return configPath()
	default:
		return &UsageError{Message: fmt.Sprintf("unknown config subcommand %q (expected show, get, set, or path)", args.Subcommand)}
	}
}

func configShow(args Args) error {
	cfg := config.Global()

	if args.JSON {
		fmt.Println(cfg.String())
		return nil
	}

	fmt.Println(TitleStyle.Render("Configuration"))
	for _, key := range config.GetAllKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		display := fmt.Sprintf("%v", value)
		if key == "openai.api_key" && display != "" {
			display = "[set]"
		}
		if display == "" {
			display = DimStyle.Render("(unset)")
		}
		fmt.Printf("  %s %s\n", LabelStyle.Render(key), ValueStyle.Render(display))
	}
	return nil
}

func configGet(args Args) error {
	if args.ConfigKey == "" {
		return &UsageError{Message: "usage: forgechat config get <key>"}
	}
	value, err := config.Global().Get(args.ConfigKey)
	if err != nil {
		return &NotFoundError{Resource: "config key", ID: args.ConfigKey}
	}
	fmt.Printf("%v\n", value)
	return nil
}

func configSet(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return &UsageError{Message: "usage: forgechat config set <key> <value>"}
	}

	cfg := config.Global()
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("%s %s = %s\n", SuccessStyle.Render("Set"), args.ConfigKey, args.ConfigVal)
	return nil
}

func configPath() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
