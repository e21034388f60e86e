// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the forgechat command line interface: argument
// parsing, command dispatch, and the handlers for ask, chat, apply,
// commit-msg, models, config, history, and prompts.
//
// Handlers return errors rather than exiting; the Handle* wrappers in
// cli.go map those errors to exit codes for main.
package cli
