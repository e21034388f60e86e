// forgechat - AI chat assistant for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"github.com/jeranaias/forgechat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdApply:
		cli.HandleApply(args)
	case cli.CmdCommitMsg:
		cli.HandleCommitMsg(args)
	case cli.CmdModels:
		cli.HandleModels(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdHistory:
		cli.HandleHistory(args)
	case cli.CmdPrompts:
		cli.HandlePrompts(args)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	}
}
