// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for all CLI commands in forgechat.
//
// All command output goes through these shared styles. Colors are
// disabled automatically for non-TTY output and when NO_COLOR is set.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES FOR ALL CLI COMMANDS
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(16)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// SuccessStyle is used for success messages and OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle is used for warnings and cautions
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// ReasoningStyle renders model reasoning output, kept visually
	// apart from the answer itself
	ReasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")).
			Italic(true)

	// PromptStyle is the chat input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)
