// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection and handling for the forgechat CLI.
//
// TTY detection decides whether output gets colors and markdown
// rendering or stays plain for pipes and CI. Respects NO_COLOR
// (https://no-color.org/) and FORCE_COLOR.
package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
// Use this to determine if colored output should be used.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStdinPiped returns true when stdin carries piped or redirected
// data rather than an interactive terminal.
func IsStdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width.
// Returns DefaultTerminalWidth (80) if width cannot be determined.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorsEnabled     bool
	colorsEnabledOnce sync.Once
)

// ColorsEnabled returns true if colored output should be used.
// NO_COLOR disables colors, FORCE_COLOR overrides TTY detection.
func ColorsEnabled() bool {
	colorsEnabledOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			colorsEnabled = false
			return
		}
		if os.Getenv("FORCE_COLOR") != "" {
			colorsEnabled = true
			return
		}
		colorsEnabled = IsStdoutTTY()
	})
	return colorsEnabled
}

// GetColorProfile returns the appropriate termenv color profile.
// Returns Ascii (no colors) for non-TTY or when NO_COLOR is set.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
