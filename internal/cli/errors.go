// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all CLI commands in forgechat.
//
// Command handlers ALWAYS return errors and let the caller decide how
// to display them. Exit codes are derived from the error type so shell
// scripts can distinguish failure categories.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/forgechat/internal/ollama"
	"github.com/jeranaias/forgechat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitPatchError indicates a patch failed to apply cleanly
	ExitPatchError = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "apply", "history")
	Action  string // Action being performed (e.g., "show", "delete")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError represents invalid command usage. The message should tell
// the user what to type instead.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "conversation", "model")
	ID       string // Identifier that was not found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// PatchError indicates one or more hunks failed to apply.
type PatchError struct {
	Path   string
	Failed int
	Total  int
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch failed: %s: %d of %d hunks could not be placed", e.Path, e.Failed, e.Total)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return ExitNotFoundError
	}

	var patchErr *PatchError
	if errors.As(err, &patchErr) {
		return ExitPatchError
	}

	if errors.Is(err, storage.ErrNotFound) {
		return ExitNotFoundError
	}

	if errors.Is(err, context.DeadlineExceeded) || ollama.IsTimeout(err) {
		return ExitTimeoutError
	}

	if ollama.IsNotRunning(err) {
		return ExitNetworkError
	}

	// Fall back to message content for errors without a typed cause
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "config") || strings.Contains(errMsg, "configuration") {
		return ExitConfigError
	}

	if strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dial") ||
		strings.Contains(errMsg, "unreachable") {
		return ExitNetworkError
	}

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "timed out") {
		return ExitTimeoutError
	}

	if strings.Contains(errMsg, "not found") {
		return ExitNotFoundError
	}

	return ExitGeneralError
}
