// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// apply.go - Unified diff application command for forgechat.
//
// Reads a patch from a file argument or stdin, normalizes it, and
// applies it to the working tree. Hunks that drift from their declared
// position are relocated within a search window, with whitespace fuzz
// as a fallback. --dry-run reports per-hunk placement without writing.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/jeranaias/forgechat/internal/patch"
	"github.com/jeranaias/forgechat/internal/util"
)

// MaxPatchSize limits patch input read from a file or stdin.
const MaxPatchSize = 10 * 1024 * 1024

// HandleApplyCommand implements the "apply" command.
func HandleApplyCommand(args Args) error {
	text, err := readPatchInput(args)
	if err != nil {
		return err
	}

	p, err := patch.Parse(text)
	if err != nil {
		return &CommandError{Command: "apply", Action: "parse", Reason: "invalid patch", Err: err}
	}

	opts := patch.DefaultOptions()
	if args.MaxFuzz >= 0 {
		opts.MaxFuzz = args.MaxFuzz
	}
	if args.MaxOffset >= 0 {
		opts.MaxOffset = args.MaxOffset
	}

	if !args.Quiet {
		fmt.Println(DimStyle.Render(p.Summary()))
	}

	var failed int
	for _, fp := range p.Files {
		if err := applyFilePatch(fp, opts, args); err != nil {
			var patchErr *PatchError
			if errors.As(err, &patchErr) {
				failed++
				fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Failed]"), err)
				continue
			}
			return err
		}
	}

	if failed > 0 {
		return &CommandError{
			Command: "apply",
			Action:  "write",
			Reason:  fmt.Sprintf("%d of %d files could not be patched", failed, len(p.Files)),
		}
	}
	return nil
}

// applyFilePatch applies one file's hunks and reports the outcome.
func applyFilePatch(fp *patch.FilePatch, opts patch.Options, args Args) error {
	target := fp.TargetPath()
	if target == "" {
		return &CommandError{Command: "apply", Action: "resolve", Reason: "patch has no target path"}
	}
	if filepath.IsAbs(target) || strings.Contains(target, "..") {
		return &CommandError{Command: "apply", Action: "resolve", Reason: "refusing path outside working tree: " + target}
	}

	var content string
	if !fp.IsNew {
		data, err := os.ReadFile(target)
		if err != nil {
			return &NotFoundError{Resource: "file", ID: target}
		}
		content = string(data)
	}

	var result *patch.Result
	var err error
	if args.DryRun {
		result, err = patch.DryRun(content, fp, opts)
	} else {
		result, err = patch.Apply(content, fp, opts)
	}

	reportHunks(target, fp, result, args)

	if err != nil {
		failedCount := 0
		if result != nil {
			for _, h := range result.Hunks {
				if !h.Applied() {
					failedCount++
				}
			}
		}
		return &PatchError{Path: target, Failed: failedCount, Total: len(fp.Hunks)}
	}

	if args.DryRun {
		if IsStdoutTTY() && !args.Quiet {
			previewDiff(fp)
		}
		return nil
	}

	if result.Deleted {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("deleting %s: %w", target, err)
		}
		if !args.Quiet {
			fmt.Printf("%s %s\n", SuccessStyle.Render("[Deleted]"), target)
		}
		return nil
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(target); err == nil {
		perm = info.Mode().Perm()
	} else if fp.IsNew {
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}
	}

	if err := util.AtomicWriteFile(target, []byte(result.NewContent), perm); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if !args.Quiet {
		add, del := fp.Stats()
		fmt.Printf("%s %s (+%d -%d)\n", SuccessStyle.Render("[Applied]"), target, add, del)
	}
	return nil
}

// reportHunks prints the per-hunk placement report.
func reportHunks(target string, fp *patch.FilePatch, result *patch.Result, args Args) {
	if result == nil || args.Quiet {
		return
	}
	for _, h := range result.Hunks {
		if !args.DryRun && !args.Verbose && h.Strategy == patch.StrategyExact {
			continue
		}
		line := fmt.Sprintf("  hunk %d: %s", h.HunkIndex+1, h.Strategy)
		if h.OffsetDelta != 0 {
			line += fmt.Sprintf(" (offset %+d)", h.OffsetDelta)
		}
		if h.Err != nil {
			fmt.Println(ErrorStyle.Render(fmt.Sprintf("  hunk %d: %v", h.HunkIndex+1, h.Err)))
			continue
		}
		fmt.Println(DimStyle.Render(line))
	}
}

// previewDiff prints a syntax-highlighted view of the file patch.
func previewDiff(fp *patch.FilePatch) {
	text := patch.FormatFile(fp)
	if err := quick.Highlight(os.Stdout, text, "diff", "terminal256", "monokai"); err != nil {
		fmt.Print(text)
	}
}

// readPatchInput reads the patch text from the file argument or stdin.
func readPatchInput(args Args) (string, error) {
	if args.File != "" {
		info, err := os.Stat(args.File)
		if err != nil {
			return "", &NotFoundError{Resource: "patch file", ID: args.File}
		}
		if info.Size() > MaxPatchSize {
			return "", fmt.Errorf("patch too large: %d bytes (limit %d)", info.Size(), MaxPatchSize)
		}
		data, err := os.ReadFile(args.File)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", args.File, err)
		}
		return string(data), nil
	}

	if !IsStdinPiped() {
		return "", &UsageError{Message: "no patch given (usage: forgechat apply <file> or pipe a diff)"}
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, MaxPatchSize))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) == 0 {
		return "", &UsageError{Message: "empty patch on stdin"}
	}
	return string(data), nil
}
