// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt provides named prompt templates with variable
// substitution and user overrides.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// PROMPT KINDS
// =============================================================================

// Kind names a built-in prompt template.
type Kind string

const (
	// KindSystem is the assistant's system prompt.
	KindSystem Kind = "system"
	// KindDocument asks for doc comments for the given code.
	KindDocument Kind = "document"
	// KindRefactor asks for a refactoring of the given code.
	KindRefactor Kind = "refactor"
	// KindFixErrors asks for fixes for the given compiler errors.
	KindFixErrors Kind = "fix-errors"
	// KindTestCase asks for unit tests for the given code.
	KindTestCase Kind = "test-case"
	// KindGitComment asks for a commit message for the given diff.
	KindGitComment Kind = "git-comment"
	// KindDiscuss wraps a free-form question about the given code.
	KindDiscuss Kind = "discuss"
)

// Kinds returns all built-in prompt kinds in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindSystem,
		KindDocument,
		KindRefactor,
		KindFixErrors,
		KindTestCase,
		KindGitComment,
		KindDiscuss,
	}
}

// Valid reports whether k names a built-in template.
func (k Kind) Valid() bool {
	_, ok := builtins[k]
	return ok
}

// ErrUnknownKind is returned when a template name is not recognized.
var ErrUnknownKind = errors.New("unknown prompt kind")

// =============================================================================
// BUILT-IN TEMPLATES
// =============================================================================

const systemTemplate = `You are an expert software development assistant embedded in a developer's terminal. You answer precisely and concisely.

When you propose code changes, output them as a unified diff in a fenced code block so they can be applied directly. Keep hunk context accurate. When asked a question that needs no code change, answer in plain Markdown.
`

const documentTemplate = `Write documentation comments for the following ${lang} code. Use the documentation style conventional for ${lang}. Document every public declaration: purpose, parameters, return values, and errors where applicable. Reply with a unified diff that adds the comments.

File: ${filename}

` + "```${lang}\n${selection}\n```" + `
`

const refactorTemplate = `Refactor the following ${lang} code. Improve naming, remove duplication, and simplify control flow without changing behavior. Explain the key changes briefly, then reply with a unified diff.

File: ${filename}

` + "```${lang}\n${selection}\n```" + `
`

const fixErrorsTemplate = `The following ${lang} code fails to compile. Fix the errors and reply with a unified diff.

File: ${filename}

` + "```${lang}\n${selection}\n```" + `

Compiler errors:

` + "```\n${errors}\n```" + `
`

const testCaseTemplate = `Write unit tests for the following ${lang} code. Cover the main paths and the edge cases a careful reviewer would ask about. Use the testing tools conventional for ${lang}.

File: ${filename}

` + "```${lang}\n${selection}\n```" + `
`

const gitCommentTemplate = `Write a commit message for the following changes. First line: imperative summary under 72 characters. Then a blank line and a short body explaining what changed and why, wrapped at 72 characters. Reply with the commit message only, no fences.

` + "```diff\n${diff}\n```" + `
`

const discussTemplate = `${question}

Relevant code from ${filename}:

` + "```${lang}\n${selection}\n```" + `
`

var builtins = map[Kind]string{
	KindSystem:     systemTemplate,
	KindDocument:   documentTemplate,
	KindRefactor:   refactorTemplate,
	KindFixErrors:  fixErrorsTemplate,
	KindTestCase:   testCaseTemplate,
	KindGitComment: gitCommentTemplate,
	KindDiscuss:    discussTemplate,
}

// Builtin returns the built-in template text for a kind.
func Builtin(k Kind) (string, error) {
	t, ok := builtins[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return t, nil
}

// =============================================================================
// SUBSTITUTION
// =============================================================================

// Substitute replaces ${name} references in template with values from
// vars. Unknown references are left intact so the model sees what was
// meant. Substituted values are never re-expanded, a value containing
// "${" passes through literally.
func Substitute(template string, vars map[string]string) string {
	var sb strings.Builder
	sb.Grow(len(template))

	for i := 0; i < len(template); {
		j := strings.Index(template[i:], "${")
		if j < 0 {
			sb.WriteString(template[i:])
			break
		}
		j += i
		sb.WriteString(template[i:j])

		end := strings.IndexByte(template[j+2:], '}')
		if end < 0 {
			// Unterminated reference, keep the rest as-is.
			sb.WriteString(template[j:])
			break
		}
		name := template[j+2 : j+2+end]

		if val, ok := vars[name]; ok {
			sb.WriteString(val)
		} else {
			sb.WriteString(template[j : j+2+end+1])
		}
		i = j + 2 + end + 1
	}

	return sb.String()
}
