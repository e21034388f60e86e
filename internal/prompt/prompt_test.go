// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// SUBSTITUTION TESTS
// =============================================================================

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "basic",
			template: "fix ${file} please",
			vars:     map[string]string{"file": "main.go"},
			want:     "fix main.go please",
		},
		{
			name:     "multiple",
			template: "${a}${b}${a}",
			vars:     map[string]string{"a": "x", "b": "y"},
			want:     "xyx",
		},
		{
			name:     "unknown left intact",
			template: "keep ${unknown} here",
			vars:     map[string]string{"file": "main.go"},
			want:     "keep ${unknown} here",
		},
		{
			name:     "value not re-expanded",
			template: "code: ${selection}",
			vars:     map[string]string{"selection": "price := \"${amount}\"", "amount": "BAD"},
			want:     "code: price := \"${amount}\"",
		},
		{
			name:     "unterminated reference",
			template: "broken ${file",
			vars:     map[string]string{"file": "main.go"},
			want:     "broken ${file",
		},
		{
			name:     "empty value",
			template: "a${x}b",
			vars:     map[string]string{"x": ""},
			want:     "ab",
		},
		{
			name:     "no references",
			template: "plain text",
			vars:     map[string]string{"x": "y"},
			want:     "plain text",
		},
		{
			name:     "dollar without brace",
			template: "cost is $5",
			vars:     nil,
			want:     "cost is $5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.template, tt.vars); got != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// BUILT-IN TESTS
// =============================================================================

func TestBuiltins(t *testing.T) {
	for _, k := range Kinds() {
		text, err := Builtin(k)
		if err != nil {
			t.Errorf("Builtin(%q) error = %v", k, err)
		}
		if strings.TrimSpace(text) == "" {
			t.Errorf("Builtin(%q) is empty", k)
		}
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false", k)
		}
	}
}

func TestBuiltinUnknown(t *testing.T) {
	if _, err := Builtin(Kind("nope")); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Builtin(nope) error = %v, want ErrUnknownKind", err)
	}
}

func TestBuiltinVariables(t *testing.T) {
	// The code-oriented templates must reference the selection.
	for _, k := range []Kind{KindDocument, KindRefactor, KindFixErrors, KindTestCase} {
		text, _ := Builtin(k)
		if !strings.Contains(text, "${selection}") {
			t.Errorf("Builtin(%q) does not reference ${selection}", k)
		}
	}
	text, _ := Builtin(KindGitComment)
	if !strings.Contains(text, "${diff}") {
		t.Error("git-comment template does not reference ${diff}")
	}
}

// =============================================================================
// LOADER TESTS
// =============================================================================

func TestLoaderBuiltinFallback(t *testing.T) {
	l := NewLoader(t.TempDir())
	text, err := l.Load(KindRefactor)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	builtin, _ := Builtin(KindRefactor)
	if text != builtin {
		t.Error("Load() should fall back to the built-in")
	}
	if l.IsOverridden(KindRefactor) {
		t.Error("IsOverridden() = true, want false")
	}
}

func TestLoaderOverride(t *testing.T) {
	dir := t.TempDir()
	custom := "my refactor prompt: ${selection}\n"
	if err := os.WriteFile(filepath.Join(dir, "refactor.md"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	// Files that name no known kind are ignored.
	os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "refactor.txt"), []byte("x"), 0o644)

	l := NewLoader(dir)
	text, err := l.Load(KindRefactor)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != custom {
		t.Errorf("Load() = %q, want override", text)
	}
	if !l.IsOverridden(KindRefactor) {
		t.Error("IsOverridden() = false, want true")
	}
	if l.IsOverridden(KindSystem) {
		t.Error("system prompt should not be overridden")
	}
}

func TestLoaderMissingDir(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := l.Load(KindSystem); err != nil {
		t.Errorf("Load() with missing dir error = %v", err)
	}
}

func TestLoaderRender(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "discuss.md"), []byte("Q: ${question}"), 0o644)

	l := NewLoader(dir)
	got, err := l.Render(KindDiscuss, map[string]string{"question": "why?"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Q: why?" {
		t.Errorf("Render() = %q", got)
	}
}

func TestLoaderRenderUnknownKind(t *testing.T) {
	l := NewLoader(t.TempDir())
	if _, err := l.Render(Kind("bogus"), nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Render() error = %v, want ErrUnknownKind", err)
	}
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)
	l.debounce = 20 * time.Millisecond

	reloaded := make(chan Kind, 1)
	l.OnReload = func(k Kind) {
		select {
		case reloaded <- k:
		default:
		}
	}

	if err := l.Watch(); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer l.Close()

	if err := os.WriteFile(filepath.Join(dir, "system.md"), []byte("custom system"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case k := <-reloaded:
		if k != KindSystem {
			t.Errorf("reloaded kind = %q, want system", k)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	text, err := l.Load(KindSystem)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "custom system" {
		t.Errorf("Load() after reload = %q", text)
	}
}

func TestLoaderReloadRemovedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.md")
	os.WriteFile(path, []byte("custom"), 0o644)

	l := NewLoader(dir)
	if !l.IsOverridden(KindSystem) {
		t.Fatal("override not loaded")
	}

	os.Remove(path)
	l.reloadFile(path)

	if l.IsOverridden(KindSystem) {
		t.Error("override should be dropped when the file is removed")
	}
	text, _ := l.Load(KindSystem)
	builtin, _ := Builtin(KindSystem)
	if text != builtin {
		t.Error("Load() should fall back to the built-in after removal")
	}
}
