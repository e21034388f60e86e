// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for forgechat.
//
// Configuration comes from ~/.forgechat/config.toml with built-in
// defaults and environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete forgechat configuration.
type Config struct {
	// General settings
	General GeneralConfig `toml:"general"`

	// OpenAI-compatible provider configuration
	OpenAI OpenAIConfig `toml:"openai"`

	// Ollama configuration
	Ollama OllamaConfig `toml:"ollama"`

	// Chat behavior configuration
	Chat ChatConfig `toml:"chat"`

	// Prompt template configuration
	Prompts PromptsConfig `toml:"prompts"`

	// History persistence configuration
	History HistoryConfig `toml:"history"`
}

// GeneralConfig contains top-level settings.
type GeneralConfig struct {
	// Provider selects the backend: "openai" or "ollama"
	Provider string `toml:"provider"`
	// Model is the default model for the selected provider
	Model string `toml:"model"`
}

// OpenAIConfig contains OpenAI-compatible provider settings.
type OpenAIConfig struct {
	// BaseURL is the API base URL
	BaseURL string `toml:"base_url"`
	// APIKey is the bearer token. Prefer the OPENAI_API_KEY env var.
	APIKey string `toml:"api_key"`
	// Model is the default model
	Model string `toml:"model"`
	// TimeoutSecs is the non-streaming request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs"`
	// MaxRetries is the retry count for transient failures
	MaxRetries int `toml:"max_retries"`
}

// OllamaConfig contains local Ollama settings.
type OllamaConfig struct {
	// BaseURL is the Ollama server URL
	BaseURL string `toml:"base_url"`
	// Model is the default model
	Model string `toml:"model"`
}

// ChatConfig contains chat behavior settings.
type ChatConfig struct {
	// MaxMessages caps the in-memory conversation length
	MaxMessages int `toml:"max_messages"`
	// ShowReasoning displays model reasoning blocks in output
	ShowReasoning bool `toml:"show_reasoning"`
	// SystemPrompt overrides the built-in system prompt when set
	SystemPrompt string `toml:"system_prompt"`
}

// PromptsConfig contains prompt template settings.
type PromptsConfig struct {
	// Dir is the template override directory (empty = ~/.forgechat/prompts)
	Dir string `toml:"dir"`
	// HotReload watches the override directory for changes
	HotReload bool `toml:"hot_reload"`
}

// HistoryConfig contains conversation persistence settings.
type HistoryConfig struct {
	// Enabled persists conversations to the history database
	Enabled bool `toml:"enabled"`
	// DatabasePath overrides the database location
	// (empty = ~/.forgechat/history.db)
	DatabasePath string `toml:"database_path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			Provider: "openai",
			Model:    "",
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			TimeoutSecs: 60,
			MaxRetries:  3,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://127.0.0.1:11434",
			Model:   "qwen2.5-coder:7b",
		},
		Chat: ChatConfig{
			MaxMessages:   1000,
			ShowReasoning: false,
		},
		Prompts: PromptsConfig{
			Dir:       "",
			HotReload: false,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the forgechat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".forgechat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions fixes permissions on the config file. The
// file can hold an API key, so it must be owner-only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", info.Mode().Perm(), err)
		}
	}
	return nil
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load loads configuration from the config file, falling back to
// defaults when no file exists. Environment overrides are applied
// last, then defaults are filled and the result validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path. A
// missing file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to the default TOML file with
// owner-only permissions.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath saves the configuration to a specific path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# forgechat configuration file")
	fmt.Fprintln(file, "# Generated by forgechat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

// SetDefaults fills any missing or zero-value fields with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.General.Provider == "" {
		c.General.Provider = defaults.General.Provider
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaults.OpenAI.BaseURL
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaults.OpenAI.Model
	}
	if c.OpenAI.TimeoutSecs == 0 {
		c.OpenAI.TimeoutSecs = defaults.OpenAI.TimeoutSecs
	}
	if c.OpenAI.MaxRetries == 0 {
		c.OpenAI.MaxRetries = defaults.OpenAI.MaxRetries
	}
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaults.Ollama.BaseURL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaults.Ollama.Model
	}
	if c.Chat.MaxMessages == 0 {
		c.Chat.MaxMessages = defaults.Chat.MaxMessages
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	validProviders := map[string]bool{"openai": true, "ollama": true}
	if !validProviders[strings.ToLower(c.General.Provider)] {
		errs = append(errs, ValidationError{
			Field:   "general.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, ollama", c.General.Provider),
		})
	}

	for _, u := range []struct{ field, value string }{
		{"openai.base_url", c.OpenAI.BaseURL},
		{"ollama.base_url", c.Ollama.BaseURL},
	} {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, ValidationError{
				Field:   u.field,
				Message: fmt.Sprintf("invalid URL '%s'", u.value),
			})
		}
	}

	if c.OpenAI.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "openai.timeout_secs",
			Message: "must be non-negative",
		})
	}
	if c.OpenAI.MaxRetries < 0 || c.OpenAI.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "openai.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.OpenAI.MaxRetries),
		})
	}
	if c.Chat.MaxMessages < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_messages",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - FORGECHAT_PROVIDER: overrides general.provider
//   - FORGECHAT_MODEL: overrides general.model
//   - FORGECHAT_BASE_URL: overrides openai.base_url
//   - FORGECHAT_API_KEY: overrides openai.api_key
//   - OPENAI_API_KEY: overrides openai.api_key (lower precedence)
//   - FORGECHAT_OLLAMA_URL: overrides ollama.base_url
//   - FORGECHAT_SHOW_REASONING: "1" or "true" shows reasoning blocks
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if key := os.Getenv("FORGECHAT_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if provider := os.Getenv("FORGECHAT_PROVIDER"); provider != "" {
		c.General.Provider = provider
	}
	if model := os.Getenv("FORGECHAT_MODEL"); model != "" {
		c.General.Model = model
	}
	if base := os.Getenv("FORGECHAT_BASE_URL"); base != "" {
		c.OpenAI.BaseURL = base
	}
	if base := os.Getenv("FORGECHAT_OLLAMA_URL"); base != "" {
		c.Ollama.BaseURL = base
	}
	if v := os.Getenv("FORGECHAT_SHOW_REASONING"); v != "" {
		c.Chat.ShowReasoning = v == "1" || strings.ToLower(v) == "true"
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g. "openai.model").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to the Go field
// equivalent. "base_url" becomes "Baseurl", matched case-insensitively.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value with type conversion for string
// inputs.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"general.provider",
		"general.model",
		"openai.base_url",
		"openai.api_key",
		"openai.model",
		"openai.timeout_secs",
		"openai.max_retries",
		"ollama.base_url",
		"ollama.model",
		"chat.max_messages",
		"chat.show_reasoning",
		"chat.system_prompt",
		"prompts.dir",
		"prompts.hot_reload",
		"history.enabled",
		"history.database_path",
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON representation for debugging with the API key
// redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.OpenAI.APIKey != "" {
		safe.OpenAI.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// Global returns the global configuration instance, loading it on
// first access. Thread-safe.
func Global() *Config {
	globalConfigMu.RLock()
	cfg := globalConfig
	globalConfigMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	if globalConfig == nil {
		loaded, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			loaded = Default()
			loaded.ApplyEnvOverrides()
		}
		globalConfig = loaded
	}
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
}
