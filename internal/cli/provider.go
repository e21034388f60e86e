// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// provider.go - Provider-neutral streaming for the ask and chat commands.
//
// Both providers are driven through the same callback shape: content
// tokens and reasoning tokens land in the conversation's in-flight
// assistant message, and the caller gets live token callbacks for
// display.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/ollama"
	"github.com/jeranaias/forgechat/internal/openai"
	"github.com/jeranaias/forgechat/internal/prompt"
)

// ProviderOpenAI and ProviderOllama are the recognized provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// resolveProvider picks the provider, CLI override first.
func resolveProvider(cfg *config.Config, override string) string {
	if override != "" {
		return override
	}
	return cfg.General.Provider
}

// resolveModel picks the model for a provider, CLI override first,
// then the general model, then the provider default.
func resolveModel(cfg *config.Config, provider, override string) string {
	if override != "" {
		return override
	}
	if cfg.General.Model != "" {
		return cfg.General.Model
	}
	switch provider {
	case ProviderOllama:
		return cfg.Ollama.Model
	default:
		return cfg.OpenAI.Model
	}
}

// newOpenAIClient builds an OpenAI client from config.
func newOpenAIClient(cfg *config.Config, model string) *openai.Client {
	client := openai.NewClient(cfg.OpenAI.APIKey).
		WithBaseURL(cfg.OpenAI.BaseURL).
		WithTimeout(time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second).
		WithMaxRetries(cfg.OpenAI.MaxRetries)
	if model != "" {
		client.SetModel(model)
	}
	return client
}

// newOllamaClient builds an Ollama client from config.
func newOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.BaseURL,
		DefaultModel: cfg.Ollama.Model,
	})
}

// tokenSink receives live tokens during streaming. Either callback
// may be nil.
type tokenSink struct {
	OnContent   func(token string)
	OnReasoning func(token string)
}

// streamReply sends the conversation to the selected provider and
// streams the assistant reply into conv. A new assistant message is
// appended, filled token by token, and finalized with timing stats.
// On error the partial message is finalized without stats so the
// caller can keep it or undo the whole exchange.
func streamReply(ctx context.Context, cfg *config.Config, provider, model string, conv *chat.Conversation, sink tokenSink) (*chat.Statistics, error) {
	if provider != ProviderOllama && provider != ProviderOpenAI {
		return nil, &UsageError{Message: fmt.Sprintf("unknown provider %q (expected openai or ollama)", provider)}
	}

	conv.AddAssistantMessage()
	stats := chat.NewStatistics()

	var err error
	if provider == ProviderOllama {
		err = streamOllama(ctx, cfg, model, conv, sink, stats)
	} else {
		err = streamOpenAI(ctx, cfg, model, conv, sink, stats)
	}
	if err != nil {
		// Close out the streaming message. Undo refuses to remove an
		// exchange whose last message is still mid-stream.
		conv.FinalizeLast(nil)
		return nil, err
	}

	msg := conv.GetLastAssistantMessage()
	tokens := 0
	if stats.CompletionTokens > 0 {
		tokens = stats.CompletionTokens
	} else if msg != nil {
		tokens = msg.EstimateTokens()
	}
	stats.Finalize(tokens)
	conv.FinalizeLast(stats)
	return stats, nil
}

func streamOpenAI(ctx context.Context, cfg *config.Config, model string, conv *chat.Conversation, sink tokenSink, stats *chat.Statistics) error {
	client := newOpenAIClient(cfg, model)
	if !client.IsConfigured() {
		return &CommandError{
			Command: "chat",
			Action:  "stream",
			Reason:  "no API key configured (set OPENAI_API_KEY or run: forgechat config set openai.api_key <key>)",
		}
	}

	messages := conv.ToWireMessages()
	return client.ChatStreamWithRetry(ctx, messages, func(chunk openai.StreamChunk) {
		if reasoning := chunk.GetReasoning(); reasoning != "" {
			stats.RecordFirstToken()
			conv.AppendReasoningToLast(reasoning)
			if sink.OnReasoning != nil {
				sink.OnReasoning(reasoning)
			}
		}
		if content := chunk.GetContent(); content != "" {
			stats.RecordFirstToken()
			conv.AppendToLast(content)
			if sink.OnContent != nil {
				sink.OnContent(content)
			}
		}
		if chunk.Usage != nil {
			stats.PromptTokens = chunk.Usage.PromptTokens
			stats.CompletionTokens = chunk.Usage.CompletionTokens
		}
	})
}

func streamOllama(ctx context.Context, cfg *config.Config, model string, conv *chat.Conversation, sink tokenSink, stats *chat.Statistics) error {
	client := newOllamaClient(cfg)

	if err := client.CheckRunning(ctx); err != nil {
		return err
	}

	messages := conv.ToOllamaMessages()
	return client.ChatStream(ctx, model, messages, func(chunk ollama.StreamChunk) {
		if chunk.Thinking != "" {
			stats.RecordFirstToken()
			conv.AppendReasoningToLast(chunk.Thinking)
			if sink.OnReasoning != nil {
				sink.OnReasoning(chunk.Thinking)
			}
		}
		if chunk.Content != "" {
			stats.RecordFirstToken()
			conv.AppendToLast(chunk.Content)
			if sink.OnContent != nil {
				sink.OnContent(chunk.Content)
			}
		}
		if chunk.Done {
			stats.PromptTokens = chunk.PromptTokens
			stats.CompletionTokens = chunk.CompletionTokens
		}
	})
}

// systemPromptFor returns the system prompt for a new conversation.
// An explicit config value wins over the template.
func systemPromptFor(cfg *config.Config) string {
	if cfg.Chat.SystemPrompt != "" {
		return cfg.Chat.SystemPrompt
	}
	loader := newPromptLoader(cfg)
	text, err := loader.Load(prompt.KindSystem)
	if err != nil {
		return ""
	}
	return text
}
