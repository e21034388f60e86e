// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
// Ollama streams newline-delimited JSON objects, one per chunk.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations.
	accumulator strings.Builder
	thinking    strings.Builder
	tokenCount  int
	model       string
	startTime   time.Time
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader:    bufio.NewReader(r),
		startTime: time.Now(),
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readChunk()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			if chunk != nil {
				callback(*chunk)
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readChunk reads and parses a single NDJSON line from the stream.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Try to process the last line even on EOF
		if len(line) == 0 {
			return nil, err
		}
	}

	// Skip empty lines
	if len(line) == 0 {
		return nil, nil
	}

	var response ChatResponse
	if err := json.Unmarshal(line, &response); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if response.Model != "" {
		s.model = response.Model
	}

	content := response.Message.Content
	if content != "" {
		s.accumulator.WriteString(content)
		s.tokenCount++
	}
	if response.Message.Thinking != "" {
		s.thinking.WriteString(response.Message.Thinking)
	}

	chunk := &StreamChunk{
		Content:    content,
		Thinking:   response.Message.Thinking,
		Done:       response.Done,
		Model:      s.model,
		DoneReason: response.DoneReason,
	}

	// On completion, extract statistics
	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.LoadDuration = time.Duration(response.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(response.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
	}

	return chunk, nil
}

// GetAccumulated returns all accumulated answer content.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// GetThinking returns all accumulated thinking output.
func (s *StreamReader) GetThinking() string {
	return s.thinking.String()
}

// GetTokenCount returns the number of content chunks received.
func (s *StreamReader) GetTokenCount() int {
	return s.tokenCount
}

// GetModel returns the model name from the stream.
func (s *StreamReader) GetModel() string {
	return s.model
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds statistics collected during streaming.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// Durations from the final chunk
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	// Token counts
	PromptTokens     int
	CompletionTokens int

	// Computed
	TTFT            time.Duration // Time to first token
	TokensPerSecond float64
}

// NewStreamStats creates a new StreamStats with start time set.
func NewStreamStats() *StreamStats {
	return &StreamStats{
		StartTime: time.Now(),
	}
}

// RecordFirstToken marks the time of first token arrival.
func (s *StreamStats) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes final statistics from the last chunk.
func (s *StreamStats) Finalize(chunk StreamChunk) {
	s.EndTime = time.Now()
	s.TotalDuration = chunk.TotalDuration
	s.LoadDuration = chunk.LoadDuration
	s.PromptEvalDuration = chunk.PromptEvalDuration
	s.EvalDuration = chunk.EvalDuration
	s.PromptTokens = chunk.PromptTokens
	s.CompletionTokens = chunk.CompletionTokens

	if s.EvalDuration > 0 {
		s.TokensPerSecond = float64(s.CompletionTokens) / s.EvalDuration.Seconds()
	}
}

// Format returns a one-line summary suitable for status display.
func (s *StreamStats) Format() string {
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		formatStatsDuration(s.TotalDuration),
		s.CompletionTokens,
		s.TokensPerSecond,
		s.TTFT.Milliseconds())
}

func formatStatsDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects streaming chunks and builds statistics.
// Thinking output is accumulated separately and never mixed into the
// answer content.
type StreamAccumulator struct {
	content  strings.Builder
	thinking strings.Builder
	Stats    *StreamStats
	Done     bool
	Error    error
}

// NewStreamAccumulator creates a new accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{
		Stats: NewStreamStats(),
	}
}

// Add processes a new chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.Error = chunk.Error
		a.Done = true
		return
	}

	if chunk.Content != "" && a.content.Len() == 0 {
		a.Stats.RecordFirstToken()
	}

	a.content.WriteString(chunk.Content)
	a.thinking.WriteString(chunk.Thinking)

	if chunk.Done {
		a.Done = true
		a.Stats.Finalize(chunk)
	}
}

// GetContent returns the accumulated answer content.
func (a *StreamAccumulator) GetContent() string {
	return a.content.String()
}

// GetThinking returns the accumulated thinking output.
func (a *StreamAccumulator) GetThinking() string {
	return a.thinking.String()
}

// IsDone returns whether streaming is complete.
func (a *StreamAccumulator) IsDone() bool {
	return a.Done
}

// GetError returns any error that occurred.
func (a *StreamAccumulator) GetError() error {
	return a.Error
}

// GetStats returns the collected statistics.
func (a *StreamAccumulator) GetStats() *StreamStats {
	return a.Stats
}
