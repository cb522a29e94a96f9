// Package provider defines the unified interface and shared types for the
// LLM backends that generate companion replies. Each adapter (anthropic.go,
// openai.go) normalizes its vendor's streaming response into a unified Event
// sequence consumed by the turn pipeline.
package provider

import (
	"context"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in the conversation history.
type Message struct {
	Role Role
	Text string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
// The turn pipeline sends the fully assembled prompt as the final user
// message; SystemPrompt stays empty because system instructions travel
// inside the assembled prompt.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM, rendered in real time.
	EventTextDelta EventType = iota

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM backends.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the vendor's API request format
// 2. Converting the vendor's streaming response into a unified Event sequence
// 3. Surfacing vendor-specific failures as a single EventError
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// Models returns the list of supported models.
	Models() []string

	// DefaultModel returns the default model.
	DefaultModel() string

	// ContextWindow returns the default context window size for the current model.
	ContextWindow() int
}
