package provider

import (
	"context"
	"fmt"
)

// Known provider ids. Each maps to exactly one adapter and one credential.
const (
	OpenAI = "openai"
	Claude = "claude"
)

type Request struct {
	Prompt   string
	TaskType string
	// Metadata carried through for tracing/audit
	CallerID  string
	RequestID string
}

type Response struct {
	ID           string
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Provider     string
	LatencyMs    int64
}

type Provider interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// maxUpstreamMessage bounds how much of an upstream error body is kept.
const maxUpstreamMessage = 512

// Error is the normalized failure every adapter returns for an upstream
// problem. Message is already truncated and must never contain credentials.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s failed: %s", e.Provider, e.Message)
}

// NewError builds an Error, truncating the upstream message.
func NewError(providerID string, statusCode int, message string) *Error {
	if len(message) > maxUpstreamMessage {
		message = message[:maxUpstreamMessage]
	}
	return &Error{
		Provider:   providerID,
		StatusCode: statusCode,
		Message:    message,
	}
}

// FramePrompt prepends a "Task Type:" line so every provider receives the
// same task context regardless of its wire format. The generic task type
// adds nothing and is skipped.
func FramePrompt(prompt, taskType string) string {
	if taskType == "" || taskType == "general" {
		return prompt
	}
	return fmt.Sprintf("Task Type: %s\n\n%s", taskType, prompt)
}
