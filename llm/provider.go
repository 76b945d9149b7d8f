// Package llm defines the uniform invocation contract for text-generation
// backends and the classified error taxonomy shared by every pipeline stage.
package llm

import (
	"context"
	"time"
)

// ErrorCode classifies a backend failure so callers can pick a policy
// (retry, fallback backend, default value) instead of guessing from text.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // malformed payload, rejected extras
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // missing or revoked credentials
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // upstream throttling
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // request deadline exceeded
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 5xx or network failure
	ErrEmptyContent    ErrorCode = "LLM_EMPTY_CONTENT"    // well-formed response with no text
)

// Error is a structured backend error with a status classification.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Model      string    `json:"model,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Role tags a message with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a request's ordered message list.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Annotation is a provider-native side-channel record attached to a
// response, e.g. a web-search citation.
type Annotation struct {
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// ChatRequest is the provider-agnostic call contract. Extras carries
// provider-specific directives (reasoning config, web search options)
// as an opaque key-value map so the boundary stays generic.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	Timeout     time.Duration  `json:"timeout,omitempty"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// ChatResponse is a successful completion: the generated text plus any
// side-channel annotations the provider attached.
type ChatResponse struct {
	Model       string       `json:"model"`
	Content     string       `json:"content"`
	Reasoning   string       `json:"reasoning,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// Provider adapts one upstream API to the uniform contract. A single
// provider may serve many backend identifiers (ChatRequest.Model).
type Provider interface {
	// Completion issues one synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider's unique identifier.
	Name() string
}

// AsError unwraps a classified *Error from err, or wraps err in a
// generic retryable upstream error so callers always see a code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if le, ok := err.(*Error); ok {
		return le
	}
	return &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true}
}
