// Package api defines the HTTP request and response types.
package api

import (
	"github.com/BaSui01/council/intent"
)

// SendMessageRequest starts one deliberation run.
type SendMessageRequest struct {
	Content           string `json:"content"`
	SkipClarification bool   `json:"skip_clarification,omitempty"`
}

// ClarificationRequest resumes a run paused at the clarification gate.
type ClarificationRequest struct {
	Answers []intent.Answer `json:"answers,omitempty"`
	Skip    bool            `json:"skip,omitempty"`
}

// StatusResponse is the minimal acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}
