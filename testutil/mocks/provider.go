// Package mocks provides test doubles for the upstream model gateway.
//
// MockProvider supports fixed responses, per-model responses, scripted
// sequences, and error injection.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/council/llm"
)

// MockProvider implements llm.Provider for tests.
type MockProvider struct {
	mu sync.Mutex

	response   string
	reasoning  string
	perModel   map[string]string
	script     []ScriptStep
	scriptPos  int
	err        error
	perCallErr map[int]error

	delay          time.Duration
	failAfter      int
	callCount      int
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []ProviderCall
}

// ScriptStep is one scripted call outcome, consumed in order.
type ScriptStep struct {
	Content string
	Err     error
}

// ProviderCall records one invocation.
type ProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// NewMockProvider creates a provider that returns "mock response" for
// every call until configured otherwise.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:   "mock response",
		perModel:   map[string]string{},
		perCallErr: map[int]error{},
	}
}

// WithResponse sets the fixed response content.
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithReasoning sets the reasoning field returned with every response.
func (m *MockProvider) WithReasoning(reasoning string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasoning = reasoning
	return m
}

// WithModelResponse sets a response for one specific model, taking
// precedence over the fixed response.
func (m *MockProvider) WithModelResponse(model, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perModel[model] = response
	return m
}

// WithScript sets an ordered sequence of outcomes. Once exhausted, the
// provider falls back to the fixed response.
func (m *MockProvider) WithScript(steps ...ScriptStep) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = steps
	m.scriptPos = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithErrorOnCall makes the nth call (1-based) fail with err.
func (m *MockProvider) WithErrorOnCall(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perCallErr[n] = err
	return m
}

// WithDelay adds latency to every call.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter makes calls fail after the nth one succeeds.
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc overrides the whole call behavior.
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	fn := m.completionFunc
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	var resp *llm.ChatResponse
	var err error
	switch {
	case m.perCallErr[count] != nil:
		err = m.perCallErr[count]
	case m.err != nil:
		err = m.err
	case m.failAfter > 0 && count > m.failAfter:
		err = &llm.Error{Code: llm.ErrUpstreamError, Message: "mock failure", Retryable: true}
	case m.scriptPos < len(m.script):
		step := m.script[m.scriptPos]
		m.scriptPos++
		if step.Err != nil {
			err = step.Err
		} else {
			resp = m.buildResponse(req, step.Content)
		}
	default:
		content := m.response
		if perModel, ok := m.perModel[req.Model]; ok {
			content = perModel
		}
		resp = m.buildResponse(req, content)
	}
	m.mu.Unlock()

	m.record(req, resp, err)
	return resp, err
}

func (m *MockProvider) buildResponse(req *llm.ChatRequest, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:     req.Model,
		Content:   content,
		Reasoning: m.reasoning,
		CreatedAt: time.Now(),
	}
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ProviderCall{Request: req, Response: resp, Error: err})
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Completion ran.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Reset clears recorded calls and counters, keeping configuration.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.scriptPos = 0
}
