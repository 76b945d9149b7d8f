package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/llm/retry"
	"github.com/BaSui01/council/testutil/mocks"
)

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestGatewayInvokeSuccess(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("hello")
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	require.True(t, res.OK())
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, "test/model", res.Model)
	assert.Equal(t, 1, provider.CallCount())
}

func TestGatewayInvokeEmptyContent(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("   ")
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	assert.Equal(t, llm.StatusEmpty, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, llm.ErrEmptyContent, res.Err.Code)
}

func TestGatewayAuthorizationFailsFast(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(&llm.Error{
		Code:       llm.ErrUnauthorized,
		Message:    "invalid api key",
		HTTPStatus: 401,
	})
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	assert.Equal(t, llm.StatusFatal, res.Status)
	assert.Equal(t, 1, provider.CallCount(), "authorization failures must not retry")
}

func TestGatewayRateLimitRetriesThenSucceeds(t *testing.T) {
	rateErr := &llm.Error{Code: llm.ErrRateLimited, Message: "429", HTTPStatus: 429, Retryable: true}
	provider := mocks.NewMockProvider().WithScript(
		mocks.ScriptStep{Err: rateErr},
		mocks.ScriptStep{Err: rateErr},
		mocks.ScriptStep{Content: "recovered"},
	)
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	require.True(t, res.OK())
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, 3, provider.CallCount())
}

func TestGatewayRateLimitExhaustsRetries(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(&llm.Error{
		Code: llm.ErrRateLimited, Message: "429", Retryable: true,
	})
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	assert.Equal(t, llm.StatusTransient, res.Status)
	assert.Equal(t, 4, provider.CallCount(), "initial attempt plus MaxRetries")
}

func TestGatewayStripsRejectedReasoning(t *testing.T) {
	provider := mocks.NewMockProvider().WithScript(
		mocks.ScriptStep{Err: &llm.Error{Code: llm.ErrInvalidRequest, Message: "reasoning is unsupported for this model", HTTPStatus: 400}},
		mocks.ScriptStep{Content: "plain answer"},
	)
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	req := &llm.ChatRequest{
		Model:  "test/model",
		Extras: map[string]any{"reasoning": map[string]any{"effort": "high"}, "other": 1},
	}
	res := g.Invoke(context.Background(), req)

	require.True(t, res.OK())
	assert.Equal(t, "plain answer", res.Text)

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Request.Extras, "reasoning")
	assert.NotContains(t, calls[1].Request.Extras, "reasoning")
	assert.Contains(t, calls[1].Request.Extras, "other", "non-reasoning extras survive the strip")
	assert.Contains(t, req.Extras, "reasoning", "caller's request is not mutated")
}

func TestGatewayReasoningStrippedOnlyOnce(t *testing.T) {
	badReq := &llm.Error{Code: llm.ErrInvalidRequest, Message: "unsupported parameter: reasoning", HTTPStatus: 400}
	provider := mocks.NewMockProvider().WithError(badReq)
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{
		Model:  "test/model",
		Extras: map[string]any{"reasoning": map[string]any{"effort": "high"}},
	})

	assert.Equal(t, llm.StatusFatal, res.Status)
	assert.Equal(t, 2, provider.CallCount(), "one original call and one stripped retry")
}

func TestGatewayTimeoutWithReasoningRetriesWithoutIt(t *testing.T) {
	provider := mocks.NewMockProvider().WithScript(
		mocks.ScriptStep{Err: &llm.Error{Code: llm.ErrUpstreamTimeout, Message: "timeout", Retryable: true}},
		mocks.ScriptStep{Content: "fast answer"},
	)
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{
		Model:  "test/model",
		Extras: map[string]any{"reasoning": map[string]any{"max_tokens": 2048}},
	})

	require.True(t, res.OK())
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].Request.Extras, "reasoning")
}

func TestGatewayInvalidRequestWithoutReasoningIsFatal(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(&llm.Error{
		Code: llm.ErrInvalidRequest, Message: "bad payload", HTTPStatus: 400,
	})
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.Invoke(context.Background(), &llm.ChatRequest{Model: "test/model"})

	assert.Equal(t, llm.StatusFatal, res.Status)
	assert.Equal(t, 1, provider.CallCount())
}

func TestGatewayTryCandidatesCascades(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			if req.Model == "primary" {
				return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "500", Retryable: false}
			}
			return &llm.ChatResponse{Model: req.Model, Content: "from fallback"}, nil
		})
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.TryCandidates(context.Background(), []string{"primary", "fallback"}, func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{Model: model}
	})

	require.True(t, res.OK())
	assert.Equal(t, "fallback", res.Model)
	assert.Equal(t, "from fallback", res.Text)
}

func TestGatewayTryCandidatesAllFail(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(&llm.Error{
		Code: llm.ErrUpstreamError, Message: "500", Retryable: false,
	})
	g := llm.NewGateway(provider, nil, llm.WithRetryPolicy(fastPolicy()))

	res := g.TryCandidates(context.Background(), []string{"a", "b"}, func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{Model: model}
	})

	assert.False(t, res.OK())
	assert.Equal(t, llm.StatusFatal, res.Status)
}

func TestGatewayTryCandidatesEmptyList(t *testing.T) {
	g := llm.NewGateway(mocks.NewMockProvider(), nil)

	res := g.TryCandidates(context.Background(), nil, func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{Model: model}
	})

	assert.Equal(t, llm.StatusFatal, res.Status)
	require.NotNil(t, res.Err)
}
