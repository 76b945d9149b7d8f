package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/council/llm/retry"
)

// ResultStatus is the closed set of invocation outcomes. Every stage
// pattern-matches on it to pick a policy instead of inspecting errors.
type ResultStatus string

const (
	StatusOK        ResultStatus = "ok"
	StatusEmpty     ResultStatus = "empty"     // call succeeded, no usable text
	StatusTransient ResultStatus = "transient" // retries exhausted on a retryable failure
	StatusFatal     ResultStatus = "fatal"     // non-transient, do not retry
)

// Result is the gateway's tagged response. Text is only meaningful when
// Status is StatusOK.
type Result struct {
	Status      ResultStatus
	Text        string
	Reasoning   string
	Annotations []Annotation
	Model       string
	Err         *Error
}

// OK reports whether the invocation produced usable text.
func (r *Result) OK() bool { return r.Status == StatusOK }

// CallObserver receives one record per finished upstream call.
type CallObserver interface {
	ObserveLLMCall(model string, status string, duration time.Duration)
}

// Gateway wraps a Provider with the pipeline's retry and degradation
// policy: bounded exponential backoff on rate limits, immediate failure
// on authorization errors, and a single reasoning-free retry when a
// backend rejects or times out on a reasoning directive.
type Gateway struct {
	provider Provider
	policy   *retry.Policy
	limiter  *rate.Limiter
	observer CallObserver
	logger   *zap.Logger
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithRateLimit bounds outbound calls to rps requests per second with
// the given burst.
func WithRateLimit(rps float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithObserver attaches a call observer (metrics).
func WithObserver(obs CallObserver) GatewayOption {
	return func(g *Gateway) { g.observer = obs }
}

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(policy *retry.Policy) GatewayOption {
	return func(g *Gateway) {
		if policy != nil {
			policy.Normalize()
			g.policy = policy
		}
	}
}

// NewGateway creates a gateway around the given provider.
func NewGateway(provider Provider, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		provider: provider,
		policy:   retry.DefaultPolicy(),
		logger:   logger.With(zap.String("component", "gateway")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// reasoningMarkers flag upstream rejections of a reasoning directive.
var reasoningMarkers = []string{"reasoning", "unsupported"}

// Invoke executes one call under the gateway policy and returns a
// tagged result. It never returns a Go error: every failure mode is a
// Result the caller can match on.
func (g *Gateway) Invoke(ctx context.Context, req *ChatRequest) *Result {
	reasoningActive := req.Extras != nil && req.Extras["reasoning"] != nil
	strippedReasoning := false

	for attempt := 0; ; attempt++ {
		if err := g.waitLimiter(ctx, req.Model); err != nil {
			return err
		}

		start := time.Now()
		resp, callErr := g.provider.Completion(ctx, req)
		elapsed := time.Since(start)

		if callErr == nil {
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				g.observe(req.Model, string(StatusEmpty), elapsed)
				return &Result{Status: StatusEmpty, Model: req.Model, Err: &Error{Code: ErrEmptyContent, Message: "backend returned empty content", Model: req.Model}}
			}
			g.observe(req.Model, string(StatusOK), elapsed)
			return &Result{
				Status:      StatusOK,
				Text:        resp.Content,
				Reasoning:   resp.Reasoning,
				Annotations: resp.Annotations,
				Model:       req.Model,
			}
		}

		lerr := AsError(callErr)
		g.observe(req.Model, string(lerr.Code), elapsed)

		switch lerr.Code {
		case ErrUnauthorized:
			g.logger.Warn("authorization failure, not retrying",
				zap.String("model", req.Model), zap.Int("http_status", lerr.HTTPStatus))
			return &Result{Status: StatusFatal, Model: req.Model, Err: lerr}

		case ErrEmptyContent:
			return &Result{Status: StatusEmpty, Model: req.Model, Err: lerr}

		case ErrInvalidRequest:
			// A rejected reasoning directive gets stripped and retried
			// once; any other bad request is final.
			if reasoningActive && !strippedReasoning && containsAny(strings.ToLower(lerr.Message), reasoningMarkers) {
				g.logger.Info("retrying without reasoning directive", zap.String("model", req.Model))
				req = stripReasoning(req)
				strippedReasoning = true
				continue
			}
			return &Result{Status: StatusFatal, Model: req.Model, Err: lerr}

		case ErrUpstreamTimeout:
			if reasoningActive && !strippedReasoning {
				g.logger.Info("timeout with reasoning enabled, retrying without it", zap.String("model", req.Model))
				req = stripReasoning(req)
				strippedReasoning = true
				continue
			}

		case ErrRateLimited:
			// handled by the shared backoff below
		}

		if !lerr.Retryable || attempt >= g.policy.MaxRetries {
			g.logger.Warn("invocation failed",
				zap.String("model", req.Model),
				zap.String("code", string(lerr.Code)),
				zap.Int("attempts", attempt+1),
				zap.Error(lerr))
			status := StatusTransient
			if !lerr.Retryable {
				status = StatusFatal
			}
			return &Result{Status: status, Model: req.Model, Err: lerr}
		}

		g.logger.Debug("retrying invocation",
			zap.String("model", req.Model),
			zap.String("code", string(lerr.Code)),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", g.policy.Delay(attempt+1)))
		if err := g.policy.Wait(ctx, attempt+1); err != nil {
			return &Result{Status: StatusTransient, Model: req.Model, Err: &Error{Code: ErrUpstreamTimeout, Message: err.Error(), Model: req.Model}}
		}
	}
}

// TryCandidates invokes backends from candidates in order until one
// returns usable text. build constructs the request for each backend.
// The last result is returned when every candidate fails.
func (g *Gateway) TryCandidates(ctx context.Context, candidates []string, build func(model string) *ChatRequest) *Result {
	var last *Result
	for _, model := range candidates {
		res := g.Invoke(ctx, build(model))
		if res.OK() {
			return res
		}
		g.logger.Debug("candidate backend failed, cascading",
			zap.String("model", model), zap.String("status", string(res.Status)))
		last = res
		if ctx.Err() != nil {
			break
		}
	}
	if last == nil {
		last = &Result{Status: StatusFatal, Err: &Error{Code: ErrInvalidRequest, Message: "no candidate backends configured"}}
	}
	return last
}

func (g *Gateway) waitLimiter(ctx context.Context, model string) *Result {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return &Result{Status: StatusTransient, Model: model, Err: &Error{Code: ErrUpstreamTimeout, Message: err.Error(), Model: model}}
	}
	return nil
}

func (g *Gateway) observe(model, status string, d time.Duration) {
	if g.observer != nil {
		g.observer.ObserveLLMCall(model, status, d)
	}
}

// stripReasoning returns a shallow copy of req without the reasoning
// directive so the original request stays untouched for the caller.
func stripReasoning(req *ChatRequest) *ChatRequest {
	clone := *req
	clone.Extras = make(map[string]any, len(req.Extras))
	for k, v := range req.Extras {
		if k == "reasoning" {
			continue
		}
		clone.Extras[k] = v
	}
	return &clone
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
