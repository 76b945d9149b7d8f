package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenRouterConfig configures the OpenRouter adapter. One adapter serves
// every backend identifier the pipeline routes through it.
type OpenRouterConfig struct {
	APIKey   string
	BaseURL  string
	SiteURL  string // optional HTTP-Referer attribution header
	AppTitle string // optional X-Title attribution header
	Timeout  time.Duration
}

// OpenRouterProvider adapts the OpenRouter chat completions API to the
// uniform Provider contract.
type OpenRouterProvider struct {
	cfg    OpenRouterConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenRouterProvider creates the adapter with sane defaults.
func NewOpenRouterProvider(cfg OpenRouterConfig, logger *zap.Logger) *OpenRouterProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenRouterProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openrouter")),
	}
}

// Name returns the provider identifier.
func (p *OpenRouterProvider) Name() string { return "openrouter" }

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content     string          `json:"content"`
			Reasoning   string          `json:"reasoning,omitempty"`
			Annotations json.RawMessage `json:"annotations,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// Completion issues one chat request. Request Extras are merged into the
// payload verbatim, which is how reasoning directives and web search
// options reach the upstream API.
func (p *OpenRouterProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, &Error{Code: ErrUnauthorized, Message: "openrouter api key is missing", Model: req.Model}
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": toWireMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	for k, v := range req.Extras {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("marshal request: %v", err), Model: req.Model}
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: fmt.Sprintf("build request: %v", err), Model: req.Model}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", p.cfg.SiteURL)
	}
	if p.cfg.AppTitle != "" {
		httpReq.Header.Set("X-Title", p.cfg.AppTitle)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Code: ErrUpstreamTimeout, Message: err.Error(), Retryable: true, Model: req.Model}
		}
		return nil, &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true, Model: req.Model}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: fmt.Sprintf("read response: %v", err), Retryable: true, Model: req.Model}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, data, req.Model)
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: fmt.Sprintf("decode response: %v", err), Retryable: true, Model: req.Model}
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Code: ErrEmptyContent, Message: "response contained no choices", HTTPStatus: resp.StatusCode, Model: req.Model}
	}

	msg := parsed.Choices[0].Message
	return &ChatResponse{
		Model:       req.Model,
		Content:     msg.Content,
		Reasoning:   msg.Reasoning,
		Annotations: parseAnnotations(msg.Annotations),
		CreatedAt:   time.Now(),
	}, nil
}

// mapHTTPError maps an upstream status code to a classified error.
func (p *OpenRouterProvider) mapHTTPError(status int, body []byte, model string) *Error {
	msg := upstreamMessage(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Code: ErrUnauthorized, Message: msg, HTTPStatus: status, Model: model}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Model: model}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status, Model: model}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &Error{Code: ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true, Model: model}
	default:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Model: model}
	}
}

func toWireMessages(messages []Message) []openRouterMessage {
	out := make([]openRouterMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openRouterMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// upstreamMessage digs the human-readable message out of an error body.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(body))
}

func parseAnnotations(raw json.RawMessage) []Annotation {
	if len(raw) == 0 {
		return nil
	}
	var wire []struct {
		Type        string `json:"type"`
		URLCitation *struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"url_citation,omitempty"`
		URL   string `json:"url,omitempty"`
		Title string `json:"title,omitempty"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil
	}
	out := make([]Annotation, 0, len(wire))
	for _, a := range wire {
		ann := Annotation{Type: a.Type, URL: a.URL, Title: a.Title}
		if a.URLCitation != nil {
			ann.URL = a.URLCitation.URL
			ann.Title = a.URLCitation.Title
		}
		out = append(out, ann)
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
