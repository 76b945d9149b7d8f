package llm

import "time"

// SearchConfig configures search-augmented invocations used by the
// verification stage.
type SearchConfig struct {
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	ContextSize string        `yaml:"context_size"` // low / medium / high
	MaxTokens   int           `yaml:"max_tokens"`
	// NoToolsModels are search-native backends that reject an explicit
	// web_search tool declaration.
	NoToolsModels []string `yaml:"no_tools_models"`
}

// NewSearchRequest builds a deterministic, search-augmented request.
// Temperature is pinned to zero so evidence extraction stays stable.
func NewSearchRequest(cfg SearchConfig, messages []Message) *ChatRequest {
	zero := float32(0)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	contextSize := cfg.ContextSize
	if contextSize == "" {
		contextSize = "high"
	}

	extras := map[string]any{
		"web_search_options": map[string]any{"search_context_size": contextSize},
	}
	if !containsModel(cfg.NoToolsModels, cfg.Model) {
		extras["tools"] = []map[string]any{{"type": "web_search"}}
		extras["tool_choice"] = "auto"
	}

	return &ChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &zero,
		Timeout:     timeout,
		Extras:      extras,
	}
}
