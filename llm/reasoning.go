package llm

// ReasoningConfig describes which backends accept a reasoning/thinking
// directive and how each one wants it expressed. Injected from
// configuration so the model lists stay data, not code.
type ReasoningConfig struct {
	// SupportedModels may carry a reasoning directive at all.
	SupportedModels []string `yaml:"supported_models"`
	// EffortModels take {"effort": ...}.
	EffortModels []string `yaml:"effort_models"`
	// MaxTokensModels take {"max_tokens": ...}.
	MaxTokensModels []string `yaml:"max_tokens_models"`
	DefaultEffort   string   `yaml:"default_effort"`
	DefaultTokens   int      `yaml:"default_tokens"`
}

// ApplyReasoning attaches the reasoning directive for req.Model when the
// backend supports one. When the directive carries a token budget the
// request's max_tokens is raised above it so the visible answer is not
// squeezed out by the thinking stream.
func ApplyReasoning(req *ChatRequest, cfg ReasoningConfig) {
	if !containsModel(cfg.SupportedModels, req.Model) {
		return
	}

	reasoning := map[string]any{}
	switch {
	case containsModel(cfg.MaxTokensModels, req.Model):
		tokens := cfg.DefaultTokens
		if tokens <= 0 {
			tokens = 2048
		}
		reasoning["max_tokens"] = tokens
		if req.MaxTokens <= tokens {
			req.MaxTokens = tokens + 512
		}
	case containsModel(cfg.EffortModels, req.Model):
		effort := cfg.DefaultEffort
		if effort == "" {
			effort = "medium"
		}
		reasoning["effort"] = effort
	default:
		reasoning["enabled"] = true
	}

	if req.Extras == nil {
		req.Extras = map[string]any{}
	}
	req.Extras["reasoning"] = reasoning
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}
