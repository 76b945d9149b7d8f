// Package config holds the deliberation service configuration.
// Precedence: defaults, then YAML file, then environment overrides.
package config

import (
	"time"

	"github.com/BaSui01/council/llm"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig        `yaml:"server" env:"SERVER"`
	Gateway      GatewayConfig       `yaml:"gateway" env:"GATEWAY"`
	Council      CouncilConfig       `yaml:"council" env:"COUNCIL"`
	Intent       IntentConfig        `yaml:"intent" env:"INTENT"`
	Verification VerificationConfig  `yaml:"verification" env:"VERIFICATION"`
	Search       llm.SearchConfig    `yaml:"search" env:"SEARCH"`
	Reasoning    llm.ReasoningConfig `yaml:"reasoning" env:"-"`
	Storage      StorageConfig       `yaml:"storage" env:"STORAGE"`
	Log          LogConfig           `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// GatewayConfig configures the upstream model gateway.
type GatewayConfig struct {
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	SiteURL        string        `yaml:"site_url" env:"SITE_URL"`
	AppTitle       string        `yaml:"app_title" env:"APP_TITLE"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	RatePerSecond  float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	RateBurst      int           `yaml:"rate_burst" env:"RATE_BURST"`
}

// CouncilConfig configures the deliberation pipeline itself.
type CouncilConfig struct {
	PanelSize      int           `yaml:"panel_size" env:"PANEL_SIZE"`
	CouncilModels  []string      `yaml:"council_models" env:"MODELS"`
	ChairmanModel  string        `yaml:"chairman_model" env:"CHAIRMAN_MODEL"`
	UtilityModel   string        `yaml:"utility_model" env:"UTILITY_MODEL"`
	FallbackModels []string      `yaml:"fallback_models" env:"FALLBACK_MODELS"`
	StageTimeout   time.Duration `yaml:"stage_timeout" env:"STAGE_TIMEOUT"`
	TitleTimeout   time.Duration `yaml:"title_timeout" env:"TITLE_TIMEOUT"`
}

// IntentConfig configures intent drafting.
type IntentConfig struct {
	Models  []string      `yaml:"models" env:"MODELS"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// VerificationConfig configures the verification stage.
type VerificationConfig struct {
	BaseTargets     int    `yaml:"base_targets" env:"BASE_TARGETS"`
	MaxTargets      int    `yaml:"max_targets" env:"MAX_TARGETS"`
	ClaimsPerTarget int    `yaml:"claims_per_target" env:"CLAIMS_PER_TARGET"`
	ScopeModel      string `yaml:"scope_model" env:"SCOPE_MODEL"`
	ReportModel     string `yaml:"report_model" env:"REPORT_MODEL"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // "file" or "memory"
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute, // streams stay open for the whole run
			ShutdownTimeout: 15 * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL:        "https://openrouter.ai/api/v1/chat/completions",
			AppTitle:       "Council",
			Timeout:        120 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 2 * time.Second,
			RatePerSecond:  10,
			RateBurst:      20,
		},
		Council: CouncilConfig{
			PanelSize: 6,
			CouncilModels: []string{
				"minimax/minimax-m2.1",
				"deepseek/deepseek-v3.2",
				"qwen/qwen2.5-vl-72b-instruct",
				"z-ai/glm-4.7",
				"moonshotai/kimi-k2-0905",
				"qwen/qwen3-235b-a22b-2507",
			},
			ChairmanModel: "minimax/minimax-m2.1",
			UtilityModel:  "google/gemini-3-flash-preview",
			FallbackModels: []string{
				"deepseek/deepseek-v3.2",
				"qwen/qwen3-235b-a22b-2507",
			},
			StageTimeout: 120 * time.Second,
			TitleTimeout: 30 * time.Second,
		},
		Intent: IntentConfig{
			Models: []string{
				"google/gemini-3-flash-preview",
				"deepseek/deepseek-v3.2",
			},
			Timeout: 60 * time.Second,
		},
		Verification: VerificationConfig{
			BaseTargets:     3,
			MaxTargets:      8,
			ClaimsPerTarget: 6,
			ScopeModel:      "google/gemini-3-flash-preview",
			ReportModel:     "minimax/minimax-m2.1",
		},
		Search: llm.SearchConfig{
			Model:       "openai/gpt-4o-mini-search-preview",
			Timeout:     45 * time.Second,
			ContextSize: "high",
			MaxTokens:   800,
		},
		Reasoning: llm.ReasoningConfig{
			DefaultEffort: "medium",
			DefaultTokens: 2048,
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: "data/conversations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
