package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/council/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Council.PanelSize)
	assert.Len(t, cfg.Council.CouncilModels, 6)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Gateway.MaxRetries)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := config.NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Server.Port)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9100
council:
  panel_size: 4
  chairman_model: test/chairman
storage:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Council.PanelSize)
	assert.Equal(t, "test/chairman", cfg.Council.ChairmanModel)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.Verification.BaseTargets)
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := config.NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COUNCIL_SERVER_PORT", "9200")
	t.Setenv("COUNCIL_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("COUNCIL_COUNCIL_PANEL_SIZE", "3")
	t.Setenv("COUNCIL_COUNCIL_MODELS", "a/one, b/two ,c/three")
	t.Setenv("COUNCIL_GATEWAY_RATE_PER_SECOND", "2.5")
	t.Setenv("COUNCIL_STORAGE_BACKEND", "memory")

	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 3, cfg.Council.PanelSize)
	assert.Equal(t, []string{"a/one", "b/two", "c/three"}, cfg.Council.CouncilModels)
	assert.Equal(t, 2.5, cfg.Gateway.RatePerSecond)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644))
	t.Setenv("COUNCIL_SERVER_PORT", "9300")

	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Server.Port)
}

func TestEnvPrefixOverride(t *testing.T) {
	t.Setenv("PANELD_SERVER_PORT", "9400")

	cfg, err := config.NewLoader().WithEnvPrefix("PANELD").Load()
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.Server.Port)
}

func TestInvalidEnvValueFails(t *testing.T) {
	t.Setenv("COUNCIL_SERVER_PORT", "not-a-number")

	_, err := config.NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUNCIL_SERVER_PORT")
}

func TestValidatorRuns(t *testing.T) {
	t.Setenv("COUNCIL_COUNCIL_PANEL_SIZE", "0")

	_, err := config.NewLoader().WithValidator((*config.Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel_size")
}

func TestValidate(t *testing.T) {
	mutate := func(fn func(*config.Config)) *config.Config {
		cfg := config.DefaultConfig()
		fn(cfg)
		return cfg
	}
	cases := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{"bad port", mutate(func(c *config.Config) { c.Server.Port = 0 }), "invalid HTTP port"},
		{"no council models", mutate(func(c *config.Config) { c.Council.CouncilModels = nil }), "council_models"},
		{"no chairman", mutate(func(c *config.Config) { c.Council.ChairmanModel = "" }), "chairman_model"},
		{"inverted targets", mutate(func(c *config.Config) { c.Verification.MaxTargets = 1 }), "target bounds"},
		{"unknown backend", mutate(func(c *config.Config) { c.Storage.Backend = "redis" }), "storage backend"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
