package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bannerbuildr.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	p := writeConfig(t, `
[server]
port = 9000

[ai]
provider = "openai"
api_key = "from-file"

[preview]
strategy = "served"
`)
	t.Setenv("BANNERBUILDR_AI_API_KEY", "from-env")
	t.Setenv("BANNERBUILDR_SHEETS_REQUESTS_PER_SECOND", "5")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, ":9000", cfg.Server.Address())
	assert.Equal(t, "from-env", cfg.AI.APIKey)
	assert.Equal(t, 5.0, cfg.Sheets.RequestsPerSecond)
	assert.Equal(t, "served", cfg.Preview.Strategy)

	// defaults
	assert.Equal(t, "index.html", cfg.Template.EntryName)
	assert.Equal(t, "Dynamic.js", cfg.Template.ConfigScript)
	assert.Equal(t, 300, cfg.Template.DefaultWidth)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout())
	assert.Equal(t, "/api/v1/handles/", cfg.Preview.HandlePrefix)

	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := LoadConfig(writeConfig(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"missing key", func(c *Config) { c.AI.Provider = "claude" }, "api_key is required"},
		{"ollama needs no key", func(c *Config) { c.AI.Provider = "ollama" }, ""},
		{"unknown provider", func(c *Config) { c.AI.Provider = "skynet" }, "skynet"},
		{"bad strategy", func(c *Config) { c.Preview.Strategy = "cdn" }, "cdn"},
		{"no workers", func(c *Config) { c.Archive.MaxWorkers = 0 }, "max_workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bannerbuildr.toml")
	require.NoError(t, InitConfig(p))
	assert.Error(t, InitConfig(p), "existing files are not overwritten")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.NoError(t, Validate(cfg))
}
