package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DATABASE_DSN", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Database.Seed)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.False(t, cfg.Production())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_SEED", "false")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("SERVER_STATIC_DIR", "/srv/frontend")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.False(t, cfg.Database.Seed)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "/srv/frontend", cfg.Server.StaticDir)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convostore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9100"
database:
  driver: postgres
  dsn: postgres://localhost/convo?sslmode=disable
llm:
  model: gpt-4o-mini
  base_url: https://api.openai.com/v1
`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/convo?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	flags.Duration("llm-timeout", 0, "")
	require.NoError(t, flags.Parse([]string{"--addr", ":7777", "--llm-timeout", "12s"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 12*time.Second, cfg.LLM.Timeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite3"},
			LLM:      LLMConfig{Provider: "openai", Model: "m", Timeout: time.Second},
			Server:   ServerConfig{WriteTimeout: time.Minute},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"provider":      func(c *Config) { c.LLM.Provider = "bard" },
		"model":         func(c *Config) { c.LLM.Model = "" },
		"timeout":       func(c *Config) { c.LLM.Timeout = 0 },
		"write timeout": func(c *Config) { c.Server.WriteTimeout = time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
