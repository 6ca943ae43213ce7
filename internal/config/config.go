// Package config loads settings from an optional YAML file, a .env file and
// environment variables, with command-line flags taking precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvironmentProduction = "production"

type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	LLM         LLMConfig      `mapstructure:"llm"`
	Log         LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	StaticDir    string        `mapstructure:"static_dir"` // frontend bundle served under /app in production
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	DSN    string `mapstructure:"dsn"`
	Seed   bool   `mapstructure:"seed"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"` // openai or ollama
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Environment == EnvironmentProduction
}

// Load reads configuration. configFile may be empty, in which case config.yaml
// is looked up in the working directory and skipped if absent. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is normal; variables already set win over the file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm.provider must be openai or ollama, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.LLM.Timeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed llm.timeout (%s)", c.Server.WriteTimeout, c.LLM.Timeout)
	}
	return nil
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"environment":       "ENVIRONMENT",
		"server.addr":       "SERVER_ADDR",
		"server.static_dir": "SERVER_STATIC_DIR",
		"database.driver":   "DATABASE_DRIVER",
		"database.dsn":      "DATABASE_DSN",
		"database.seed":     "DATABASE_SEED",
		"llm.provider":      "LLM_PROVIDER",
		"llm.base_url":      "LLM_BASE_URL",
		"llm.api_key":       "OPENAI_API_KEY",
		"llm.model":         "LLM_MODEL",
		"llm.timeout":       "LLM_TIMEOUT",
		"log.level":         "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "convostore.db")
	v.SetDefault("database.seed", true)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "http://localhost:11434/v1/")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("log.level", "info")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":        "server.addr",
	"db-driver":   "database.driver",
	"db-dsn":      "database.dsn",
	"seed":        "database.seed",
	"llm-model":   "llm.model",
	"llm-url":     "llm.base_url",
	"llm-timeout": "llm.timeout",
	"log-level":   "log.level",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}
