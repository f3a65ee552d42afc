// Package config reads runtime settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/persona/internal/credential"
	"github.com/felixgeelhaar/persona/internal/guard"
)

type Config struct {
	// Home holds the database. Defaults to ~/.persona.
	Home string `env:"PERSONA_HOME"`

	Provider   string `env:"PERSONA_PROVIDER" envDefault:"ollama"`
	Model      string `env:"PERSONA_MODEL"`
	PluginPath string `env:"PERSONA_PLUGIN"`
	OllamaHost string `env:"OLLAMA_HOST"`

	// APIKey takes precedence over a key stored with "persona config set".
	APIKey string `env:"PERSONA_API_KEY"`

	// EmbedDims sizes the offline hash embedder.
	EmbedDims  int `env:"PERSONA_EMBED_DIMS" envDefault:"384"`
	EmbedCache int `env:"PERSONA_EMBED_CACHE" envDefault:"4096"`

	MaxSteps  int `env:"PERSONA_MAX_STEPS" envDefault:"500"`
	MaxActs   int `env:"PERSONA_MAX_ACTS" envDefault:"200"`
	MaxAgents int `env:"PERSONA_MAX_AGENTS" envDefault:"16"`

	Verbose bool `env:"PERSONA_VERBOSE" envDefault:"false"`
	CI      bool `env:"CI" envDefault:"false"`

	// Passphrase, when set, keys the credential manager instead of the
	// machine identity.
	Passphrase string `env:"PERSONA_PASSPHRASE"`
}

// Load reads files into the process environment (".env" when none are
// given; missing files are skipped) and parses the result.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.withDefaults()
}

// Parse reads settings from environ only, ignoring the process environment.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.withDefaults()
}

func (c *Config) withDefaults() (*Config, error) {
	if c.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		c.Home = filepath.Join(home, ".persona")
	}
	return c, nil
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, "persona.db")
}

// Policy returns the guard policy built from the configured limits.
func (c *Config) Policy() guard.Policy {
	p := guard.DefaultPolicy
	p.MaxSteps = c.MaxSteps
	p.MaxActs = c.MaxActs
	p.MaxAgents = c.MaxAgents
	return p
}

// CredentialManager returns the manager that seals API keys.
func (c *Config) CredentialManager() (*credential.Manager, error) {
	if c.Passphrase != "" {
		return credential.NewPassphraseManager(c.Passphrase)
	}
	return credential.NewManager()
}
