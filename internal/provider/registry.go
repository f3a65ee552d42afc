package provider

import (
	"fmt"
	"os/exec"
	"strings"
)

// Settings carries what the constructors need. Fields a provider does not use
// are ignored.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
	Host    string
	CLIPath string
	CLIArgs []string
}

// Names lists the providers New accepts.
var Names = []string{"openai", "ollama", "gemini", "anthropic", "cli", "stub"}

// New builds the named provider.
func New(name string, s Settings) (Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return checked(NewOpenAIProvider(s.APIKey, s.BaseURL, s.Model))
	case "ollama":
		return checked(NewOllamaProvider(s.Host, s.Model))
	case "gemini":
		return checked(NewGeminiProvider(s.APIKey, s.Model))
	case "anthropic":
		return checked(NewAnthropicProvider(s.APIKey, s.BaseURL, s.Model))
	case "cli":
		path := s.CLIPath
		if path == "" {
			var err error
			if path, err = DetectCLI(); err != nil {
				return nil, err
			}
		}
		return checked(NewCLIProvider(path, s.CLIArgs))
	case "stub":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (have %s)", name, strings.Join(Names, ", "))
	}
}

// checked keeps a typed nil out of the Provider interface.
func checked[T Provider](p T, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CanEmbed reports whether the named provider serves embeddings.
func CanEmbed(name string) bool {
	switch strings.ToLower(name) {
	case "anthropic", "cli":
		return false
	}
	return true
}

// DetectCLI finds a local model CLI on PATH.
func DetectCLI() (string, error) {
	tools := []string{"claude", "codex", "gemini", "llm"}
	for _, t := range tools {
		if path, err := exec.LookPath(t); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no local CLI model detected (tried %s)", strings.Join(tools, ", "))
}
