// Command persona-model serves a provider-backed language model as a
// persona plugin. Start it through "persona run --plugin".
package main

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/persona/internal/config"
	"github.com/felixgeelhaar/persona/internal/model"
	"github.com/felixgeelhaar/persona/internal/plugin"
	"github.com/felixgeelhaar/persona/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	p, err := provider.New(cfg.Provider, provider.Settings{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
		Host:   cfg.OllamaHost,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	plugin.Serve(model.FromProvider(p))
}
