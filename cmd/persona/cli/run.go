package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/persona/internal/embedder"
	"github.com/felixgeelhaar/persona/internal/entity"
	"github.com/felixgeelhaar/persona/internal/guard"
	"github.com/felixgeelhaar/persona/internal/memory"
	"github.com/felixgeelhaar/persona/internal/model"
	"github.com/felixgeelhaar/persona/internal/observe"
	"github.com/felixgeelhaar/persona/internal/plugin"
	"github.com/felixgeelhaar/persona/internal/provider"
	"github.com/felixgeelhaar/persona/internal/scenario"
	"github.com/felixgeelhaar/persona/internal/ui"
	"github.com/felixgeelhaar/persona/internal/ui/tui"
)

var (
	verbose      bool
	providerName string
	modelName    string
	pluginPath   string
	offline      bool
	ciMode       bool
	interactive  bool
)

var runCmd = &cobra.Command{
	Use:   "run [scenario-glob]...",
	Short: "Run one or more scenario files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	runCmd.Flags().StringVarP(&providerName, "provider", "p", "", "Model provider (openai, ollama, gemini, anthropic, cli, stub)")
	runCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	runCmd.Flags().StringVar(&pluginPath, "plugin", "", "Use a model plugin binary instead of a provider")
	runCmd.Flags().BoolVar(&offline, "offline", false, "Run without any model backend")
	runCmd.Flags().BoolVar(&ciMode, "ci", false, "CI mode: JSON output, non-interactive")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start interactive TUI")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	cfg := e.cfg
	if providerName != "" {
		cfg.Provider = providerName
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	if pluginPath != "" {
		cfg.PluginPath = pluginPath
	}
	cfg.Verbose = cfg.Verbose || verbose
	cfg.CI = cfg.CI || ciMode

	var obs *observe.Observer
	if cfg.CI {
		obs = observe.NewJSON(cmd.OutOrStdout(), cfg.Verbose)
	} else {
		obs = observe.New(cmd.ErrOrStderr(), cfg.Verbose)
	}
	defer obs.Close()

	paths, err := scenario.Discover(args...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no scenario files match %v", args)
	}

	lm, emb, cleanup, err := capabilities(e, offline)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := NewRunner(obs, e.store, lm, emb, guard.New(cfg.Policy()), nil)
	runner.Metadata = map[string]string{"provider": backendName(cfg.Provider, cfg.PluginPath, offline)}

	runAll := func(out io.Writer) error {
		var failed int
		for _, path := range paths {
			res, err := runner.Run(ctx, path)
			if res != nil {
				fmt.Fprintf(out, "Run %s: %d steps, %d acts, %d unresolved\n", res.RunID, res.Steps, len(res.Actions), res.Failed)
			}
			if err != nil {
				failed++
				obs.Log().Error().Str("path", path).Err(err).Msg("run failed")
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d runs failed", failed, len(paths))
		}
		return nil
	}

	if interactive && !cfg.CI {
		m := tui.NewModel("persona", 0)
		program := tea.NewProgram(m)
		runner.UI = tui.NewTUI(program)

		done := make(chan error, 1)
		go func() {
			done <- runAll(io.Discard)
			program.Quit()
		}()

		if _, err := program.Run(); err != nil {
			return fmt.Errorf("interactive UI failed: %w", err)
		}
		select {
		case err := <-done:
			return err
		default:
			stop()
			return <-done
		}
	}

	if !cfg.CI {
		runner.UI = ui.NewLineUI(cmd.OutOrStdout())
	}
	return runAll(cmd.OutOrStdout())
}

// capabilities picks the language model and embedder. The returned cleanup
// must always be called.
func capabilities(e *env, offline bool) (entity.LanguageModel, memory.Embedder, func(), error) {
	cfg := e.cfg
	var (
		lm    entity.LanguageModel
		inner memory.Embedder = embedder.Hash(cfg.EmbedDims)
		stop  = func() {}
	)

	switch {
	case offline:
		lm = model.Offline{}
	case cfg.PluginPath != "":
		m, kill, err := plugin.Launch(cfg.PluginPath)
		if err != nil {
			return nil, nil, nil, err
		}
		lm, stop = m, kill
	default:
		p, err := provider.New(cfg.Provider, providerSettings(e))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize provider: %w", err)
		}
		lm = model.FromProvider(p)
		if provider.CanEmbed(cfg.Provider) {
			inner = embedder.FromProvider(p)
		}
	}

	cached, err := embedder.Cached(inner, int64(cfg.EmbedCache))
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return lm, cached, func() {
		cached.Close()
		stop()
	}, nil
}

func providerSettings(e *env) provider.Settings {
	name := e.cfg.Provider
	apiKey := e.cfg.APIKey
	if apiKey == "" {
		apiKey, _ = e.creds.GetConfig(name + ".api_key")
	}
	baseURL, _ := e.creds.GetConfig(name + ".base_url")
	cliPath, _ := e.creds.GetConfig("provider.cli.path")

	return provider.Settings{
		Model:   e.cfg.Model,
		APIKey:  apiKey,
		BaseURL: baseURL,
		Host:    e.cfg.OllamaHost,
		CLIPath: cliPath,
	}
}

func backendName(providerName, pluginPath string, offline bool) string {
	switch {
	case offline:
		return "offline"
	case pluginPath != "":
		return "plugin:" + pluginPath
	default:
		return providerName
	}
}
