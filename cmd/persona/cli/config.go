package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/persona/internal/credential"
)

var reveal bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage persisted configuration. Keys ending in api_key
(openai.api_key, gemini.api_key, anthropic.api_key) are sealed at rest.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.creds.SetConfig(key, value); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		val, err := e.creds.GetConfig(key)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case val == "":
			fmt.Fprintln(out, "(not set)")
		case credential.IsSecretKey(key) && !reveal:
			fmt.Fprintln(out, credential.MaskSecret(val))
		default:
			fmt.Fprintln(out, val)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configGetCmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets unmasked")
}
