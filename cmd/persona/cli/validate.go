package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/persona/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scenario-file]",
	Short: "Check a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}

		res := scenario.Validate(sc)
		out := cmd.OutOrStdout()
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		if !res.Valid {
			return fmt.Errorf("scenario %s is invalid", sc.Name)
		}
		fmt.Fprintf(out, "%s: %d agents, %d steps, ok\n", sc.Name, len(sc.Agents), len(sc.Steps))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(validateCmd)
}
