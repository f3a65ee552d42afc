package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List past runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.store.ListRuns(listLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs yet.")
			return nil
		}
		fmt.Fprintf(out, "%-36s  %-20s  %-10s  %s\n", "ID", "SCENARIO", "STATUS", "STARTED")
		for _, r := range runs {
			fmt.Fprintf(out, "%-36s  %-20s  %-10s  %s\n", r.ID, r.Scenario, r.Status, r.CreatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log [run-id]",
	Short: "Print the transcript of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		run, err := e.store.GetRun(args[0])
		if err != nil {
			return err
		}
		events, err := e.store.ListEvents(run.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %s (%s): %s\n", run.ID, run.Scenario, run.Status)
		for _, ev := range events {
			line := fmt.Sprintf("[%s] %-14s", ev.SimTime.Format(time.DateTime), ev.Kind)
			if ev.Agent != "" {
				line += " " + ev.Agent + ":"
			}
			if ev.Content != "" {
				line += " " + ev.Content
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(logCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
}
