package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"judgebench/internal/app"
	"judgebench/internal/schemas"
)

func newRunCommand(open opener) *cobra.Command {
	var queue string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every assignment in scope once",
		Long: `Evaluate every assignment in scope once with its judge and print the run summary.

Each run adds new evaluation rows; earlier results are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				sum, err := a.Runner.RunEvaluations(cmd.Context(), schemas.RunScope{QueueID: queue})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				t := newTable(out, "Run", "Planned", "Completed", "Failed")
				_ = t.Append([]string{sum.RunID, itoa(sum.Planned), itoa(sum.Completed), itoa(sum.Failed)})
				if err := t.Render(); err != nil {
					return err
				}
				for _, e := range sum.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
				if sum.Failed > len(sum.Errors) {
					fmt.Fprintf(out, "  (%d more failures, see logs)\n", sum.Failed-len(sum.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "Only assignments of submissions in this queue")
	return cmd
}
