package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"judgebench/internal/app"
	"judgebench/internal/schemas"
	"judgebench/internal/store"
)

func newSubmissionsCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Import and list submissions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import a JSON array of submissions, replacing any with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading submissions: %w", err)
			}
			var in []schemas.IngestSubmission
			if err := json.Unmarshal(b, &in); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			subs := make([]schemas.Submission, 0, len(in))
			for _, raw := range in {
				sub, err := store.FromIngest(raw)
				if err != nil {
					return err
				}
				subs = append(subs, sub)
			}
			return withApp(cmd, open, func(a *app.App) error {
				n, err := a.Store.ImportSubmissions(cmd.Context(), subs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d submissions\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				subs, err := a.Store.ListSubmissions(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "ID", "Queue", "Task")
				for _, s := range subs {
					_ = t.Append([]string{s.ID, s.QueueID, s.TaskID})
				}
				return t.Render()
			})
		},
	})
	return cmd
}

func newAssignCommand(open opener) *cobra.Command {
	var (
		judgeID int64
		queue   string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a judge to every question of the selected submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if judgeID <= 0 {
				return fmt.Errorf("--judge is required")
			}
			return withApp(cmd, open, func(a *app.App) error {
				ctx := cmd.Context()
				subs, err := a.Store.ListSubmissions(ctx)
				if err != nil {
					return err
				}
				created, existing := 0, 0
				for _, s := range subs {
					if queue != "" && s.QueueID != queue {
						continue
					}
					full, err := a.Store.GetSubmission(ctx, s.ID)
					if err != nil {
						return err
					}
					for _, q := range full.Questions {
						_, isNew, err := a.Store.CreateAssignment(ctx, schemas.CreateAssignmentRequest{
							SubmissionID: s.ID, QuestionID: q.ID, JudgeID: judgeID,
						})
						if err != nil {
							return err
						}
						if isNew {
							created++
						} else {
							existing++
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d assignments created, %d already existed\n", created, existing)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&judgeID, "judge", 0, "Judge id to assign")
	cmd.Flags().StringVar(&queue, "queue", "", "Only submissions from this queue")
	return cmd
}

func itoa(n int) string { return strconv.Itoa(n) }
