package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"judgebench/internal/app"
	"judgebench/internal/schemas"
)

type filterFlags struct {
	judges      []int64
	verdicts    []string
	questions   []string
	submissions []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64SliceVar(&f.judges, "judge", nil, "Judge ids (repeatable)")
	cmd.Flags().StringSliceVar(&f.verdicts, "verdict", nil, "Verdicts: pass, fail, inconclusive (repeatable)")
	cmd.Flags().StringSliceVar(&f.questions, "question", nil, "Question ids (repeatable)")
	cmd.Flags().StringSliceVar(&f.submissions, "submission", nil, "Submission ids (repeatable)")
}

func (f *filterFlags) filters() (schemas.EvaluationFilters, error) {
	out := schemas.EvaluationFilters{
		JudgeIDs:      f.judges,
		QuestionIDs:   f.questions,
		SubmissionIDs: f.submissions,
	}
	for _, v := range f.verdicts {
		verdict := schemas.Verdict(strings.ToLower(v))
		if !verdict.Valid() {
			return out, fmt.Errorf("invalid verdict %q", v)
		}
		out.Verdicts = append(out.Verdicts, verdict)
	}
	return out, nil
}

func newResultsCommand(open opener) *cobra.Command {
	var (
		ff     filterFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show evaluation results with a pass-rate summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filters()
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				out := cmd.OutOrStdout()
				switch format {
				case "csv":
					_, err := a.Results.WriteCSV(cmd.Context(), out, f)
					return err
				case "table":
				default:
					return fmt.Errorf("unknown format %q (want table or csv)", format)
				}

				page, err := a.Results.Query(cmd.Context(), f)
				if err != nil {
					return err
				}
				t := newTable(out, "ID", "Submission", "Question", "Judge", "Verdict", "Reasoning", "Created")
				for _, e := range page.Items {
					_ = t.Append([]string{
						strconv.FormatInt(e.ID, 10), e.SubmissionID, e.QuestionID,
						strconv.FormatInt(e.JudgeID, 10), string(e.Verdict),
						truncate(e.Reasoning, 48), e.CreatedAt.Format(time.RFC3339),
					})
				}
				if err := t.Render(); err != nil {
					return err
				}
				fmt.Fprintf(out, "pass rate: %d%% (%d/%d)\n", page.Summary.PassRatePct, page.Summary.Pass, page.Summary.Total)
				return nil
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or csv")
	return cmd
}

func newStatsCommand(open opener) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pass rate per judge and the verdict distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filters()
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				b, err := a.Results.Breakdown(cmd.Context(), f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				jt := newTable(out, "Judge", "Name", "Total", "Pass", "Pass rate")
				for _, js := range b.ByJudge {
					_ = jt.Append([]string{
						strconv.FormatInt(js.JudgeID, 10), js.JudgeName,
						itoa(js.Total), itoa(js.Pass), itoa(js.PassRatePct) + "%",
					})
				}
				if err := jt.Render(); err != nil {
					return err
				}
				fmt.Fprintln(out)
				vt := newTable(out, "Verdict", "Count", "Share")
				for _, v := range b.Verdicts {
					_ = vt.Append([]string{string(v.Verdict), itoa(v.Count), itoa(v.Percentage) + "%"})
				}
				if err := vt.Render(); err != nil {
					return err
				}
				fmt.Fprintf(out, "overall pass rate: %d%% (%d/%d)\n", b.Summary.PassRatePct, b.Summary.Pass, b.Summary.Total)
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}
