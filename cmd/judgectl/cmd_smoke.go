package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"judgebench/internal/schemas"
)

// smokeSubmission is a two-question fixture with one correct and one wrong answer.
const smokeSubmission = `[{
  "id": "smoke_sub_1",
  "queueId": "smoke",
  "labelingTaskId": "smoke_task",
  "questions": [
    {"rev": 1, "data": {"id": "q_capital", "questionType": "single_choice_with_reasoning", "questionText": "What is the capital of France?"}},
    {"rev": 1, "data": {"id": "q_math", "questionType": "single_choice_with_reasoning", "questionText": "What is 2 + 2?"}}
  ],
  "answers": {
    "q_capital": {"choice": "Paris", "reasoning": "Paris has been the capital since the 10th century."},
    "q_math": {"choice": "5", "reasoning": "Adding two and two gives five."}
  }
}]`

func newSmokeCommand() *cobra.Command {
	var (
		base    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Exercise a running API end to end",
		Long: `Import a fixture submission, create a judge, assign it, run the queue and
read the results back through the HTTP API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := &smokeClient{http: &http.Client{Timeout: timeout}, base: base}
			return c.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&base, "base", envOr("API_BASE_URL", "http://localhost:8000"), "API base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-request timeout; runs block until all judge calls finish")
	return cmd
}

type smokeClient struct {
	http *http.Client
	base string
}

func (c *smokeClient) run(ctx context.Context, out io.Writer) error {
	// 1) Import submission
	var imported map[string]int
	if err := c.do(ctx, http.MethodPost, "/submissions/import", json.RawMessage(smokeSubmission), &imported); err != nil {
		return fmt.Errorf("import submissions: %w", err)
	}
	fmt.Fprintf(out, "✅ Imported submissions: %d\n", imported["imported"])

	// 2) Create a judge with a unique name
	var judge schemas.Judge
	req := schemas.CreateJudgeRequest{
		Name:   "smoke-" + uuid.NewString()[:8],
		Prompt: "Pass the answer only if the chosen option is factually correct and the reasoning supports it.",
	}
	if err := c.do(ctx, http.MethodPost, "/judges", req, &judge); err != nil {
		return fmt.Errorf("create judge: %w", err)
	}
	fmt.Fprintf(out, "✅ Created judge: id=%d name=%s\n", judge.ID, judge.Name)

	// 3) Assign it to both questions
	for _, q := range []string{"q_capital", "q_math"} {
		var a schemas.Assignment
		body := schemas.CreateAssignmentRequest{SubmissionID: "smoke_sub_1", QuestionID: q, JudgeID: judge.ID}
		if err := c.do(ctx, http.MethodPost, "/assignments", body, &a); err != nil {
			return fmt.Errorf("assign %s: %w", q, err)
		}
	}
	fmt.Fprintln(out, "✅ Assigned judge to 2 questions")

	// 4) Run the queue
	var sum schemas.RunSummary
	if err := c.do(ctx, http.MethodPost, "/evaluations/run", schemas.RunScope{QueueID: "smoke"}, &sum); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Fprintf(out, "✅ Run %s: planned=%d completed=%d failed=%d\n", sum.RunID, sum.Planned, sum.Completed, sum.Failed)
	for _, e := range sum.Errors {
		fmt.Fprintf(out, "   ⚠️  %s\n", e)
	}

	// 5) Read results for this judge
	var page schemas.EvaluationPage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/evaluations?judgeId=%d", judge.ID), nil, &page); err != nil {
		return fmt.Errorf("query evaluations: %w", err)
	}
	fmt.Fprintf(out, "📊 Results: total=%d pass=%d passRate=%d%%\n", page.Summary.Total, page.Summary.Pass, page.Summary.PassRatePct)
	for _, e := range page.Items {
		fmt.Fprintf(out, "   %s/%s -> %s: %s\n", e.SubmissionID, e.QuestionID, e.Verdict, truncate(e.Reasoning, 80))
	}

	if sum.Planned != sum.Completed+sum.Failed {
		return fmt.Errorf("inconsistent summary: planned=%d completed=%d failed=%d", sum.Planned, sum.Completed, sum.Failed)
	}
	if page.Summary.Total != sum.Completed {
		return fmt.Errorf("expected %d stored evaluations, found %d", sum.Completed, page.Summary.Total)
	}
	return nil
}

func (c *smokeClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s %s -> %d: %s", method, path, res.StatusCode, string(b))
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
