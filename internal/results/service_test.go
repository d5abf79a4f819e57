package results_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judgebench/internal/results"
	"judgebench/internal/schemas"
	"judgebench/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	for _, name := range []string{"strict", "lenient"} {
		_, err := s.CreateJudge(ctx, schemas.CreateJudgeRequest{Name: name, Prompt: "grade"})
		require.NoError(t, err)
	}
	rows := []schemas.Evaluation{
		{SubmissionID: "s1", QuestionID: "q1", JudgeID: 1, Verdict: schemas.VerdictPass, Reasoning: "ok"},
		{SubmissionID: "s1", QuestionID: "q2", JudgeID: 1, Verdict: schemas.VerdictPass, Reasoning: "fine"},
		{SubmissionID: "s2", QuestionID: "q1", JudgeID: 1, Verdict: schemas.VerdictFail, Reasoning: `said "no", wrongly`},
		{SubmissionID: "s2", QuestionID: "q1", JudgeID: 2, Verdict: schemas.VerdictPass, Reasoning: "ok"},
		{SubmissionID: "s2", QuestionID: "q2", JudgeID: 2, Verdict: schemas.VerdictInconclusive, Reasoning: "unclear"},
		{SubmissionID: "s3", QuestionID: "q1", JudgeID: 7, Verdict: schemas.VerdictPass, Reasoning: "ok"},
	}
	for i, e := range rows {
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := s.SaveEvaluation(ctx, e)
		require.NoError(t, err)
	}
	return s
}

func TestQuery_SummaryFollowsFilters(t *testing.T) {
	svc := results.NewService(seeded(t), nil)
	ctx := context.Background()

	page, err := svc.Query(ctx, schemas.EvaluationFilters{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 6)
	assert.Equal(t, schemas.Summary{Total: 6, Pass: 4, PassRatePct: 67}, page.Summary)

	page, err = svc.Query(ctx, schemas.EvaluationFilters{JudgeIDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, schemas.Summary{Total: 3, Pass: 2, PassRatePct: 67}, page.Summary)

	page, err = svc.Query(ctx, schemas.EvaluationFilters{
		Verdicts: []schemas.Verdict{schemas.VerdictPass},
		JudgeIDs: []int64{7},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "s3", page.Items[0].SubmissionID)
	assert.Equal(t, schemas.Summary{Total: 1, Pass: 1, PassRatePct: 100}, page.Summary)

	page, err = svc.Query(ctx, schemas.EvaluationFilters{SubmissionIDs: []string{"none"}})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, schemas.Summary{}, page.Summary)
}

func TestQuery_ConsistentWithSummary(t *testing.T) {
	svc := results.NewService(seeded(t), nil)
	f := schemas.EvaluationFilters{QuestionIDs: []string{"q1"}}

	page, err := svc.Query(context.Background(), f)
	require.NoError(t, err)
	sum, err := svc.Summary(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, sum, page.Summary)
}

func TestPassRatePct(t *testing.T) {
	assert.Equal(t, 0, schemas.PassRatePct(0, 0))
	assert.Equal(t, 67, schemas.PassRatePct(2, 3))
	assert.Equal(t, 33, schemas.PassRatePct(1, 3))
	assert.Equal(t, 50, schemas.PassRatePct(1, 2))
	assert.Equal(t, 100, schemas.PassRatePct(5, 5))
}

func TestBreakdown(t *testing.T) {
	svc := results.NewService(seeded(t), nil)

	b, err := svc.Breakdown(context.Background(), schemas.EvaluationFilters{})
	require.NoError(t, err)
	assert.Equal(t, 6, b.Summary.Total)

	assert.Equal(t, []schemas.JudgeStats{
		{JudgeID: 1, JudgeName: "strict", Total: 3, Pass: 2, PassRatePct: 67},
		{JudgeID: 2, JudgeName: "lenient", Total: 2, Pass: 1, PassRatePct: 50},
		{JudgeID: 7, Total: 1, Pass: 1, PassRatePct: 100},
	}, b.ByJudge)

	assert.Equal(t, []schemas.VerdictCount{
		{Verdict: schemas.VerdictPass, Count: 4, Percentage: 67},
		{Verdict: schemas.VerdictFail, Count: 1, Percentage: 17},
		{Verdict: schemas.VerdictInconclusive, Count: 1, Percentage: 17},
	}, b.Verdicts)
}

func TestWriteCSV(t *testing.T) {
	svc := results.NewService(seeded(t), nil)
	var buf bytes.Buffer

	n, err := svc.WriteCSV(context.Background(), &buf, schemas.EvaluationFilters{Verdicts: []schemas.Verdict{schemas.VerdictFail}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"ID", "Submission", "Question", "Judge", "Verdict", "Reasoning", "Created"}, records[0])
	assert.Equal(t, []string{"3", "s2", "q1", "1", "fail", `said "no", wrongly`, "2025-03-01T12:02:00Z"}, records[1])
}

type memObjects struct {
	prefix, ext, contentType string
	body                     string
	err                      error
}

func (m *memObjects) Put(_ context.Context, prefix, ext, contentType string, body io.ReadSeeker) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.prefix, m.ext, m.contentType, m.body = prefix, ext, contentType, string(b)
	return "s3://bucket/" + prefix + "/x" + ext, nil
}

func TestExport(t *testing.T) {
	objects := &memObjects{}
	svc := results.NewService(seeded(t), objects)

	ref, err := svc.Export(context.Background(), schemas.EvaluationFilters{JudgeIDs: []int64{2}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "s3://bucket/exports/"))
	assert.Equal(t, ".csv", objects.ext)
	assert.Equal(t, "text/csv", objects.contentType)
	assert.Equal(t, 3, strings.Count(objects.body, "\n"), "header plus two rows")

	objects.err = errors.New("bucket gone")
	_, err = svc.Export(context.Background(), schemas.EvaluationFilters{})
	assert.ErrorContains(t, err, "bucket gone")
}

func TestExportWithoutObjectStore(t *testing.T) {
	svc := results.NewService(seeded(t), nil)
	_, err := svc.Export(context.Background(), schemas.EvaluationFilters{})
	assert.ErrorIs(t, err, results.ErrExportUnavailable)
}
