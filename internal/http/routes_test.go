package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judgebench/internal/qa"
	"judgebench/internal/results"
	"judgebench/internal/runner"
	"judgebench/internal/schemas"
	"judgebench/internal/store"
)

const importBody = `[
  {
    "id": "sub_1",
    "queueId": "queue_1",
    "labelingTaskId": "task_1",
    "createdAt": 1690000000000,
    "questions": [
      {"rev": 1, "data": {"id": "q_1", "questionType": "single_choice_with_reasoning", "questionText": "Is the sky blue?"}},
      {"rev": 1, "data": {"id": "q_2", "questionType": "single_choice_with_reasoning", "questionText": "Is 2+2=5?"}}
    ],
    "answers": {
      "q_1": {"choice": "yes", "reasoning": "Rayleigh scattering."},
      "q_2": {"choice": "yes", "reasoning": "Big Brother says so."}
    }
  }
]`

type judgeFunc func(ctx context.Context, prompt, model string) (qa.Result, error)

func (f judgeFunc) Evaluate(ctx context.Context, prompt, model string) (qa.Result, error) {
	return f(ctx, prompt, model)
}

// passFailJudge passes the sky question and fails everything else.
var passFailJudge = judgeFunc(func(_ context.Context, prompt, _ string) (qa.Result, error) {
	if strings.Contains(prompt, "sky") {
		return qa.Result{Verdict: schemas.VerdictPass, Reasoning: "correct"}, nil
	}
	return qa.Result{Verdict: schemas.VerdictFail, Reasoning: "incorrect"}, nil
})

type testServer struct {
	store   *store.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T, run Runner) testServer {
	t.Helper()
	st := store.NewMemory()
	if run == nil {
		run = runner.New(st, passFailJudge, runner.Config{Concurrency: 2})
	}
	s := &Server{Store: st, Runner: run, Results: results.NewService(st, nil)}
	return testServer{store: st, handler: s.Routes()}
}

func (ts testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed imports the fixture, creates one judge and assigns both questions to it.
func (ts testServer) seed(t *testing.T) schemas.Judge {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/submissions/import", importBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/judges", `{"name":"strict","prompt":"Grade for factual accuracy.","modelName":"gpt-4o-mini"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	j := decodeBody[schemas.Judge](t, rec)

	for _, q := range []string{"q_1", "q_2"} {
		rec = ts.do(t, http.MethodPost, "/assignments", `{"submissionId":"sub_1","questionId":"`+q+`","judgeId":`+itoa(j.ID)+`}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return j
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/evaluations/run", "").Code)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "judgebench_run_items_total")
}

func TestJudgeRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/judges", `{"name":"strict","prompt":"Be strict."}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	j := decodeBody[schemas.Judge](t, rec)
	assert.True(t, j.Active)

	rec = ts.do(t, http.MethodPost, "/judges", `{"name":"strict","prompt":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/judges", `{"name":"","prompt":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/judges", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/judges/"+itoa(j.ID), `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[schemas.Judge](t, rec).Active)

	rec = ts.do(t, http.MethodGet, "/judges", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]schemas.Judge](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/judges/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/judges/999", "").Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/judges/"+itoa(j.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/judges/"+itoa(j.ID), "").Code)
}

func TestSubmissionRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/submissions/import", importBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imported":1}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/submissions/sub_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sub := decodeBody[schemas.Submission](t, rec)
	assert.Len(t, sub.Questions, 2)
	assert.Equal(t, "queue_1", sub.QueueID)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/submissions/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/submissions/import", `[{"questions":[]}]`).Code)

	rec = ts.do(t, http.MethodDelete, "/submissions/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())
}

func TestAssignmentRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	j := ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/assignments", `{"submissionId":"sub_1","questionId":"q_1","judgeId":`+itoa(j.ID)+`}`)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate triple returns the existing row")
	assert.Equal(t, int64(1), decodeBody[schemas.Assignment](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/assignments", `{"submissionId":"sub_1","questionId":"q_9","judgeId":`+itoa(j.ID)+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/assignments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]schemas.Assignment](t, rec), 2)

	rec = ts.do(t, http.MethodDelete, "/assignments/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestRunAndQuery(t *testing.T) {
	ts := newTestServer(t, nil)
	j := ts.seed(t)

	rec := ts.do(t, http.MethodPost, "/evaluations/run", `{"queueId":"queue_1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decodeBody[schemas.RunSummary](t, rec)
	assert.Equal(t, 2, sum.Planned)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 0, sum.Failed)

	rec = ts.do(t, http.MethodGet, "/evaluations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[schemas.EvaluationPage](t, rec)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, schemas.Summary{Total: 2, Pass: 1, PassRatePct: 50}, page.Summary)

	rec = ts.do(t, http.MethodGet, "/evaluations?verdict=pass&judgeId="+itoa(j.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[schemas.EvaluationPage](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "q_1", page.Items[0].QuestionID)
	assert.Equal(t, schemas.Summary{Total: 1, Pass: 1, PassRatePct: 100}, page.Summary)

	rec = ts.do(t, http.MethodGet, "/evaluations?questionId=q_1,q_2&verdict=fail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[schemas.EvaluationPage](t, rec).Items, 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/evaluations?verdict=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/evaluations?judgeId=x", "").Code)

	rec = ts.do(t, http.MethodGet, "/evaluations/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeBody[schemas.Breakdown](t, rec)
	require.Len(t, b.ByJudge, 1)
	assert.Equal(t, "strict", b.ByJudge[0].JudgeName)
	assert.Equal(t, 50, b.ByJudge[0].PassRatePct)

	rec = ts.do(t, http.MethodGet, "/evaluations/export.csv?verdict=pass", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "evaluation-results-")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 2)

	// clearing assignments leaves results untouched
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/assignments/clear", "").Code)
	rec = ts.do(t, http.MethodGet, "/evaluations", "")
	assert.Len(t, decodeBody[schemas.EvaluationPage](t, rec).Items, 2)

	rec = ts.do(t, http.MethodPost, "/evaluations/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[schemas.RunSummary](t, rec).Planned)
}

func TestExportWithoutStorage(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/evaluations/export", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenRunner struct{}

func (brokenRunner) RunEvaluations(context.Context, schemas.RunScope) (schemas.RunSummary, error) {
	return schemas.RunSummary{}, &runner.ResolutionError{Err: errors.New("database unavailable")}
}

func TestRunResolutionFailure(t *testing.T) {
	ts := newTestServer(t, brokenRunner{})
	rec := ts.do(t, http.MethodPost, "/evaluations/run", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unavailable")
}

func TestParseFilters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/evaluations?judgeId=1&judgeId=2,3&verdict=PASS&submissionId=a,%20b&questionId=", nil)
	f, err := ParseFilters(req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, f.JudgeIDs)
	assert.Equal(t, []schemas.Verdict{schemas.VerdictPass}, f.Verdicts)
	assert.Equal(t, []string{"a", "b"}, f.SubmissionIDs)
	assert.Empty(t, f.QuestionIDs)
}
