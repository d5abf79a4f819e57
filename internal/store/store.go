package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"judgebench/internal/apperr"
	"judgebench/internal/schemas"
)

type Judges interface {
	ListJudges(ctx context.Context) ([]schemas.Judge, error)
	GetJudge(ctx context.Context, id int64) (schemas.Judge, error)
	CreateJudge(ctx context.Context, req schemas.CreateJudgeRequest) (schemas.Judge, error)
	UpdateJudge(ctx context.Context, id int64, req schemas.UpdateJudgeRequest) (schemas.Judge, error)
	DeleteJudge(ctx context.Context, id int64) error
}

type Submissions interface {
	// ImportSubmissions replaces any submission with the same id, including its
	// questions and answers, and returns the number imported.
	ImportSubmissions(ctx context.Context, subs []schemas.Submission) (int, error)
	ListSubmissions(ctx context.Context) ([]schemas.Submission, error)
	GetSubmission(ctx context.Context, id string) (schemas.Submission, error)
	ClearSubmissions(ctx context.Context) (int, error)
	GetAnswerContext(ctx context.Context, submissionID, questionID string) (schemas.Question, schemas.Answer, error)
}

type Assignments interface {
	// CreateAssignment is a no-op for an existing (submission, question, judge)
	// triple; it then returns the existing row and created=false.
	CreateAssignment(ctx context.Context, req schemas.CreateAssignmentRequest) (a schemas.Assignment, created bool, err error)
	ListAssignments(ctx context.Context) ([]schemas.Assignment, error)
	ClearAssignments(ctx context.Context) (int, error)
	// ResolvePending returns every assignment in scope. Previously evaluated
	// assignments are included: each run evaluates again.
	ResolvePending(ctx context.Context, scope schemas.RunScope) ([]schemas.Assignment, error)
}

type Evaluations interface {
	// SaveEvaluation inserts a new row. Existing rows are never updated.
	SaveEvaluation(ctx context.Context, e schemas.Evaluation) (int64, error)
	QueryEvaluations(ctx context.Context, f schemas.EvaluationFilters) ([]schemas.Evaluation, error)
	SummarizeEvaluations(ctx context.Context, f schemas.EvaluationFilters) (schemas.Summary, error)
}

type Store interface {
	Judges
	Submissions
	Assignments
	Evaluations
	Ping(ctx context.Context) error
}

type Type string

const (
	Postgres Type = "postgres"
	Memory   Type = "memory"
)

// FromIngest converts one element of the import payload.
func FromIngest(in schemas.IngestSubmission) (schemas.Submission, error) {
	if strings.TrimSpace(in.ID) == "" {
		return schemas.Submission{}, apperr.NewValidation("submission id is required")
	}
	sub := schemas.Submission{
		ID:        in.ID,
		QueueID:   in.QueueID,
		TaskID:    in.LabelingTaskID,
		CreatedAt: in.CreatedAt,
	}
	seen := map[string]bool{}
	order := map[string]int{}
	for i, q := range in.Questions {
		if q.Data.ID == "" {
			return schemas.Submission{}, apperr.NewValidation(fmt.Sprintf("submission %s: question %d has no id", in.ID, i))
		}
		if seen[q.Data.ID] {
			return schemas.Submission{}, apperr.NewValidation(fmt.Sprintf("submission %s: duplicate question %s", in.ID, q.Data.ID))
		}
		seen[q.Data.ID] = true
		order[q.Data.ID] = i
		rev := q.Rev
		if rev == 0 {
			rev = 1
		}
		sub.Questions = append(sub.Questions, schemas.Question{
			ID:           q.Data.ID,
			SubmissionID: in.ID,
			Rev:          rev,
			QuestionType: q.Data.QuestionType,
			QuestionText: q.Data.QuestionText,
		})
	}
	for qid, raw := range in.Answers {
		if !seen[qid] {
			return schemas.Submission{}, apperr.NewValidation(fmt.Sprintf("submission %s: answer for unknown question %s", in.ID, qid))
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return schemas.Submission{}, apperr.NewValidationWrap(fmt.Sprintf("submission %s: answer %s", in.ID, qid), err)
		}
		sub.Answers = append(sub.Answers, schemas.Answer{
			SubmissionID: in.ID,
			QuestionID:   qid,
			Choice:       stringField(fields, "choice"),
			Reasoning:    stringField(fields, "reasoning"),
			Extra:        raw,
		})
	}
	sort.Slice(sub.Answers, func(i, j int) bool {
		return order[sub.Answers[i].QuestionID] < order[sub.Answers[j].QuestionID]
	})
	return sub, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func validateJudge(name, prompt string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.NewValidation("judge name is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return apperr.NewValidation("judge prompt is required")
	}
	return nil
}

func validateAssignment(req schemas.CreateAssignmentRequest) error {
	if req.SubmissionID == "" || req.QuestionID == "" || req.JudgeID == 0 {
		return apperr.NewValidation("submissionId, questionId and judgeId are required")
	}
	return nil
}

func validateEvaluation(e schemas.Evaluation) error {
	if !e.Verdict.Valid() {
		return apperr.NewValidation(fmt.Sprintf("invalid verdict %q", e.Verdict))
	}
	return nil
}
