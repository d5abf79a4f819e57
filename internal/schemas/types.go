package schemas

import (
	"encoding/json"
	"math"
	"time"
)

type Verdict string

const (
	VerdictPass         Verdict = "pass"
	VerdictFail         Verdict = "fail"
	VerdictInconclusive Verdict = "inconclusive"
)

// Verdicts lists the recognized verdict labels.
var Verdicts = []Verdict{VerdictPass, VerdictFail, VerdictInconclusive}

func (v Verdict) Valid() bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictInconclusive:
		return true
	}
	return false
}

type Judge struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	ModelName string    `json:"modelName"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type Submission struct {
	ID        string     `json:"id"`
	QueueID   string     `json:"queueId,omitempty"`
	TaskID    string     `json:"taskId,omitempty"`
	CreatedAt *int64     `json:"createdAt,omitempty"` // epoch ms from the ingest payload
	Questions []Question `json:"questions,omitempty"`
	Answers   []Answer   `json:"answers,omitempty"`
}

type Question struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submissionId"`
	Rev          int    `json:"rev"`
	QuestionType string `json:"questionType"`
	QuestionText string `json:"questionText"`
}

type Answer struct {
	SubmissionID string          `json:"submissionId"`
	QuestionID   string          `json:"questionId"`
	Choice       string          `json:"choice"`
	Reasoning    string          `json:"reasoning"`
	Extra        json.RawMessage `json:"extra,omitempty"`
}

type Assignment struct {
	ID           int64  `json:"id"`
	SubmissionID string `json:"submissionId"`
	QuestionID   string `json:"questionId"`
	JudgeID      int64  `json:"judgeId"`
}

type Evaluation struct {
	ID           int64     `json:"id"`
	SubmissionID string    `json:"submissionId"`
	QuestionID   string    `json:"questionId"`
	JudgeID      int64     `json:"judgeId"`
	Verdict      Verdict   `json:"verdict"`
	Reasoning    string    `json:"reasoning"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RunScope selects the assignments of a run. An empty QueueID means all.
type RunScope struct {
	QueueID string `json:"queueId,omitempty"`
}

type RunSummary struct {
	RunID     string   `json:"runId,omitempty"`
	Planned   int      `json:"planned"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// EvaluationFilters are AND-ed across fields; values within one field are OR-ed.
type EvaluationFilters struct {
	JudgeIDs      []int64   `json:"judgeIds,omitempty"`
	Verdicts      []Verdict `json:"verdicts,omitempty"`
	QuestionIDs   []string  `json:"questionIds,omitempty"`
	SubmissionIDs []string  `json:"submissionIds,omitempty"`
}

type Summary struct {
	Total       int `json:"total"`
	Pass        int `json:"pass"`
	PassRatePct int `json:"passRatePct"`
}

// PassRatePct is round(pass/total*100), and 0 when total is 0.
func PassRatePct(pass, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(pass) / float64(total) * 100))
}

func NewSummary(total, pass int) Summary {
	return Summary{Total: total, Pass: pass, PassRatePct: PassRatePct(pass, total)}
}

type EvaluationPage struct {
	Summary Summary      `json:"summary"`
	Items   []Evaluation `json:"items"`
}

type JudgeStats struct {
	JudgeID     int64  `json:"judgeId"`
	JudgeName   string `json:"judgeName,omitempty"`
	Total       int    `json:"total"`
	Pass        int    `json:"pass"`
	PassRatePct int    `json:"passRatePct"`
}

type VerdictCount struct {
	Verdict    Verdict `json:"verdict"`
	Count      int     `json:"count"`
	Percentage int     `json:"percentage"`
}

type Breakdown struct {
	Summary  Summary        `json:"summary"`
	ByJudge  []JudgeStats   `json:"byJudge"`
	Verdicts []VerdictCount `json:"verdicts"`
}

// --- requests ---

type CreateJudgeRequest struct {
	Name      string `json:"name" yaml:"name"`
	Prompt    string `json:"prompt" yaml:"prompt"`
	ModelName string `json:"modelName" yaml:"modelName"`
	Active    *bool  `json:"active,omitempty" yaml:"active,omitempty"`
}

type UpdateJudgeRequest struct {
	Name      *string `json:"name,omitempty"`
	Prompt    *string `json:"prompt,omitempty"`
	ModelName *string `json:"modelName,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type CreateAssignmentRequest struct {
	SubmissionID string `json:"submissionId"`
	QuestionID   string `json:"questionId"`
	JudgeID      int64  `json:"judgeId"`
}

// IngestSubmission is one element of the submissions import payload.
type IngestSubmission struct {
	ID             string `json:"id"`
	QueueID        string `json:"queueId,omitempty"`
	LabelingTaskID string `json:"labelingTaskId,omitempty"`
	CreatedAt      *int64 `json:"createdAt,omitempty"`
	Questions      []struct {
		Rev  int `json:"rev"`
		Data struct {
			ID           string `json:"id"`
			QuestionType string `json:"questionType"`
			QuestionText string `json:"questionText"`
		} `json:"data"`
	} `json:"questions"`
	Answers map[string]json.RawMessage `json:"answers"`
}
