package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"judgebench/internal/schemas"
)

type Judge struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	Prompt    string         `db:"prompt"`
	ModelName sql.NullString `db:"model_name"`
	Active    bool           `db:"active"`
	CreatedAt time.Time      `db:"created_at"`
}

func (j Judge) Schema() schemas.Judge {
	return schemas.Judge{
		ID:        j.ID,
		Name:      j.Name,
		Prompt:    j.Prompt,
		ModelName: j.ModelName.String,
		Active:    j.Active,
		CreatedAt: j.CreatedAt,
	}
}

type Submission struct {
	ID        string         `db:"id"`
	QueueID   sql.NullString `db:"queue_id"`
	TaskID    sql.NullString `db:"task_id"`
	CreatedAt sql.NullInt64  `db:"created_at"`
}

func (s Submission) Schema() schemas.Submission {
	out := schemas.Submission{ID: s.ID, QueueID: s.QueueID.String, TaskID: s.TaskID.String}
	if s.CreatedAt.Valid {
		v := s.CreatedAt.Int64
		out.CreatedAt = &v
	}
	return out
}

type Question struct {
	ID           string `db:"id"`
	SubmissionID string `db:"submission_id"`
	Rev          int    `db:"rev"`
	QuestionType string `db:"question_type"`
	QuestionText string `db:"question_text"`
}

func (q Question) Schema() schemas.Question {
	return schemas.Question{
		ID:           q.ID,
		SubmissionID: q.SubmissionID,
		Rev:          q.Rev,
		QuestionType: q.QuestionType,
		QuestionText: q.QuestionText,
	}
}

type Answer struct {
	SubmissionID string `db:"submission_id"`
	QuestionID   string `db:"question_id"`
	Choice       string `db:"choice"`
	Reasoning    string `db:"reasoning"`
	Extra        []byte `db:"extra"`
}

func (a Answer) Schema() schemas.Answer {
	out := schemas.Answer{
		SubmissionID: a.SubmissionID,
		QuestionID:   a.QuestionID,
		Choice:       a.Choice,
		Reasoning:    a.Reasoning,
	}
	if len(a.Extra) > 0 {
		out.Extra = json.RawMessage(a.Extra)
	}
	return out
}

type Assignment struct {
	ID           int64  `db:"id"`
	SubmissionID string `db:"submission_id"`
	QuestionID   string `db:"question_id"`
	JudgeID      int64  `db:"judge_id"`
}

func (a Assignment) Schema() schemas.Assignment {
	return schemas.Assignment{ID: a.ID, SubmissionID: a.SubmissionID, QuestionID: a.QuestionID, JudgeID: a.JudgeID}
}

type Evaluation struct {
	ID           int64     `db:"id"`
	SubmissionID string    `db:"submission_id"`
	QuestionID   string    `db:"question_id"`
	JudgeID      int64     `db:"judge_id"`
	Verdict      string    `db:"verdict"`
	Reasoning    string    `db:"reasoning"`
	CreatedAt    time.Time `db:"created_at"`
}

func (e Evaluation) Schema() schemas.Evaluation {
	return schemas.Evaluation{
		ID:           e.ID,
		SubmissionID: e.SubmissionID,
		QuestionID:   e.QuestionID,
		JudgeID:      e.JudgeID,
		Verdict:      schemas.Verdict(e.Verdict),
		Reasoning:    e.Reasoning,
		CreatedAt:    e.CreatedAt,
	}
}
