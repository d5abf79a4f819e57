package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"judgebench/internal/apperr"
	"judgebench/internal/db"
	"judgebench/internal/schemas"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type PostgresStore struct {
	DB *sqlx.DB
}

func NewPostgres(dbx *sqlx.DB) *PostgresStore {
	return &PostgresStore{DB: dbx}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// --- judges ---

func (s *PostgresStore) ListJudges(ctx context.Context) ([]schemas.Judge, error) {
	var rows []db.Judge
	if err := s.DB.SelectContext(ctx, &rows, `select * from judges order by created_at desc, id desc`); err != nil {
		return nil, fmt.Errorf("list judges: %w", err)
	}
	out := make([]schemas.Judge, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Schema())
	}
	return out, nil
}

func (s *PostgresStore) GetJudge(ctx context.Context, id int64) (schemas.Judge, error) {
	var row db.Judge
	if err := s.DB.GetContext(ctx, &row, `select * from judges where id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schemas.Judge{}, fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
		}
		return schemas.Judge{}, fmt.Errorf("get judge %d: %w", id, err)
	}
	return row.Schema(), nil
}

func (s *PostgresStore) CreateJudge(ctx context.Context, req schemas.CreateJudgeRequest) (schemas.Judge, error) {
	if err := validateJudge(req.Name, req.Prompt); err != nil {
		return schemas.Judge{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	var row db.Judge
	err := s.DB.GetContext(ctx, &row,
		`insert into judges(name, prompt, model_name, active) values($1,$2,$3,$4) returning *`,
		req.Name, req.Prompt, nullString(req.ModelName), active)
	if err != nil {
		return schemas.Judge{}, mapPgError(fmt.Sprintf("create judge %q", req.Name), err)
	}
	return row.Schema(), nil
}

func (s *PostgresStore) UpdateJudge(ctx context.Context, id int64, req schemas.UpdateJudgeRequest) (schemas.Judge, error) {
	var out schemas.Judge
	err := db.WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		var row db.Judge
		if err := tx.GetContext(ctx, &row, `select * from judges where id=$1 for update`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
			}
			return fmt.Errorf("get judge %d: %w", id, err)
		}
		j := applyJudgeUpdate(row.Schema(), req)
		if err := validateJudge(j.Name, j.Prompt); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &row,
			`update judges set name=$2, prompt=$3, model_name=$4, active=$5 where id=$1 returning *`,
			id, j.Name, j.Prompt, nullString(j.ModelName), j.Active); err != nil {
			return mapPgError(fmt.Sprintf("update judge %d", id), err)
		}
		out = row.Schema()
		return nil
	})
	return out, err
}

func (s *PostgresStore) DeleteJudge(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `delete from judges where id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete judge %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// --- submissions ---

func (s *PostgresStore) ImportSubmissions(ctx context.Context, subs []schemas.Submission) (int, error) {
	err := db.WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		for _, sub := range subs {
			// cascades to questions, answers and assignments of the old version
			if _, err := tx.ExecContext(ctx, `delete from submissions where id=$1`, sub.ID); err != nil {
				return fmt.Errorf("replace submission %s: %w", sub.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`insert into submissions(id, queue_id, task_id, created_at) values($1,$2,$3,$4)`,
				sub.ID, nullString(sub.QueueID), nullString(sub.TaskID), sub.CreatedAt); err != nil {
				return mapPgError(fmt.Sprintf("insert submission %s", sub.ID), err)
			}
			for _, q := range sub.Questions {
				if _, err := tx.ExecContext(ctx,
					`insert into questions(id, submission_id, rev, question_type, question_text) values($1,$2,$3,$4,$5)`,
					q.ID, sub.ID, q.Rev, q.QuestionType, q.QuestionText); err != nil {
					return mapPgError(fmt.Sprintf("insert question %s/%s", sub.ID, q.ID), err)
				}
			}
			for _, a := range sub.Answers {
				var extra any
				if len(a.Extra) > 0 {
					extra = []byte(a.Extra)
				}
				if _, err := tx.ExecContext(ctx,
					`insert into answers(submission_id, question_id, choice, reasoning, extra) values($1,$2,$3,$4,$5)`,
					sub.ID, a.QuestionID, a.Choice, a.Reasoning, extra); err != nil {
					return mapPgError(fmt.Sprintf("insert answer %s/%s", sub.ID, a.QuestionID), err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context) ([]schemas.Submission, error) {
	var rows []db.Submission
	if err := s.DB.SelectContext(ctx, &rows, `select * from submissions order by id`); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]schemas.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Schema())
	}
	return out, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (schemas.Submission, error) {
	var row db.Submission
	if err := s.DB.GetContext(ctx, &row, `select * from submissions where id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schemas.Submission{}, fmt.Errorf("submission %s: %w", id, apperr.ErrNotFound)
		}
		return schemas.Submission{}, fmt.Errorf("get submission %s: %w", id, err)
	}
	sub := row.Schema()

	var qs []db.Question
	if err := s.DB.SelectContext(ctx, &qs, `select * from questions where submission_id=$1 order by id`, id); err != nil {
		return schemas.Submission{}, fmt.Errorf("questions of %s: %w", id, err)
	}
	for _, q := range qs {
		sub.Questions = append(sub.Questions, q.Schema())
	}
	var as []db.Answer
	if err := s.DB.SelectContext(ctx, &as, `select * from answers where submission_id=$1 order by question_id`, id); err != nil {
		return schemas.Submission{}, fmt.Errorf("answers of %s: %w", id, err)
	}
	for _, a := range as {
		sub.Answers = append(sub.Answers, a.Schema())
	}
	return sub, nil
}

func (s *PostgresStore) ClearSubmissions(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `delete from submissions`)
	if err != nil {
		return 0, fmt.Errorf("clear submissions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) GetAnswerContext(ctx context.Context, submissionID, questionID string) (schemas.Question, schemas.Answer, error) {
	var q db.Question
	if err := s.DB.GetContext(ctx, &q, `select * from questions where submission_id=$1 and id=$2`, submissionID, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schemas.Question{}, schemas.Answer{}, fmt.Errorf("question %s/%s: %w", submissionID, questionID, apperr.ErrNotFound)
		}
		return schemas.Question{}, schemas.Answer{}, fmt.Errorf("get question %s/%s: %w", submissionID, questionID, err)
	}
	var a db.Answer
	if err := s.DB.GetContext(ctx, &a, `select * from answers where submission_id=$1 and question_id=$2`, submissionID, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schemas.Question{}, schemas.Answer{}, fmt.Errorf("answer %s/%s: %w", submissionID, questionID, apperr.ErrNotFound)
		}
		return schemas.Question{}, schemas.Answer{}, fmt.Errorf("get answer %s/%s: %w", submissionID, questionID, err)
	}
	return q.Schema(), a.Schema(), nil
}

// --- assignments ---

func (s *PostgresStore) CreateAssignment(ctx context.Context, req schemas.CreateAssignmentRequest) (schemas.Assignment, bool, error) {
	if err := validateAssignment(req); err != nil {
		return schemas.Assignment{}, false, err
	}
	var row db.Assignment
	err := s.DB.GetContext(ctx, &row,
		`insert into assignments(submission_id, question_id, judge_id) values($1,$2,$3)
		 on conflict on constraint assignments_triple_key do nothing
		 returning *`,
		req.SubmissionID, req.QuestionID, req.JudgeID)
	switch {
	case err == nil:
		return row.Schema(), true, nil
	case errors.Is(err, sql.ErrNoRows):
		// conflict: the triple already exists
		if err := s.DB.GetContext(ctx, &row,
			`select * from assignments where submission_id=$1 and question_id=$2 and judge_id=$3`,
			req.SubmissionID, req.QuestionID, req.JudgeID); err != nil {
			return schemas.Assignment{}, false, fmt.Errorf("load existing assignment: %w", err)
		}
		return row.Schema(), false, nil
	default:
		return schemas.Assignment{}, false, mapPgError("create assignment", err)
	}
}

func (s *PostgresStore) ListAssignments(ctx context.Context) ([]schemas.Assignment, error) {
	var rows []db.Assignment
	if err := s.DB.SelectContext(ctx, &rows, `select * from assignments order by id`); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignmentsSchema(rows), nil
}

func (s *PostgresStore) ClearAssignments(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `delete from assignments`)
	if err != nil {
		return 0, fmt.Errorf("clear assignments: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) ResolvePending(ctx context.Context, scope schemas.RunScope) ([]schemas.Assignment, error) {
	var rows []db.Assignment
	var err error
	if scope.QueueID == "" {
		err = s.DB.SelectContext(ctx, &rows, `select * from assignments order by id`)
	} else {
		err = s.DB.SelectContext(ctx, &rows,
			`select a.* from assignments a
			 join submissions s on s.id = a.submission_id
			 where s.queue_id = $1
			 order by a.id`, scope.QueueID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve assignments: %w", err)
	}
	return assignmentsSchema(rows), nil
}

// --- evaluations ---

func (s *PostgresStore) SaveEvaluation(ctx context.Context, e schemas.Evaluation) (int64, error) {
	if err := validateEvaluation(e); err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.DB.GetContext(ctx, &id,
		`insert into evaluations(submission_id, question_id, judge_id, verdict, reasoning, created_at)
		 values($1,$2,$3,$4,$5,$6) returning id`,
		e.SubmissionID, e.QuestionID, e.JudgeID, string(e.Verdict), e.Reasoning, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("save evaluation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) QueryEvaluations(ctx context.Context, f schemas.EvaluationFilters) ([]schemas.Evaluation, error) {
	where, args := evaluationWhere(f)
	var rows []db.Evaluation
	q := `select * from evaluations` + where + ` order by created_at desc, id desc`
	if err := s.DB.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	out := make([]schemas.Evaluation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Schema())
	}
	return out, nil
}

func (s *PostgresStore) SummarizeEvaluations(ctx context.Context, f schemas.EvaluationFilters) (schemas.Summary, error) {
	where, args := evaluationWhere(f)
	var counts struct {
		Total int `db:"total"`
		Pass  int `db:"pass"`
	}
	q := `select count(*) as total, count(*) filter (where verdict = 'pass') as pass from evaluations` + where
	if err := s.DB.GetContext(ctx, &counts, q, args...); err != nil {
		return schemas.Summary{}, fmt.Errorf("summarize evaluations: %w", err)
	}
	return schemas.NewSummary(counts.Total, counts.Pass), nil
}

func evaluationWhere(f schemas.EvaluationFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = any($%d)", col, len(args)))
	}
	if len(f.JudgeIDs) > 0 {
		add("judge_id", f.JudgeIDs)
	}
	if len(f.Verdicts) > 0 {
		vs := make([]string, len(f.Verdicts))
		for i, v := range f.Verdicts {
			vs[i] = string(v)
		}
		add("verdict", vs)
	}
	if len(f.QuestionIDs) > 0 {
		add("question_id", f.QuestionIDs)
	}
	if len(f.SubmissionIDs) > 0 {
		add("submission_id", f.SubmissionIDs)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

// --- helpers ---

func assignmentsSchema(rows []db.Assignment) []schemas.Assignment {
	out := make([]schemas.Assignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Schema())
	}
	return out
}

func applyJudgeUpdate(j schemas.Judge, req schemas.UpdateJudgeRequest) schemas.Judge {
	if req.Name != nil {
		j.Name = *req.Name
	}
	if req.Prompt != nil {
		j.Prompt = *req.Prompt
	}
	if req.ModelName != nil {
		j.ModelName = *req.ModelName
	}
	if req.Active != nil {
		j.Active = *req.Active
	}
	return j
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
		case pgForeignKeyViolation:
			return apperr.NewValidationWrap(op+": referenced row does not exist", err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
