package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judgebench/internal/apperr"
	"judgebench/internal/db"
	"judgebench/internal/schemas"
	"judgebench/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pg := testutil.NewPGContainerWithCleanup(ctx, t)

	dbx, err := db.Open(ctx, db.PoolConfig{DSN: pg.ConnString, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })

	runStoreContract(t, func(t *testing.T) Store {
		_, err := dbx.ExecContext(ctx,
			`truncate evaluations, assignments, answers, questions, submissions, judges restart identity cascade`)
		require.NoError(t, err)
		return NewPostgres(dbx)
	})
}

func TestPostgresStore_UpdateJudgeLockErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	pg := testutil.NewPGContainerWithCleanup(ctx, t)

	dbx, err := db.Open(ctx, db.PoolConfig{DSN: pg.ConnString, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })

	s := NewPostgres(dbx)
	j, err := s.CreateJudge(ctx, schemas.CreateJudgeRequest{Name: "locked", Prompt: "p"})
	require.NoError(t, err)

	holder, err := dbx.BeginTxx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Rollback() })
	_, err = holder.ExecContext(ctx, `select id from judges where id=$1 for update`, j.ID)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	prompt := "changed"
	_, err = s.UpdateJudge(short, j.ID, schemas.UpdateJudgeRequest{Prompt: &prompt})
	require.Error(t, err)
	assert.ErrorContains(t, err, "get judge")
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
}

func TestEvaluationWhere(t *testing.T) {
	where, args := evaluationWhere(schemas.EvaluationFilters{
		JudgeIDs:      []int64{7},
		Verdicts:      []schemas.Verdict{schemas.VerdictPass, schemas.VerdictFail},
		QuestionIDs:   []string{"q_1"},
		SubmissionIDs: []string{"sub_1", "sub_2"},
	})
	assert.Equal(t, " where judge_id = any($1) and verdict = any($2) and question_id = any($3) and submission_id = any($4)", where)
	require.Len(t, args, 4)
	assert.Equal(t, []string{"pass", "fail"}, args[1])

	where, args = evaluationWhere(schemas.EvaluationFilters{QuestionIDs: []string{"q_1"}})
	assert.Equal(t, " where question_id = any($1)", where)
	assert.Len(t, args, 1)

	where, args = evaluationWhere(schemas.EvaluationFilters{})
	assert.Empty(t, where)
	assert.Nil(t, args)
}
