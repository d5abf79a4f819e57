package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"judgebench/internal/qa"
	"judgebench/internal/schemas"
)

const (
	DefaultConcurrency = 5
	// maxErrorDetails caps the error strings carried by a RunSummary.
	maxErrorDetails = 10
)

// Repository is the part of the store a run needs.
type Repository interface {
	ResolvePending(ctx context.Context, scope schemas.RunScope) ([]schemas.Assignment, error)
	GetJudge(ctx context.Context, id int64) (schemas.Judge, error)
	GetAnswerContext(ctx context.Context, submissionID, questionID string) (schemas.Question, schemas.Answer, error)
	SaveEvaluation(ctx context.Context, e schemas.Evaluation) (int64, error)
}

// ResolutionError means the work set of a run could not be determined. No
// item was attempted.
type ResolutionError struct {
	Scope schemas.RunScope
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Scope.QueueID != "" {
		return fmt.Sprintf("resolve assignments for queue %s: %v", e.Scope.QueueID, e.Err)
	}
	return fmt.Sprintf("resolve assignments: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type Config struct {
	Concurrency int
	Retry       RetryConfig
}

type Orchestrator struct {
	repo  Repository
	judge qa.Judge
	cfg   Config
	now   func() time.Time
}

func New(repo Repository, judge qa.Judge, cfg Config) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		repo:  repo,
		judge: judge,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RunEvaluations evaluates every assignment in scope once and returns when all
// of them have either been persisted or counted as failed.
//
// Work is detached from ctx cancellation: once resolved, every planned item is
// attempted and persisted even if the caller stops waiting.
func (o *Orchestrator) RunEvaluations(ctx context.Context, scope schemas.RunScope) (schemas.RunSummary, error) {
	runID := uuid.NewString()
	log := clog.FromContext(ctx).With("run_id", runID)
	if scope.QueueID != "" {
		log = log.With("queue_id", scope.QueueID)
	}
	ctx = clog.WithLogger(ctx, log)

	items, err := o.repo.ResolvePending(ctx, scope)
	if err != nil {
		runsTotal.WithLabelValues("resolution_failed").Inc()
		return schemas.RunSummary{}, &ResolutionError{Scope: scope, Err: err}
	}
	summary := schemas.RunSummary{RunID: runID, Planned: len(items)}
	if len(items) == 0 {
		runsTotal.WithLabelValues("empty").Inc()
		log.Infof("no assignments to evaluate")
		return summary, nil
	}
	log.Infof("evaluating %d assignments with concurrency %d", len(items), o.cfg.Concurrency)

	work := context.WithoutCancel(ctx)
	var (
		completed, failed atomic.Int64
		mu                sync.Mutex
		details           []string
	)
	fail := func(a schemas.Assignment, err error) {
		failed.Add(1)
		itemsTotal.WithLabelValues("failed").Inc()
		clog.FromContext(work).With("assignment_id", a.ID).
			With("judge_id", a.JudgeID).
			With("submission_id", a.SubmissionID).
			With("question_id", a.QuestionID).
			Errorf("evaluation failed: %v", err)
		mu.Lock()
		if len(details) < maxErrorDetails {
			details = append(details, fmt.Sprintf("assignment %d: %v", a.ID, err))
		}
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, a := range items {
		g.Go(func() error {
			inFlight.Inc()
			defer inFlight.Dec()
			if err := o.safeEvaluate(work, a); err != nil {
				fail(a, err)
				return nil
			}
			completed.Add(1)
			itemsTotal.WithLabelValues("completed").Inc()
			return nil
		})
	}
	_ = g.Wait()

	summary.Completed = int(completed.Load())
	summary.Failed = int(failed.Load())
	summary.Errors = details
	runsTotal.WithLabelValues("finished").Inc()
	log.Infof("run finished: planned=%d completed=%d failed=%d", summary.Planned, summary.Completed, summary.Failed)
	return summary, nil
}

// safeEvaluate turns a panic in the judge or store into an item failure.
func (o *Orchestrator) safeEvaluate(ctx context.Context, a schemas.Assignment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.evaluate(ctx, a)
}

// evaluate runs one assignment end to end. A nil return means a row was persisted.
func (o *Orchestrator) evaluate(ctx context.Context, a schemas.Assignment) error {
	judge, err := o.repo.GetJudge(ctx, a.JudgeID)
	if err != nil {
		return fmt.Errorf("load judge: %w", err)
	}
	if !judge.Active {
		return fmt.Errorf("judge %d (%s) is inactive", judge.ID, judge.Name)
	}
	question, answer, err := o.repo.GetAnswerContext(ctx, a.SubmissionID, a.QuestionID)
	if err != nil {
		return fmt.Errorf("load answer: %w", err)
	}

	prompt := qa.CompilePrompt(judge.Prompt, question.QuestionText, answer)
	start := time.Now()
	res, err := withRetry(ctx, o.cfg.Retry, qa.IsCallFailed, func() (qa.Result, error) {
		return o.judge.Evaluate(ctx, prompt, judge.ModelName)
	})
	judgeCallSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if !res.Verdict.Valid() {
		res.Verdict = schemas.VerdictInconclusive
	}

	if _, err := o.repo.SaveEvaluation(ctx, schemas.Evaluation{
		SubmissionID: a.SubmissionID,
		QuestionID:   a.QuestionID,
		JudgeID:      a.JudgeID,
		Verdict:      res.Verdict,
		Reasoning:    res.Reasoning,
		CreatedAt:    o.now(),
	}); err != nil {
		return fmt.Errorf("persist evaluation: %w", err)
	}
	verdictsTotal.WithLabelValues(string(res.Verdict)).Inc()
	return nil
}
