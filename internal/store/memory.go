package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"judgebench/internal/apperr"
	"judgebench/internal/schemas"
)

type triple struct {
	submissionID string
	questionID   string
	judgeID      int64
}

// MemoryStore keeps everything in process memory. It follows the same rules as
// the Postgres store and is used for local runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	judges      map[int64]schemas.Judge
	submissions map[string]schemas.Submission
	assignments map[int64]schemas.Assignment
	byTriple    map[triple]int64
	evaluations []schemas.Evaluation

	nextJudgeID      int64
	nextAssignmentID int64
	nextEvaluationID int64

	now func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		judges:      map[int64]schemas.Judge{},
		submissions: map[string]schemas.Submission{},
		assignments: map[int64]schemas.Assignment{},
		byTriple:    map[triple]int64{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// --- judges ---

func (s *MemoryStore) ListJudges(context.Context) ([]schemas.Judge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Judge, 0, len(s.judges))
	for _, j := range s.judges {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetJudge(_ context.Context, id int64) (schemas.Judge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.judges[id]
	if !ok {
		return schemas.Judge{}, fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
	}
	return j, nil
}

func (s *MemoryStore) CreateJudge(_ context.Context, req schemas.CreateJudgeRequest) (schemas.Judge, error) {
	if err := validateJudge(req.Name, req.Prompt); err != nil {
		return schemas.Judge{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(req.Name, 0) {
		return schemas.Judge{}, fmt.Errorf("create judge %q: %w", req.Name, apperr.ErrConflict)
	}
	s.nextJudgeID++
	j := schemas.Judge{
		ID:        s.nextJudgeID,
		Name:      req.Name,
		Prompt:    req.Prompt,
		ModelName: req.ModelName,
		Active:    req.Active == nil || *req.Active,
		CreatedAt: s.now(),
	}
	s.judges[j.ID] = j
	return j, nil
}

func (s *MemoryStore) UpdateJudge(_ context.Context, id int64, req schemas.UpdateJudgeRequest) (schemas.Judge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.judges[id]
	if !ok {
		return schemas.Judge{}, fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
	}
	j = applyJudgeUpdate(j, req)
	if err := validateJudge(j.Name, j.Prompt); err != nil {
		return schemas.Judge{}, err
	}
	if s.nameTaken(j.Name, id) {
		return schemas.Judge{}, fmt.Errorf("update judge %d: %w", id, apperr.ErrConflict)
	}
	s.judges[id] = j
	return j, nil
}

func (s *MemoryStore) DeleteJudge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.judges[id]; !ok {
		return fmt.Errorf("judge %d: %w", id, apperr.ErrNotFound)
	}
	delete(s.judges, id)
	s.dropAssignments(func(a schemas.Assignment) bool { return a.JudgeID == id })
	return nil
}

func (s *MemoryStore) nameTaken(name string, except int64) bool {
	for id, j := range s.judges {
		if id != except && j.Name == name {
			return true
		}
	}
	return false
}

// --- submissions ---

func (s *MemoryStore) ImportSubmissions(_ context.Context, subs []schemas.Submission) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range subs {
		if _, ok := s.submissions[sub.ID]; ok {
			id := sub.ID
			s.dropAssignments(func(a schemas.Assignment) bool { return a.SubmissionID == id })
		}
		s.submissions[sub.ID] = cloneSubmission(sub)
	}
	return len(subs), nil
}

func (s *MemoryStore) ListSubmissions(context.Context) ([]schemas.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		sub.Questions, sub.Answers = nil, nil
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetSubmission(_ context.Context, id string) (schemas.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return schemas.Submission{}, fmt.Errorf("submission %s: %w", id, apperr.ErrNotFound)
	}
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) ClearSubmissions(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.submissions)
	s.submissions = map[string]schemas.Submission{}
	s.assignments = map[int64]schemas.Assignment{}
	s.byTriple = map[triple]int64{}
	return n, nil
}

func (s *MemoryStore) GetAnswerContext(_ context.Context, submissionID, questionID string) (schemas.Question, schemas.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(submissionID, questionID)
}

func (s *MemoryStore) lookup(submissionID, questionID string) (schemas.Question, schemas.Answer, error) {
	sub, ok := s.submissions[submissionID]
	if !ok {
		return schemas.Question{}, schemas.Answer{}, fmt.Errorf("question %s/%s: %w", submissionID, questionID, apperr.ErrNotFound)
	}
	qi := slices.IndexFunc(sub.Questions, func(q schemas.Question) bool { return q.ID == questionID })
	if qi < 0 {
		return schemas.Question{}, schemas.Answer{}, fmt.Errorf("question %s/%s: %w", submissionID, questionID, apperr.ErrNotFound)
	}
	ai := slices.IndexFunc(sub.Answers, func(a schemas.Answer) bool { return a.QuestionID == questionID })
	if ai < 0 {
		return sub.Questions[qi], schemas.Answer{}, fmt.Errorf("answer %s/%s: %w", submissionID, questionID, apperr.ErrNotFound)
	}
	return sub.Questions[qi], sub.Answers[ai], nil
}

// --- assignments ---

func (s *MemoryStore) CreateAssignment(_ context.Context, req schemas.CreateAssignmentRequest) (schemas.Assignment, bool, error) {
	if err := validateAssignment(req); err != nil {
		return schemas.Assignment{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := triple{req.SubmissionID, req.QuestionID, req.JudgeID}
	if id, ok := s.byTriple[key]; ok {
		return s.assignments[id], false, nil
	}
	if _, ok := s.judges[req.JudgeID]; !ok {
		return schemas.Assignment{}, false, apperr.NewValidation(fmt.Sprintf("create assignment: judge %d does not exist", req.JudgeID))
	}
	sub, ok := s.submissions[req.SubmissionID]
	if !ok || !slices.ContainsFunc(sub.Questions, func(q schemas.Question) bool { return q.ID == req.QuestionID }) {
		return schemas.Assignment{}, false, apperr.NewValidation(fmt.Sprintf("create assignment: question %s/%s does not exist", req.SubmissionID, req.QuestionID))
	}
	s.nextAssignmentID++
	a := schemas.Assignment{ID: s.nextAssignmentID, SubmissionID: req.SubmissionID, QuestionID: req.QuestionID, JudgeID: req.JudgeID}
	s.assignments[a.ID] = a
	s.byTriple[key] = a.ID
	return a, true, nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context) ([]schemas.Assignment, error) {
	return s.ResolvePending(ctx, schemas.RunScope{})
}

func (s *MemoryStore) ClearAssignments(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.assignments)
	s.assignments = map[int64]schemas.Assignment{}
	s.byTriple = map[triple]int64{}
	return n, nil
}

func (s *MemoryStore) ResolvePending(_ context.Context, scope schemas.RunScope) ([]schemas.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if scope.QueueID != "" && s.submissions[a.SubmissionID].QueueID != scope.QueueID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) dropAssignments(match func(schemas.Assignment) bool) {
	for id, a := range s.assignments {
		if match(a) {
			delete(s.assignments, id)
			delete(s.byTriple, triple{a.SubmissionID, a.QuestionID, a.JudgeID})
		}
	}
}

// --- evaluations ---

func (s *MemoryStore) SaveEvaluation(_ context.Context, e schemas.Evaluation) (int64, error) {
	if err := validateEvaluation(e); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvaluationID++
	e.ID = s.nextEvaluationID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.evaluations = append(s.evaluations, e)
	return e.ID, nil
}

func (s *MemoryStore) QueryEvaluations(_ context.Context, f schemas.EvaluationFilters) ([]schemas.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Evaluation, 0)
	for _, e := range s.evaluations {
		if Matches(f, e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SummarizeEvaluations(_ context.Context, f schemas.EvaluationFilters) (schemas.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, pass := 0, 0
	for _, e := range s.evaluations {
		if !Matches(f, e) {
			continue
		}
		total++
		if e.Verdict == schemas.VerdictPass {
			pass++
		}
	}
	return schemas.NewSummary(total, pass), nil
}

// Matches applies the evaluation filters to one row.
func Matches(f schemas.EvaluationFilters, e schemas.Evaluation) bool {
	if len(f.JudgeIDs) > 0 && !slices.Contains(f.JudgeIDs, e.JudgeID) {
		return false
	}
	if len(f.Verdicts) > 0 && !slices.Contains(f.Verdicts, e.Verdict) {
		return false
	}
	if len(f.QuestionIDs) > 0 && !slices.Contains(f.QuestionIDs, e.QuestionID) {
		return false
	}
	if len(f.SubmissionIDs) > 0 && !slices.Contains(f.SubmissionIDs, e.SubmissionID) {
		return false
	}
	return true
}

func cloneSubmission(sub schemas.Submission) schemas.Submission {
	sub.Questions = slices.Clone(sub.Questions)
	sub.Answers = slices.Clone(sub.Answers)
	return sub
}
