package results

import (
	"bytes"
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"

	"judgebench/internal/schemas"
)

// ErrExportUnavailable is returned by Export when no object store is configured.
var ErrExportUnavailable = errors.New("object storage is not configured")

var csvHeader = []string{"ID", "Submission", "Question", "Judge", "Verdict", "Reasoning", "Created"}

type Reader interface {
	QueryEvaluations(ctx context.Context, f schemas.EvaluationFilters) ([]schemas.Evaluation, error)
	SummarizeEvaluations(ctx context.Context, f schemas.EvaluationFilters) (schemas.Summary, error)
	ListJudges(ctx context.Context) ([]schemas.Judge, error)
}

type ObjectStore interface {
	Put(ctx context.Context, prefix, ext, contentType string, body io.ReadSeeker) (string, error)
}

// Service answers read queries over evaluations. Nothing is cached: every call
// reflects all rows persisted before it.
type Service struct {
	store   Reader
	objects ObjectStore
}

// NewService returns a Service. objects may be nil, which disables Export.
func NewService(r Reader, objects ObjectStore) *Service {
	return &Service{store: r, objects: objects}
}

// Query returns the filtered rows, newest first, and a summary computed over
// exactly those rows.
func (s *Service) Query(ctx context.Context, f schemas.EvaluationFilters) (schemas.EvaluationPage, error) {
	items, err := s.store.QueryEvaluations(ctx, f)
	if err != nil {
		return schemas.EvaluationPage{}, err
	}
	return schemas.EvaluationPage{Summary: summarize(items), Items: items}, nil
}

func (s *Service) Summary(ctx context.Context, f schemas.EvaluationFilters) (schemas.Summary, error) {
	return s.store.SummarizeEvaluations(ctx, f)
}

// Breakdown returns the filtered summary plus per-judge pass rates and the
// verdict distribution.
func (s *Service) Breakdown(ctx context.Context, f schemas.EvaluationFilters) (schemas.Breakdown, error) {
	items, err := s.store.QueryEvaluations(ctx, f)
	if err != nil {
		return schemas.Breakdown{}, err
	}
	judges, err := s.store.ListJudges(ctx)
	if err != nil {
		return schemas.Breakdown{}, err
	}
	names := make(map[int64]string, len(judges))
	for _, j := range judges {
		names[j.ID] = j.Name
	}

	stats := map[int64]*schemas.JudgeStats{}
	counts := map[schemas.Verdict]int{}
	for _, e := range items {
		counts[e.Verdict]++
		js, ok := stats[e.JudgeID]
		if !ok {
			js = &schemas.JudgeStats{JudgeID: e.JudgeID, JudgeName: names[e.JudgeID]}
			stats[e.JudgeID] = js
		}
		js.Total++
		if e.Verdict == schemas.VerdictPass {
			js.Pass++
		}
	}

	out := schemas.Breakdown{
		Summary:  summarize(items),
		ByJudge:  make([]schemas.JudgeStats, 0, len(stats)),
		Verdicts: make([]schemas.VerdictCount, 0, len(schemas.Verdicts)),
	}
	for _, js := range stats {
		js.PassRatePct = schemas.PassRatePct(js.Pass, js.Total)
		out.ByJudge = append(out.ByJudge, *js)
	}
	slices.SortFunc(out.ByJudge, func(a, b schemas.JudgeStats) int { return cmp.Compare(a.JudgeID, b.JudgeID) })
	for _, v := range schemas.Verdicts {
		out.Verdicts = append(out.Verdicts, schemas.VerdictCount{
			Verdict:    v,
			Count:      counts[v],
			Percentage: schemas.PassRatePct(counts[v], len(items)),
		})
	}
	return out, nil
}

// WriteCSV writes the filtered rows as CSV and returns the number of rows written.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, f schemas.EvaluationFilters) (int, error) {
	items, err := s.store.QueryEvaluations(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := writeCSV(w, items); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(items), nil
}

// Export uploads the filtered rows as CSV and returns the object reference.
func (s *Service) Export(ctx context.Context, f schemas.EvaluationFilters) (string, error) {
	if s.objects == nil {
		return "", ErrExportUnavailable
	}
	var buf bytes.Buffer
	n, err := s.WriteCSV(ctx, &buf, f)
	if err != nil {
		return "", err
	}
	ref, err := s.objects.Put(ctx, "exports/"+time.Now().UTC().Format("2006-01-02"), ".csv", "text/csv", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("export evaluations: %w", err)
	}
	clog.FromContext(ctx).With("ref", ref).Infof("exported %d evaluations", n)
	return ref, nil
}

func summarize(items []schemas.Evaluation) schemas.Summary {
	pass := 0
	for _, e := range items {
		if e.Verdict == schemas.VerdictPass {
			pass++
		}
	}
	return schemas.NewSummary(len(items), pass)
}

func writeCSV(w io.Writer, items []schemas.Evaluation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range items {
		if err := cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.SubmissionID,
			e.QuestionID,
			strconv.FormatInt(e.JudgeID, 10),
			string(e.Verdict),
			e.Reasoning,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
