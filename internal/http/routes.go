package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"judgebench/internal/apperr"
	"judgebench/internal/results"
	"judgebench/internal/runner"
	"judgebench/internal/schemas"
	"judgebench/internal/store"
)

// Runner starts an evaluation run and blocks until it is finished.
type Runner interface {
	RunEvaluations(ctx context.Context, scope schemas.RunScope) (schemas.RunSummary, error)
}

type Server struct {
	Store   store.Store
	Runner  Runner
	Results *results.Service
}

func NewServer(addr string, st store.Store, run Runner, res *results.Service) *http.Server {
	s := &Server{Store: st, Runner: run, Results: res}
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, RequestLogger, m.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/judges", func(r chi.Router) {
		r.Get("/", s.listJudges)
		r.Post("/", s.createJudge)
		r.Get("/{id}", s.getJudge)
		r.Put("/{id}", s.updateJudge)
		r.Delete("/{id}", s.deleteJudge)
	})

	r.Route("/submissions", func(r chi.Router) {
		r.Post("/import", s.importSubmissions)
		r.Get("/", s.listSubmissions)
		r.Delete("/clear", s.clearSubmissions)
		r.Get("/{id}", s.getSubmission)
	})

	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", s.listAssignments)
		r.Post("/", s.createAssignment)
		r.Delete("/clear", s.clearAssignments)
	})

	r.Route("/evaluations", func(r chi.Router) {
		r.Post("/run", s.runEvaluations)
		r.Get("/", s.queryEvaluations)
		r.Get("/stats", s.evaluationStats)
		r.Get("/export.csv", s.exportCSV)
		r.Post("/export", s.exportToStorage)
	})
	return r
}

type errResp struct {
	Error string `json:"error"`
}

type countResp struct {
	Count int `json:"count"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors to status codes. Unclassified errors are logged
// and reported as 500.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var re *runner.ResolutionError
	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResp{err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errResp{err.Error()})
	case errors.Is(err, results.ErrExportUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errResp{err.Error()})
	case errors.As(err, &re):
		clog.FromContext(r.Context()).Errorf("run aborted: %v", err)
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
	default:
		clog.FromContext(r.Context()).Errorf("request error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errResp{"internal error"})
	}
}

// decode reads a JSON body. An empty body leaves v untouched when allowEmpty is set.
func decode(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case allowEmpty && errors.Is(err, io.EOF):
		return nil
	default:
		return apperr.NewValidationWrap("invalid JSON body", err)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		clog.FromContext(r.Context()).Warnf("health check: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "db error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- judges ---

func judgeID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidation(fmt.Sprintf("invalid judge id %q", chi.URLParam(r, "id")))
	}
	return id, nil
}

func (s *Server) listJudges(w http.ResponseWriter, r *http.Request) {
	judges, err := s.Store.ListJudges(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, judges)
}

func (s *Server) createJudge(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateJudgeRequest
	if err := decode(r, &req, false); err != nil {
		writeErr(w, r, err)
		return
	}
	j, err := s.Store.CreateJudge(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) getJudge(w http.ResponseWriter, r *http.Request) {
	id, err := judgeID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	j, err := s.Store.GetJudge(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) updateJudge(w http.ResponseWriter, r *http.Request) {
	id, err := judgeID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req schemas.UpdateJudgeRequest
	if err := decode(r, &req, false); err != nil {
		writeErr(w, r, err)
		return
	}
	j, err := s.Store.UpdateJudge(r.Context(), id, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) deleteJudge(w http.ResponseWriter, r *http.Request) {
	id, err := judgeID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.Store.DeleteJudge(r.Context(), id); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- submissions ---

func (s *Server) importSubmissions(w http.ResponseWriter, r *http.Request) {
	var in []schemas.IngestSubmission
	if err := decode(r, &in, false); err != nil {
		writeErr(w, r, err)
		return
	}
	subs := make([]schemas.Submission, 0, len(in))
	for _, raw := range in {
		sub, err := store.FromIngest(raw)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		subs = append(subs, sub)
	}
	n, err := s.Store.ImportSubmissions(r.Context(), subs)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	clog.FromContext(r.Context()).Infof("imported %d submissions", n)
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.Store.ListSubmissions(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) clearSubmissions(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.ClearSubmissions(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResp{n})
}

// --- assignments ---

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	as, err := s.Store.ListAssignments(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateAssignmentRequest
	if err := decode(r, &req, false); err != nil {
		writeErr(w, r, err)
		return
	}
	a, created, err := s.Store.CreateAssignment(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, a)
}

func (s *Server) clearAssignments(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.ClearAssignments(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResp{n})
}

// --- evaluations ---

func (s *Server) runEvaluations(w http.ResponseWriter, r *http.Request) {
	var scope schemas.RunScope
	if err := decode(r, &scope, true); err != nil {
		writeErr(w, r, err)
		return
	}
	sum, err := s.Runner.RunEvaluations(r.Context(), scope)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) queryEvaluations(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilters(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	page, err := s.Results.Query(r.Context(), f)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) evaluationStats(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilters(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	b, err := s.Results.Breakdown(r.Context(), f)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilters(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="evaluation-results-%s.csv"`, time.Now().UTC().Format("2006-01-02")))
	if _, err := s.Results.WriteCSV(r.Context(), w, f); err != nil {
		clog.FromContext(r.Context()).Errorf("csv export: %v", err)
	}
}

func (s *Server) exportToStorage(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilters(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ref, err := s.Results.Export(r.Context(), f)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ref": ref})
}

// ParseFilters reads judgeId, verdict, questionId and submissionId query
// parameters. Each may repeat or hold a comma-separated list.
func ParseFilters(r *http.Request) (schemas.EvaluationFilters, error) {
	q := r.URL.Query()
	var f schemas.EvaluationFilters
	for _, v := range listParam(q["judgeId"]) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, apperr.NewValidation(fmt.Sprintf("invalid judgeId %q", v))
		}
		f.JudgeIDs = append(f.JudgeIDs, id)
	}
	for _, v := range listParam(q["verdict"]) {
		verdict := schemas.Verdict(strings.ToLower(v))
		if !verdict.Valid() {
			return f, apperr.NewValidation(fmt.Sprintf("invalid verdict %q", v))
		}
		f.Verdicts = append(f.Verdicts, verdict)
	}
	f.QuestionIDs = listParam(q["questionId"])
	f.SubmissionIDs = listParam(q["submissionId"])
	return f, nil
}

func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
