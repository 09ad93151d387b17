package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/quiz"
)

// Catalog is the read-only content repository.
type Catalog interface {
	Subjects() []model.Subject
	Subject(id string) (model.Subject, bool)
	Chapters() []model.Chapter
	Question(id string) (model.Question, bool)
}

// Assembler builds mock exams.
type Assembler interface {
	Assemble(subjectID string, chapterIDs []string, timeLimitMinutes int) (model.Exam, error)
}

// Evaluator scores finished quizzes and uploaded answer sheets.
type Evaluator interface {
	EvaluateSession(ctx context.Context, s *quiz.Session) (model.ScoredReport, error)
	EvaluateUpload(ctx context.Context, exam model.Exam, ref model.SheetRef) (model.ScoredReport, error)
}

// Store persists exams and reports.
type Store interface {
	SaveExam(e model.Exam) error
	GetExam(id string) (model.Exam, error)
	ListExams(f model.ExamFilter) ([]model.Exam, error)
	SaveReport(r model.ScoredReport) error
	GetReport(id string) (model.ScoredReport, error)
	ListReports(examID string) ([]model.ScoredReport, error)
	ListAllReports() ([]model.ScoredReport, error)
	ExportAll() (model.Export, error)
}

// Sheets stores uploaded answer sheets.
type Sheets interface {
	Save(filename string, r io.Reader) (model.SheetRef, error)
	Remove(ref model.SheetRef) error
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Catalog   Catalog
	Assembler Assembler
	Evaluator Evaluator
	Store     Store
	Sheets    Sheets
	// AdminGuard protects the admin routes. When nil they are not mounted.
	AdminGuard func(http.Handler) http.Handler
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	Deps
	config  model.RuntimeConfig
	quizzes *registry
}

// New creates a new Handler.
func New(d Deps, cfg model.RuntimeConfig) (*Handler, error) {
	if d.Catalog == nil || d.Assembler == nil || d.Evaluator == nil || d.Store == nil || d.Sheets == nil {
		return nil, errors.New("handler: missing dependency")
	}
	return &Handler{Deps: d, config: cfg, quizzes: newRegistry()}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/subjects", h.handleListSubjects)
		r.Get("/subjects/{subjectID}/chapters", h.handleListChapters)

		r.Post("/exams", h.handleCreateExam)
		r.Get("/exams", h.handleListExams)
		r.Get("/exams/{examID}", h.handleGetExam)
		r.Get("/exams/{examID}/reports", h.handleExamReports)
		r.Post("/exams/{examID}/submission", h.handleSubmission)

		r.Post("/quiz", h.handleStartQuiz)
		r.Get("/quiz/{quizID}", h.handleGetQuiz)
		r.Post("/quiz/{quizID}/answer", h.handleQuizAnswer)
		r.Post("/quiz/{quizID}/advance", h.handleQuizAdvance)
		r.Post("/quiz/{quizID}/retreat", h.handleQuizRetreat)
		r.Post("/quiz/{quizID}/restart", h.handleQuizRestart)
		r.Post("/quiz/{quizID}/report", h.handleQuizReport)

		r.Get("/reports/{reportID}", h.handleGetReport)

		if h.AdminGuard != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(h.AdminGuard)
				r.Get("/reports", h.handleAdminReports)
				r.Get("/export", h.handleAdminExport)
			})
		}
	})
}

// BasePathMiddleware injects the configured base path into the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// location builds a URL path under the base path of the request.
func location(r *http.Request, path string) string {
	return model.BasePathFromContext(r.Context()) + path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, model.ErrExternalGrading):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON request body into v. Malformed bodies are
// validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrValidation, err)
	}
	return nil
}
