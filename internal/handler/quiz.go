package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/quiz"
)

// quizIdleTTL is how long an untouched quiz stays in the registry.
const quizIdleTTL = 2 * time.Hour

// quizEntry is one live quiz. Its mutex serializes requests for the same
// quiz; the session itself is not safe for concurrent use.
type quizEntry struct {
	mu       sync.Mutex
	session  *quiz.Session
	examID   string
	reportID string

	lastUsed time.Time // guarded by registry.mu
}

// registry holds live quizzes in memory. A quiz leaves the registry once its
// report is stored, or after sitting idle for ttl.
type registry struct {
	mu      sync.Mutex
	entries map[string]*quizEntry
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*quizEntry),
		ttl:     quizIdleTTL,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (g *registry) add(e *quizEntry) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	id := g.newID()
	e.lastUsed = g.now()
	g.entries[id] = e
	return id
}

func (g *registry) get(id string) (*quizEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok || g.now().Sub(e.lastUsed) > g.ttl {
		delete(g.entries, id)
		return nil, fmt.Errorf("%w: quiz %s", model.ErrNotFound, id)
	}
	e.lastUsed = g.now()
	return e, nil
}

func (g *registry) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, id)
}

func (g *registry) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *registry) pruneLocked() {
	now := g.now()
	for id, e := range g.entries {
		if now.Sub(e.lastUsed) > g.ttl {
			delete(g.entries, id)
			slog.Debug("expired idle quiz", "quiz_id", id)
		}
	}
}

type startQuizRequest struct {
	ExamID      string   `json:"exam_id"`
	QuestionIDs []string `json:"question_ids"`
}

func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	var req startQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var questions []model.Question
	switch {
	case req.ExamID != "" && len(req.QuestionIDs) > 0:
		writeError(w, r, fmt.Errorf("%w: give either exam_id or question_ids, not both", model.ErrValidation))
		return
	case req.ExamID != "":
		exam, err := h.Store.GetExam(req.ExamID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		questions = exam.Sections[model.SectionA]
	default:
		for _, id := range req.QuestionIDs {
			q, ok := h.Catalog.Question(id)
			if !ok {
				writeError(w, r, fmt.Errorf("%w: unknown question %s", model.ErrValidation, id))
				return
			}
			questions = append(questions, q)
		}
	}

	s, err := quiz.New(questions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e := &quizEntry{session: s, examID: req.ExamID}
	id := h.quizzes.add(e)

	w.Header().Set("Location", location(r, "/api/quiz/"+id))
	writeJSON(w, http.StatusCreated, newQuizView(r.Context(), id, e))
}

// withQuiz runs fn on the quiz named in the URL while holding its lock and
// responds with the resulting quiz view.
func (h *Handler) withQuiz(w http.ResponseWriter, r *http.Request, fn func(e *quizEntry) error) {
	id := chi.URLParam(r, "quizID")
	e, err := h.quizzes.get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if fn != nil {
		if err := fn(e); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newQuizView(r.Context(), id, e))
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	h.withQuiz(w, r, nil)
}

type answerRequest struct {
	Option *int `json:"option"`
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Option == nil {
		writeError(w, r, fmt.Errorf("%w: option is required", model.ErrValidation))
		return
	}
	h.withQuiz(w, r, func(e *quizEntry) error {
		return e.session.SelectAnswer(*req.Option)
	})
}

func (h *Handler) handleQuizAdvance(w http.ResponseWriter, r *http.Request) {
	h.withQuiz(w, r, func(e *quizEntry) error {
		return e.session.Advance()
	})
}

func (h *Handler) handleQuizRetreat(w http.ResponseWriter, r *http.Request) {
	h.withQuiz(w, r, func(e *quizEntry) error {
		return e.session.Retreat()
	})
}

func (h *Handler) handleQuizRestart(w http.ResponseWriter, r *http.Request) {
	h.withQuiz(w, r, func(e *quizEntry) error {
		e.session.Restart()
		e.reportID = ""
		return nil
	})
}

// handleQuizReport evaluates a completed quiz once, stores the report and
// drops the quiz from the registry. The report stays at /api/reports/{id}.
func (h *Handler) handleQuizReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "quizID")
	e, err := h.quizzes.get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reportID != "" {
		report, err := h.Store.GetReport(e.reportID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := h.Evaluator.EvaluateSession(r.Context(), e.session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report.ExamID = e.examID
	if err := h.Store.SaveReport(report); err != nil {
		writeError(w, r, err)
		return
	}
	e.reportID = report.ID
	h.quizzes.remove(id)

	w.Header().Set("Location", location(r, "/api/reports/"+report.ID))
	writeJSON(w, http.StatusCreated, report)
}
