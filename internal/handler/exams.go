package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/selector"
)

// answerSheetField is the multipart field carrying an uploaded answer sheet.
const answerSheetField = "answer_sheet"

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.Subjects())
}

func (h *Handler) handleListChapters(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if _, ok := h.Catalog.Subject(subjectID); !ok {
		writeError(w, r, fmt.Errorf("%w: subject %s", model.ErrNotFound, subjectID))
		return
	}
	chapters := selector.SelectChapters(h.Catalog, subjectID)
	if chapters == nil {
		chapters = []model.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

type createExamRequest struct {
	SubjectID        string   `json:"subject_id"`
	ChapterIDs       []string `json:"chapter_ids"`
	TimeLimitMinutes int      `json:"time_limit_minutes"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	exam, err := h.Assembler.Assemble(req.SubjectID, req.ChapterIDs, req.TimeLimitMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.SaveExam(exam); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", location(r, "/api/exams/"+exam.ID))
	writeJSON(w, http.StatusCreated, paper(exam))
}

// handleListExams lists past exams, optionally filtered by ?subject= and ?chapter=.
func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.Store.ListExams(model.ExamFilter{
		SubjectID: r.URL.Query().Get("subject"),
		ChapterID: r.URL.Query().Get("chapter"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]examSummary, 0, len(exams))
	for _, e := range exams {
		out = append(out, summarize(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.Store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paper(exam))
}

func (h *Handler) handleExamReports(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, err := h.Store.GetExam(examID); err != nil {
		writeError(w, r, err)
		return
	}
	reports, err := h.Store.ListReports(examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.ScoredReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleSubmission accepts an uploaded answer sheet for an exam, has it graded
// and stores the resulting report. The sheet is kept only when grading succeeds.
func (h *Handler) handleSubmission(w http.ResponseWriter, r *http.Request) {
	exam, err := h.Store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.config.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope.
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+1<<20)
	}
	file, header, err := r.FormFile(answerSheetField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", model.ErrValidation, h.config.MaxUploadBytes))
			return
		}
		writeError(w, r, fmt.Errorf("%w: multipart field %q is required", model.ErrValidation, answerSheetField))
		return
	}
	defer file.Close()

	ref, err := h.Sheets.Save(header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("answer sheet received", "exam_id", exam.ID, "sheet", ref, "size", header.Size)

	report, err := h.Evaluator.EvaluateUpload(r.Context(), exam, ref)
	if err != nil {
		if rmErr := h.Sheets.Remove(ref); rmErr != nil {
			slog.Warn("failed to remove answer sheet", "sheet", ref, "error", rmErr)
		}
		writeError(w, r, err)
		return
	}
	if err := h.Store.SaveReport(report); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", location(r, "/api/reports/"+report.ID))
	writeJSON(w, http.StatusCreated, report)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Store.GetReport(chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
