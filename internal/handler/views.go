package handler

import (
	"context"
	"time"

	"github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
)

// paper returns the exam as shown to a student: answer keys are removed.
func paper(e model.Exam) model.Exam {
	out := e
	out.Sections = make(map[model.Section][]model.Question, len(e.Sections))
	for sec, qs := range e.Sections {
		stripped := make([]model.Question, len(qs))
		for i, q := range qs {
			stripped[i] = q.Clone()
			stripped[i].CorrectIndex = nil
		}
		out.Sections[sec] = stripped
	}
	return out
}

type examSummary struct {
	ID               string    `json:"id"`
	SubjectID        string    `json:"subject_id"`
	SubjectName      string    `json:"subject_name"`
	ChapterIDs       []string  `json:"chapter_ids"`
	ChapterNames     []string  `json:"chapter_names"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	TotalMarks       int       `json:"total_marks"`
	CreatedAt        time.Time `json:"created_at"`
}

func summarize(e model.Exam) examSummary {
	return examSummary{
		ID:               e.ID,
		SubjectID:        e.SubjectID,
		SubjectName:      e.SubjectName,
		ChapterIDs:       e.ChapterIDs,
		ChapterNames:     e.ChapterNames,
		TimeLimitMinutes: e.TimeLimitMinutes,
		TotalMarks:       e.TotalMarks,
		CreatedAt:        e.CreatedAt,
	}
}

type questionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Marks   int      `json:"marks"`
	Options []string `json:"options"`
}

type quizView struct {
	ID           string           `json:"id"`
	ExamID       string           `json:"exam_id,omitempty"`
	Status       model.QuizStatus `json:"status"`
	CurrentIndex int              `json:"current_index"`
	Total        int              `json:"total"`
	Progress     float64          `json:"progress"`
	Question     questionView     `json:"question"`
	Answers      map[int]int      `json:"answers"`
	Score        *int             `json:"score,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	ReportID     string           `json:"report_id,omitempty"`
}

func newQuizView(ctx context.Context, id string, e *quizEntry) quizView {
	snap := e.session.Snapshot()
	v := quizView{
		ID:           id,
		ExamID:       e.examID,
		Status:       snap.Status,
		CurrentIndex: snap.CurrentIndex,
		Total:        snap.Total,
		Progress:     snap.Progress,
		Question: questionView{
			ID:      snap.Current.ID,
			Text:    snap.Current.Text,
			Marks:   snap.Current.Marks,
			Options: snap.Current.Options,
		},
		Answers:  snap.Answers,
		ReportID: e.reportID,
	}
	if snap.Status == model.QuizCompleted {
		score := snap.Score
		v.Score = &score
		v.Summary = i18n.Td(ctx, "QuizSummary", map[string]any{"Score": score, "Total": snap.Total})
	} else {
		v.Summary = i18n.Tp(ctx, "QuestionsRemaining", snap.Total-snap.CurrentIndex)
	}
	return v
}
