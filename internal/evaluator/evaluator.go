// Package evaluator turns finished attempts into scored reports.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/quiz"
)

// DefaultGradingTimeout bounds a single call to the grading capability.
const DefaultGradingTimeout = 2 * time.Minute

// Grader is the external capability that marks an uploaded answer sheet.
// Question content comes from exam, the copy the learner sat, never from the
// current catalog.
type Grader interface {
	Grade(ctx context.Context, exam model.Exam, req model.GradingRequest) (*model.GradingResponse, error)
}

// Evaluator produces scored reports. It never mutates its inputs.
type Evaluator struct {
	scale   GradeScale
	grader  Grader
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithScale replaces the default grade scale.
func WithScale(s GradeScale) Option { return func(e *Evaluator) { e.scale = s } }

// WithGrader sets the capability used to mark uploaded answer sheets.
func WithGrader(g Grader) Option { return func(e *Evaluator) { e.grader = g } }

// WithTimeout bounds each grading call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option { return func(e *Evaluator) { e.timeout = d } }

// WithClock sets the source of report timestamps.
func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// WithIDGenerator sets the function that assigns report ids.
func WithIDGenerator(fn func() string) Option { return func(e *Evaluator) { e.newID = fn } }

// New creates an Evaluator with the default scale and timeout unless overridden.
func New(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		scale:   DefaultScale(),
		timeout: DefaultGradingTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.scale.Validate(); err != nil {
		return nil, err
	}
	if e.timeout <= 0 {
		e.timeout = DefaultGradingTimeout
	}
	return e, nil
}

// Scale returns the grade scale in use.
func (e *Evaluator) Scale() GradeScale { return e.scale }

// EvaluateSession scores a completed quiz. Marks are weighted by each
// question's marks; unanswered questions score zero.
func (e *Evaluator) EvaluateSession(ctx context.Context, s *quiz.Session) (model.ScoredReport, error) {
	if s.Status() != model.QuizCompleted {
		return model.ScoredReport{}, fmt.Errorf("%w: quiz is %s", model.ErrPrecondition, s.Status())
	}

	var total, obtained int
	outcomes := make([]model.QuestionOutcome, s.Len())
	for i := range s.Len() {
		q := s.Question(i)
		answer, attempted := s.Answer(i)
		correct := attempted && answer == *q.CorrectIndex
		out := model.QuestionOutcome{
			QuestionID:    q.ID,
			Attempted:     attempted,
			MarksPossible: q.Marks,
		}
		data := map[string]any{"Answer": q.Options[*q.CorrectIndex]}
		switch {
		case correct:
			out.MarksObtained = q.Marks
			out.Feedback = i18n.T(ctx, "FeedbackCorrect")
		case attempted:
			out.Feedback = i18n.Td(ctx, "FeedbackIncorrect", data)
		default:
			out.Feedback = i18n.Td(ctx, "FeedbackNotAttempted", data)
		}
		outcomes[i] = out
		total += out.MarksPossible
		obtained += out.MarksObtained
	}

	return e.report(model.SourceQuiz, "", total, obtained, outcomes), nil
}

// EvaluateUpload sends an uploaded answer sheet for exam to the grading
// capability and aggregates its response. Any grader failure, including a
// timeout or a malformed response, is reported as ErrExternalGrading.
func (e *Evaluator) EvaluateUpload(ctx context.Context, exam model.Exam, ref model.SheetRef) (model.ScoredReport, error) {
	if ref == "" {
		return model.ScoredReport{}, fmt.Errorf("%w: missing answer sheet reference", model.ErrValidation)
	}
	req := model.GradingRequest{ExamID: exam.ID, UploadedAnswerReference: ref}
	expected := make(map[string]int)
	for _, sec := range model.Sections {
		for _, q := range exam.Sections[sec] {
			req.SectionAwareQuestionIDs = append(req.SectionAwareQuestionIDs, model.SectionQuestionID{Section: sec, QuestionID: q.ID})
			expected[q.ID] = q.Marks
		}
	}
	if len(req.SectionAwareQuestionIDs) == 0 {
		return model.ScoredReport{}, fmt.Errorf("%w: exam %s has no questions", model.ErrValidation, exam.ID)
	}
	if e.grader == nil {
		return model.ScoredReport{}, fmt.Errorf("%w: no grading capability configured", model.ErrExternalGrading)
	}

	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.grader.Grade(gctx, exam, req)
	if err != nil {
		slog.Error("grading call failed", "exam_id", exam.ID, "elapsed", time.Since(start), "error", err)
		return model.ScoredReport{}, fmt.Errorf("%w: %v", model.ErrExternalGrading, err)
	}
	outcomes, err := checkResponse(req, expected, resp)
	if err != nil {
		slog.Error("malformed grading response", "exam_id", exam.ID, "error", err)
		return model.ScoredReport{}, fmt.Errorf("%w: %v", model.ErrExternalGrading, err)
	}

	var total, obtained int
	for _, o := range outcomes {
		total += o.MarksPossible
		obtained += o.MarksObtained
	}
	r := e.report(model.SourceUpload, exam.ID, total, obtained, outcomes)
	r.ImprovementAreas = append([]string(nil), resp.ImprovementAreas...)
	r.Strengths = append([]string(nil), resp.Strengths...)
	slog.Info("graded answer sheet", "exam_id", exam.ID, "percentage", r.Percentage, "grade", r.Grade, "elapsed", time.Since(start))
	return r, nil
}

// checkResponse verifies the response covers every requested question once
// with consistent marks, and returns outcomes in request order.
func checkResponse(req model.GradingRequest, expected map[string]int, resp *model.GradingResponse) ([]model.QuestionOutcome, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	byID := make(map[string]model.QuestionOutcome, len(resp.PerQuestion))
	for _, o := range resp.PerQuestion {
		possible, ok := expected[o.QuestionID]
		if !ok {
			return nil, fmt.Errorf("unknown question %q", o.QuestionID)
		}
		if _, dup := byID[o.QuestionID]; dup {
			return nil, fmt.Errorf("question %q graded twice", o.QuestionID)
		}
		if o.MarksPossible != possible {
			return nil, fmt.Errorf("question %q: marks possible %d, exam says %d", o.QuestionID, o.MarksPossible, possible)
		}
		if o.MarksObtained < 0 || o.MarksObtained > o.MarksPossible {
			return nil, fmt.Errorf("question %q: marks obtained %d outside [0,%d]", o.QuestionID, o.MarksObtained, o.MarksPossible)
		}
		if !o.Attempted && o.MarksObtained != 0 {
			return nil, fmt.Errorf("question %q: unattempted question awarded %d marks", o.QuestionID, o.MarksObtained)
		}
		byID[o.QuestionID] = o
	}

	out := make([]model.QuestionOutcome, 0, len(req.SectionAwareQuestionIDs))
	for _, ref := range req.SectionAwareQuestionIDs {
		o, ok := byID[ref.QuestionID]
		if !ok {
			return nil, fmt.Errorf("question %q missing from response", ref.QuestionID)
		}
		out = append(out, o)
	}
	return out, nil
}

func (e *Evaluator) report(src model.ReportSource, examID string, total, obtained int, outcomes []model.QuestionOutcome) model.ScoredReport {
	pct := Percentage(obtained, total)
	return model.ScoredReport{
		ID:            e.newID(),
		ExamID:        examID,
		Source:        src,
		TotalMarks:    total,
		ObtainedMarks: obtained,
		Percentage:    pct,
		Grade:         e.scale.Grade(pct),
		PerQuestion:   outcomes,
		EvaluatedAt:   e.now(),
	}
}

// Percentage is round(100*obtained/total), or 0 when total is 0.
func Percentage(obtained, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(obtained) / float64(total)))
}
