package model

import (
	"context"
	"time"
)

// QuestionType classifies how a question is answered.
type QuestionType string

const (
	// TypeSingleChoice is a question with ordered options and one correct index.
	TypeSingleChoice QuestionType = "single-choice"
	// TypeShortAnswer is a brief free-text question.
	TypeShortAnswer QuestionType = "short-answer"
	// TypeLongAnswer is an extended free-text question.
	TypeLongAnswer QuestionType = "long-answer"
	// TypeApplication is a problem-solving question.
	TypeApplication QuestionType = "application"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeSingleChoice, TypeShortAnswer, TypeLongAnswer, TypeApplication:
		return true
	}
	return false
}

// Subject is the root of the catalog.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Chapter belongs to exactly one subject.
type Chapter struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SubjectID string `json:"subject_id"`
}

// Concept is an optional finer tag on a question.
type Concept struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ChapterID string `json:"chapter_id"`
}

// Question is a single item of the content bank.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Type         QuestionType `json:"type"`
	Marks        int          `json:"marks"`
	Options      []string     `json:"options,omitempty"`
	CorrectIndex *int         `json:"correct_index,omitempty"`
	SubjectID    string       `json:"subject_id"`
	ChapterID    string       `json:"chapter_id"`
	ConceptID    string       `json:"concept_id,omitempty"`
}

// Clone returns a deep copy so callers can't mutate catalog data.
func (q Question) Clone() Question {
	c := q
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	if q.CorrectIndex != nil {
		idx := *q.CorrectIndex
		c.CorrectIndex = &idx
	}
	return c
}

// Section identifies one of the four fixed-quota groups of a mock exam.
type Section string

const (
	SectionA Section = "A"
	SectionB Section = "B"
	SectionC Section = "C"
	SectionD Section = "D"
)

// Sections lists the exam sections in display order.
var Sections = []Section{SectionA, SectionB, SectionC, SectionD}

// Exam is an assembled mock exam.
type Exam struct {
	ID               string                 `json:"id"`
	SubjectID        string                 `json:"subject_id"`
	SubjectName      string                 `json:"subject_name"`
	ChapterIDs       []string               `json:"chapter_ids"`
	ChapterNames     []string               `json:"chapter_names"`
	TimeLimitMinutes int                    `json:"time_limit_minutes"`
	Sections         map[Section][]Question `json:"sections"`
	TotalMarks       int                    `json:"total_marks"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Questions returns the exam questions in section order.
func (e Exam) Questions() []Question {
	var out []Question
	for _, s := range Sections {
		out = append(out, e.Sections[s]...)
	}
	return out
}

// Question returns the exam's own copy of question id.
func (e Exam) Question(id string) (Question, bool) {
	for _, s := range Sections {
		for _, q := range e.Sections[s] {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// QuizStatus represents the state of a quiz session.
type QuizStatus string

const (
	QuizInProgress QuizStatus = "in_progress"
	QuizCompleted  QuizStatus = "completed"
)

// ReportSource records which evaluation path produced a report.
type ReportSource string

const (
	SourceQuiz   ReportSource = "quiz"
	SourceUpload ReportSource = "upload"
)

// QuestionOutcome is the per-question line of a scored report.
type QuestionOutcome struct {
	QuestionID    string `json:"question_id"`
	Attempted     bool   `json:"attempted"`
	MarksObtained int    `json:"marks_obtained"`
	MarksPossible int    `json:"marks_possible"`
	Feedback      string `json:"feedback"`
}

// ScoredReport is the aggregated outcome of one evaluated attempt.
type ScoredReport struct {
	ID               string            `json:"id"`
	ExamID           string            `json:"exam_id,omitempty"`
	Source           ReportSource      `json:"source"`
	TotalMarks       int               `json:"total_marks"`
	ObtainedMarks    int               `json:"obtained_marks"`
	Percentage       int               `json:"percentage"`
	Grade            string            `json:"grade"`
	PerQuestion      []QuestionOutcome `json:"per_question"`
	ImprovementAreas []string          `json:"improvement_areas,omitempty"`
	Strengths        []string          `json:"strengths,omitempty"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
}

// ExamFilter narrows a listing of stored exams. Empty fields match everything.
type ExamFilter struct {
	SubjectID string
	ChapterID string
}

// RuntimeConfig holds engine parameters set via CLI flags or config file.
type RuntimeConfig struct {
	BasePath       string
	UploadDir      string
	MaxUploadBytes int64
	GradingTimeout time.Duration
	PromptVariant  string // strict, standard, lenient
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
