// Package assembler builds four-section mock exams from the content repository.
package assembler

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/selector"
)

// SectionQuota fixes which question type fills a section and how many items it holds.
type SectionQuota struct {
	Section model.Section
	Type    model.QuestionType
	Items   int
}

// Quotas is the fixed exam layout. With the standard bank marks (2/5/10/20)
// the sections add up to 100.
var Quotas = []SectionQuota{
	{model.SectionA, model.TypeSingleChoice, 5},
	{model.SectionB, model.TypeShortAnswer, 4},
	{model.SectionC, model.TypeLongAnswer, 3},
	{model.SectionD, model.TypeApplication, 2},
}

// AllowedTimeLimits lists the accepted exam durations in minutes.
var AllowedTimeLimits = []int{80, 90, 120}

// Catalog is the read side of the content repository used for assembly.
type Catalog interface {
	Subject(id string) (model.Subject, bool)
	Chapter(subjectID, chapterID string) (model.Chapter, bool)
	Chapters() []model.Chapter
	QuestionsOfType(t model.QuestionType) []model.Question
}

// Assembler builds exams. It holds no mutable state and may be shared.
type Assembler struct {
	cat   Catalog
	now   func() time.Time
	newID func() string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the assembly timestamp source.
func WithClock(now func() time.Time) Option { return func(a *Assembler) { a.now = now } }

// WithIDGenerator overrides exam id generation.
func WithIDGenerator(fn func() string) Option { return func(a *Assembler) { a.newID = fn } }

// New creates an Assembler over cat.
func New(cat Catalog, opts ...Option) *Assembler {
	a := &Assembler{
		cat:   cat,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble builds a mock exam for subjectID. Sections are drawn from the
// master bank in catalog order; the chapter selection is recorded as metadata
// and does not narrow the pools.
func (a *Assembler) Assemble(subjectID string, chapterIDs []string, timeLimitMinutes int) (model.Exam, error) {
	subject, ok := a.cat.Subject(subjectID)
	if !ok {
		return model.Exam{}, fmt.Errorf("%w: unknown subject %q", model.ErrValidation, subjectID)
	}
	if len(chapterIDs) == 0 {
		return model.Exam{}, fmt.Errorf("%w: chapter set is empty", model.ErrValidation)
	}
	if !slices.Contains(AllowedTimeLimits, timeLimitMinutes) {
		return model.Exam{}, fmt.Errorf("%w: time limit %d not in %v", model.ErrValidation, timeLimitMinutes, AllowedTimeLimits)
	}
	for _, id := range chapterIDs {
		if _, ok := a.cat.Chapter(subjectID, id); !ok {
			return model.Exam{}, fmt.Errorf("%w: chapter %q is not part of subject %q", model.ErrValidation, id, subjectID)
		}
	}

	// Catalog order, duplicates dropped.
	var ids, names []string
	for _, ch := range selector.SelectChapters(a.cat, subjectID) {
		if slices.Contains(chapterIDs, ch.ID) {
			ids = append(ids, ch.ID)
			names = append(names, ch.Name)
		}
	}

	exam := model.Exam{
		ID:               a.newID(),
		SubjectID:        subject.ID,
		SubjectName:      subject.Name,
		ChapterIDs:       ids,
		ChapterNames:     names,
		TimeLimitMinutes: timeLimitMinutes,
		Sections:         make(map[model.Section][]model.Question, len(Quotas)),
		CreatedAt:        a.now(),
	}
	for _, q := range Quotas {
		picked := selector.PickQuestions(a.cat.QuestionsOfType(q.Type), q.Items)
		exam.Sections[q.Section] = picked
		for _, item := range picked {
			exam.TotalMarks += item.Marks
		}
		if len(picked) < q.Items {
			slog.Warn("section under-filled", "section", q.Section, "want", q.Items, "got", len(picked))
		}
	}

	slog.Info("assembled exam",
		"exam_id", exam.ID,
		"subject", subject.ID,
		"chapters", ids,
		"time_limit", timeLimitMinutes,
		"total_marks", exam.TotalMarks,
	)
	return exam, nil
}
