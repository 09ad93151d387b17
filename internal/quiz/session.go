// Package quiz drives a single attempt over an ordered list of single-choice
// questions. A Session is owned by one learner and is not safe for concurrent use.
package quiz

import (
	"fmt"
	"maps"

	"github.com/pavelanni/examprep/internal/model"
)

// Session is the quiz state machine: InProgress until the last question is
// answered and advanced past, then Completed until Restart.
type Session struct {
	questions []model.Question
	current   int
	answers   map[int]int
	status    model.QuizStatus
	score     int
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	Status       model.QuizStatus `json:"status"`
	CurrentIndex int              `json:"current_index"`
	Current      model.Question   `json:"current"`
	Progress     float64          `json:"progress"`
	Answers      map[int]int      `json:"answers"`
	Score        int              `json:"score"`
	Total        int              `json:"total"`
}

// New starts a session over questions. Every question must be single-choice.
func New(questions []model.Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: quiz needs at least one question", model.ErrValidation)
	}
	qs := make([]model.Question, len(questions))
	for i, q := range questions {
		if q.Type != model.TypeSingleChoice || len(q.Options) == 0 || q.CorrectIndex == nil {
			return nil, fmt.Errorf("%w: question %q is not a single-choice question", model.ErrValidation, q.ID)
		}
		if ci := *q.CorrectIndex; ci < 0 || ci >= len(q.Options) {
			return nil, fmt.Errorf("%w: question %q correct index %d outside [0,%d)", model.ErrValidation, q.ID, ci, len(q.Options))
		}
		qs[i] = q.Clone()
	}
	s := &Session{questions: qs}
	s.Restart()
	return s, nil
}

// SelectAnswer records or overwrites the answer to the current question.
func (s *Session) SelectAnswer(option int) error {
	if s.status != model.QuizInProgress {
		return fmt.Errorf("%w: quiz is %s", model.ErrPrecondition, s.status)
	}
	n := len(s.questions[s.current].Options)
	if option < 0 || option >= n {
		return fmt.Errorf("%w: option %d outside [0,%d)", model.ErrInvalidIndex, option, n)
	}
	s.answers[s.current] = option
	return nil
}

// Advance moves to the next question, or completes the quiz from the last one.
// The current question must already be answered.
func (s *Session) Advance() error {
	if s.status != model.QuizInProgress {
		return fmt.Errorf("%w: quiz is %s", model.ErrPrecondition, s.status)
	}
	if _, ok := s.answers[s.current]; !ok {
		return fmt.Errorf("%w: question %d is unanswered", model.ErrPrecondition, s.current)
	}
	if s.current < len(s.questions)-1 {
		s.current++
		return nil
	}
	s.status = model.QuizCompleted
	s.score = s.computeScore()
	return nil
}

// Retreat moves back one question, keeping recorded answers.
func (s *Session) Retreat() error {
	if s.status != model.QuizInProgress {
		return fmt.Errorf("%w: quiz is %s", model.ErrPrecondition, s.status)
	}
	if s.current == 0 {
		return fmt.Errorf("%w: already at the first question", model.ErrPrecondition)
	}
	s.current--
	return nil
}

// Restart resets the session to its initial state with the same questions.
func (s *Session) Restart() {
	s.current = 0
	s.answers = make(map[int]int)
	s.status = model.QuizInProgress
	s.score = 0
}

func (s *Session) computeScore() int {
	score := 0
	for i, q := range s.questions {
		if a, ok := s.answers[i]; ok && a == *q.CorrectIndex {
			score++
		}
	}
	return score
}

// Status reports the current state.
func (s *Session) Status() model.QuizStatus { return s.status }

// CurrentIndex is the position of the current question.
func (s *Session) CurrentIndex() int { return s.current }

// Score is the number of correct answers; zero until completed.
func (s *Session) Score() int { return s.score }

// Len is the number of questions in the session.
func (s *Session) Len() int { return len(s.questions) }

// Question returns a copy of the i-th question.
func (s *Session) Question(i int) model.Question { return s.questions[i].Clone() }

// Answer returns the recorded option for question i, if any.
func (s *Session) Answer(i int) (int, bool) {
	a, ok := s.answers[i]
	return a, ok
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Status:       s.status,
		CurrentIndex: s.current,
		Current:      s.questions[s.current].Clone(),
		Progress:     float64(s.current+1) / float64(len(s.questions)),
		Answers:      maps.Clone(s.answers),
		Score:        s.score,
		Total:        len(s.questions),
	}
}
