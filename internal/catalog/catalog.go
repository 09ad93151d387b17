// Package catalog holds the immutable content bank of subjects, chapters,
// concepts and questions. A Catalog is loaded once and is safe for any number
// of concurrent readers.
package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pavelanni/examprep/internal/model"
)

//go:embed default_catalog.json
var defaultPayload []byte

// Payload is the on-disk shape of a catalog file.
type Payload struct {
	Version   string           `json:"version"`
	Subjects  []model.Subject  `json:"subjects"`
	Chapters  []model.Chapter  `json:"chapters"`
	Concepts  []model.Concept  `json:"concepts"`
	Questions []model.Question `json:"questions"`
}

type chapterKey struct {
	subjectID string
	chapterID string
}

// Catalog is the read-only content repository.
type Catalog struct {
	version     string
	fingerprint string

	subjects  []model.Subject
	chapters  []model.Chapter
	concepts  []model.Concept
	questions []model.Question

	subjectIdx  map[string]int
	chapterIdx  map[chapterKey]int
	conceptIdx  map[string]int
	questionIdx map[string]int
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultPayload))
}

// LoadFile reads and validates a catalog JSON file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a whole catalog payload and validates it.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %v", model.ErrValidation, err)
	}
	c, err := New(p)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	c.fingerprint = hex.EncodeToString(sum[:])
	return c, nil
}

// New builds a catalog from an in-memory payload. The payload is copied.
func New(p Payload) (*Catalog, error) {
	c := &Catalog{
		version:     p.Version,
		subjectIdx:  make(map[string]int, len(p.Subjects)),
		chapterIdx:  make(map[chapterKey]int, len(p.Chapters)),
		conceptIdx:  make(map[string]int, len(p.Concepts)),
		questionIdx: make(map[string]int, len(p.Questions)),
	}

	for _, s := range p.Subjects {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: subject with empty id", model.ErrValidation)
		}
		if _, dup := c.subjectIdx[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate subject %q", model.ErrValidation, s.ID)
		}
		c.subjectIdx[s.ID] = len(c.subjects)
		c.subjects = append(c.subjects, s)
	}

	for _, ch := range p.Chapters {
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: chapter with empty id in subject %q", model.ErrValidation, ch.SubjectID)
		}
		if _, ok := c.subjectIdx[ch.SubjectID]; !ok {
			return nil, fmt.Errorf("%w: chapter %q references unknown subject %q", model.ErrValidation, ch.ID, ch.SubjectID)
		}
		key := chapterKey{ch.SubjectID, ch.ID}
		if _, dup := c.chapterIdx[key]; dup {
			return nil, fmt.Errorf("%w: duplicate chapter %q in subject %q", model.ErrValidation, ch.ID, ch.SubjectID)
		}
		c.chapterIdx[key] = len(c.chapters)
		c.chapters = append(c.chapters, ch)
	}

	for _, co := range p.Concepts {
		if co.ID == "" {
			return nil, fmt.Errorf("%w: concept with empty id", model.ErrValidation)
		}
		if _, dup := c.conceptIdx[co.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate concept %q", model.ErrValidation, co.ID)
		}
		c.conceptIdx[co.ID] = len(c.concepts)
		c.concepts = append(c.concepts, co)
	}

	for _, q := range p.Questions {
		if err := c.validateQuestion(q); err != nil {
			return nil, err
		}
		c.questionIdx[q.ID] = len(c.questions)
		c.questions = append(c.questions, q.Clone())
	}

	return c, nil
}

func (c *Catalog) validateQuestion(q model.Question) error {
	if q.ID == "" {
		return fmt.Errorf("%w: question with empty id", model.ErrValidation)
	}
	if _, dup := c.questionIdx[q.ID]; dup {
		return fmt.Errorf("%w: duplicate question %q", model.ErrValidation, q.ID)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: question %q has unknown type %q", model.ErrValidation, q.ID, q.Type)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("%w: question %q must carry positive marks", model.ErrValidation, q.ID)
	}
	if _, ok := c.chapterIdx[chapterKey{q.SubjectID, q.ChapterID}]; !ok {
		return fmt.Errorf("%w: question %q references unknown chapter %q/%q", model.ErrValidation, q.ID, q.SubjectID, q.ChapterID)
	}
	if q.ConceptID != "" {
		i, ok := c.conceptIdx[q.ConceptID]
		if !ok {
			return fmt.Errorf("%w: question %q references unknown concept %q", model.ErrValidation, q.ID, q.ConceptID)
		}
		if c.concepts[i].ChapterID != q.ChapterID {
			return fmt.Errorf("%w: question %q concept %q is not in chapter %q", model.ErrValidation, q.ID, q.ConceptID, q.ChapterID)
		}
	}

	if q.Type == model.TypeSingleChoice {
		if len(q.Options) == 0 || q.CorrectIndex == nil {
			return fmt.Errorf("%w: single-choice question %q needs options and correct_index", model.ErrValidation, q.ID)
		}
		if *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("%w: question %q correct_index %d out of range [0,%d)", model.ErrValidation, q.ID, *q.CorrectIndex, len(q.Options))
		}
		return nil
	}
	if len(q.Options) > 0 || q.CorrectIndex != nil {
		return fmt.Errorf("%w: %s question %q must not carry options", model.ErrValidation, q.Type, q.ID)
	}
	return nil
}

// Version is the catalog payload version string.
func (c *Catalog) Version() string { return c.version }

// Fingerprint is the sha256 of the raw payload, empty for catalogs built with New.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// Subjects returns all subjects in catalog order.
func (c *Catalog) Subjects() []model.Subject {
	return append([]model.Subject(nil), c.subjects...)
}

// Subject looks up a subject by id.
func (c *Catalog) Subject(id string) (model.Subject, bool) {
	i, ok := c.subjectIdx[id]
	if !ok {
		return model.Subject{}, false
	}
	return c.subjects[i], true
}

// Chapters returns all chapters in catalog order.
func (c *Catalog) Chapters() []model.Chapter {
	return append([]model.Chapter(nil), c.chapters...)
}

// Chapter looks up a chapter within a subject.
func (c *Catalog) Chapter(subjectID, chapterID string) (model.Chapter, bool) {
	i, ok := c.chapterIdx[chapterKey{subjectID, chapterID}]
	if !ok {
		return model.Chapter{}, false
	}
	return c.chapters[i], true
}

// Concepts returns all concepts in catalog order.
func (c *Catalog) Concepts() []model.Concept {
	return append([]model.Concept(nil), c.concepts...)
}

// Questions returns copies of all questions in catalog order.
func (c *Catalog) Questions() []model.Question {
	out := make([]model.Question, len(c.questions))
	for i, q := range c.questions {
		out[i] = q.Clone()
	}
	return out
}

// Question looks up a question by id and returns a copy.
func (c *Catalog) Question(id string) (model.Question, bool) {
	i, ok := c.questionIdx[id]
	if !ok {
		return model.Question{}, false
	}
	return c.questions[i].Clone(), true
}

// QuestionsOfType returns copies of every question of type t in catalog order.
func (c *Catalog) QuestionsOfType(t model.QuestionType) []model.Question {
	var out []model.Question
	for _, q := range c.questions {
		if q.Type == t {
			out = append(out, q.Clone())
		}
	}
	return out
}
