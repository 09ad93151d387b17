package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examprep/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// maxSheetRunes bounds the answer sheet text sent to the model.
const maxSheetRunes = 20000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict awards marks only for complete, rigorous answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives generous partial credit.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// QuestionData is one exam question as shown to the grader.
type QuestionData struct {
	Section       model.Section
	ID            string
	Type          model.QuestionType
	Text          string
	Marks         int
	Options       []string
	CorrectOption string
}

// GradeData holds template data for answer-sheet grading prompts.
type GradeData struct {
	ExamID    string
	Questions []QuestionData
	Sheet     string
}

// Load parses the grading templates for every variant from fsys.
// It runs once; later calls return the first result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)
		for v := range validVariants {
			file := "templates/grade_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("grade").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			gradeTemplates[v] = tmpl
		}
	})
	return loadErr
}

// LoadEmbedded loads the templates compiled into the binary.
func LoadEmbedded() error {
	return Load(templateFS)
}

// BuildGradePrompt renders the grading prompt for variant. The sheet text is
// sanitized before it is placed in the prompt.
func BuildGradePrompt(variant PromptVariant, data GradeData) (string, error) {
	if gradeTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.Sheet = sanitizeSheet(data.Sheet)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeSheet(sheet string) string {
	sheet = studentAnswerRegex.ReplaceAllString(sheet, "")
	sheet = systemInstructionsRegex.ReplaceAllString(sheet, "")
	sheet = strings.TrimSpace(sheet)

	if sheet == "" {
		return "[No answers provided]"
	}

	if utf8.RuneCountInString(sheet) > maxSheetRunes {
		runes := []rune(sheet)
		sheet = string(runes[:maxSheetRunes]) + "\n\n[Answer sheet truncated due to length]"
	}
	return sheet
}
