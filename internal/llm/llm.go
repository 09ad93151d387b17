// Package llm grades uploaded answer sheets with an OpenAI-compatible model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/model"
)

// SheetSource returns the extracted text of a stored answer sheet.
type SheetSource interface {
	Text(ref model.SheetRef) (string, error)
}

// Client wraps an OpenAI-compatible API client and implements the grading
// capability used by the evaluator.
type Client struct {
	api       *openai.Client
	model     string
	variant prompts.PromptVariant
	sheets  SheetSource
}

// New creates a new LLM grading client. An empty variant selects the
// standard prompt.
func New(baseURL, apiKey, modelName, variant string, sheets SheetSource) (*Client, error) {
	if variant == "" {
		variant = string(prompts.PromptStandard)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("%w: unknown prompt variant %q", model.ErrValidation, variant)
	}
	if err := prompts.LoadEmbedded(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
		sheets:  sheets,
	}, nil
}

// Ping checks that the API endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API unreachable: %w", err)
	}
	return nil
}

// gradeResult is the JSON shape the model is asked to return. Marks are
// floats because models sometimes award half marks.
type gradeResult struct {
	PerQuestion []struct {
		QuestionID    string  `json:"question_id"`
		Attempted     bool    `json:"attempted"`
		MarksObtained float64 `json:"marks_obtained"`
		MarksPossible int     `json:"marks_possible"`
		Feedback      string  `json:"feedback"`
	} `json:"per_question"`
	ImprovementAreas []string `json:"improvement_areas"`
	Strengths        []string `json:"strengths"`
}

// Grade marks the answer sheet referenced by req against the questions stored
// with exam.
func (c *Client) Grade(ctx context.Context, exam model.Exam, req model.GradingRequest) (*model.GradingResponse, error) {
	data, err := c.gradeData(exam, req)
	if err != nil {
		return nil, err
	}
	prompt, err := prompts.BuildGradePrompt(c.variant, data)
	if err != nil {
		return nil, fmt.Errorf("build grading prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM grading response", "exam_id", req.ExamID, "raw", raw)
	return parseGradeResult(raw, data.Questions)
}

func (c *Client) gradeData(exam model.Exam, req model.GradingRequest) (prompts.GradeData, error) {
	if c.sheets == nil {
		return prompts.GradeData{}, errors.New("grading client has no sheet source")
	}
	sheet, err := c.sheets.Text(req.UploadedAnswerReference)
	if err != nil {
		return prompts.GradeData{}, fmt.Errorf("read answer sheet: %w", err)
	}

	data := prompts.GradeData{ExamID: req.ExamID, Sheet: sheet}
	for _, ref := range req.SectionAwareQuestionIDs {
		q, ok := exam.Question(ref.QuestionID)
		if !ok {
			return prompts.GradeData{}, fmt.Errorf("%w: question %s in exam %s", model.ErrNotFound, ref.QuestionID, exam.ID)
		}
		qd := prompts.QuestionData{
			Section: ref.Section,
			ID:      q.ID,
			Type:    q.Type,
			Text:    q.Text,
			Marks:   q.Marks,
			Options: q.Options,
		}
		if q.CorrectIndex != nil && *q.CorrectIndex < len(q.Options) {
			qd.CorrectOption = q.Options[*q.CorrectIndex]
		}
		data.Questions = append(data.Questions, qd)
	}
	return data, nil
}

// parseGradeResult decodes the model output. Fractional marks are rounded and
// a missing marks_possible is taken from the question. Range and coverage
// checks are left to the evaluator.
func parseGradeResult(raw string, questions []prompts.QuestionData) (*model.GradingResponse, error) {
	var result gradeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	marks := make(map[string]int, len(questions))
	for _, q := range questions {
		marks[q.ID] = q.Marks
	}

	out := &model.GradingResponse{
		ImprovementAreas: result.ImprovementAreas,
		Strengths:        result.Strengths,
	}
	for _, pq := range result.PerQuestion {
		possible := pq.MarksPossible
		if possible == 0 {
			possible = marks[pq.QuestionID]
		}
		out.PerQuestion = append(out.PerQuestion, model.QuestionOutcome{
			QuestionID:    pq.QuestionID,
			Attempted:     pq.Attempted,
			MarksObtained: int(math.Round(pq.MarksObtained)),
			MarksPossible: possible,
			Feedback:      pq.Feedback,
		})
	}
	return out, nil
}
