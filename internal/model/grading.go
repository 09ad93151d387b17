package model

// SheetRef is an opaque handle to an uploaded answer sheet.
type SheetRef string

// SectionQuestionID ties a question id to the exam section it appeared in.
type SectionQuestionID struct {
	Section    Section `json:"section"`
	QuestionID string  `json:"question_id"`
}

// GradingRequest is sent to the external grading capability.
type GradingRequest struct {
	ExamID                  string              `json:"exam_id"`
	SectionAwareQuestionIDs []SectionQuestionID `json:"section_aware_question_ids"`
	UploadedAnswerReference SheetRef            `json:"uploaded_answer_reference"`
}

// GradingResponse is what the grading capability returns. It is authoritative
// for per-question marks and feedback.
type GradingResponse struct {
	PerQuestion      []QuestionOutcome `json:"per_question"`
	ImprovementAreas []string          `json:"improvement_areas"`
	Strengths        []string          `json:"strengths"`
}
