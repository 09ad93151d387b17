package model

import "time"

// Export is the top-level JSON structure written by the export command.
type Export struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	CatalogVersion string         `json:"catalog_version,omitempty"`
	Exams          []ExamExport   `json:"exams"`
	Reports        []ScoredReport `json:"unlinked_reports,omitempty"`
}

// ExamExport holds one stored exam and every report evaluated against it.
type ExamExport struct {
	Exam    Exam           `json:"exam"`
	Reports []ScoredReport `json:"reports"`
}
