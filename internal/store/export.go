package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/examprep/internal/model"
)

// now is replaced in tests.
var now = time.Now

// ExportAll builds an export of every stored exam with its reports. Reports
// that are not tied to a stored exam, such as quizzes over hand-picked
// questions, are listed separately.
func (s *Store) ExportAll() (model.Export, error) {
	exams, err := s.ListExams(model.ExamFilter{})
	if err != nil {
		return model.Export{}, fmt.Errorf("list exams: %w", err)
	}
	reports, err := s.ListAllReports()
	if err != nil {
		return model.Export{}, fmt.Errorf("list reports: %w", err)
	}
	version, err := s.GetMetadata(KeyCatalogVersion)
	if err != nil {
		return model.Export{}, fmt.Errorf("read catalog version: %w", err)
	}

	byExam := make(map[string][]model.ScoredReport)
	for _, r := range reports {
		byExam[r.ExamID] = append(byExam[r.ExamID], r)
	}

	out := model.Export{
		GeneratedAt:    now(),
		CatalogVersion: version,
		Exams:          make([]model.ExamExport, 0, len(exams)),
	}
	for _, e := range exams {
		out.Exams = append(out.Exams, model.ExamExport{Exam: e, Reports: nonEmpty(byExam[e.ID])})
		delete(byExam, e.ID)
	}
	for _, r := range reports {
		if _, unlinked := byExam[r.ExamID]; unlinked {
			out.Reports = append(out.Reports, r)
		}
	}
	return out, nil
}

func nonEmpty(r []model.ScoredReport) []model.ScoredReport {
	if r == nil {
		return []model.ScoredReport{}
	}
	return r
}
