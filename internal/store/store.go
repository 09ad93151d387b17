// Package store persists assembled exams and scored reports in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/examprep/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		subject_name TEXT NOT NULL,
		chapter_names TEXT NOT NULL DEFAULT '[]',
		time_limit INTEGER NOT NULL,
		total_marks INTEGER NOT NULL,
		sections TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_chapters (
		exam_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (exam_id, chapter_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		total_marks INTEGER NOT NULL,
		obtained_marks INTEGER NOT NULL,
		percentage INTEGER NOT NULL,
		grade TEXT NOT NULL,
		per_question TEXT NOT NULL,
		improvement_areas TEXT NOT NULL DEFAULT '[]',
		strengths TEXT NOT NULL DEFAULT '[]',
		evaluated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_exam ON reports(exam_id);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveExam stores an assembled exam and its chapter selection.
func (s *Store) SaveExam(e model.Exam) error {
	sections, err := json.Marshal(e.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	names, err := json.Marshal(e.ChapterNames)
	if err != nil {
		return fmt.Errorf("encode chapter names: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exams (id, subject_id, subject_name, chapter_names, time_limit, total_marks, sections, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SubjectID, e.SubjectName, string(names), e.TimeLimitMinutes, e.TotalMarks, string(sections), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert exam %s: %w", e.ID, err)
	}
	for i, ch := range e.ChapterIDs {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO exam_chapters (exam_id, chapter_id, position) VALUES (?, ?, ?)`,
			e.ID, ch, i,
		)
		if err != nil {
			return fmt.Errorf("insert exam chapter: %w", err)
		}
	}
	return tx.Commit()
}

// GetExam returns a stored exam by id.
func (s *Store) GetExam(id string) (model.Exam, error) {
	row := s.db.QueryRow(
		`SELECT id, subject_id, subject_name, chapter_names, time_limit, total_marks, sections, created_at
		 FROM exams WHERE id = ?`, id,
	)
	e, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, fmt.Errorf("%w: exam %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Exam{}, err
	}
	if e.ChapterIDs, err = s.examChapters(id); err != nil {
		return model.Exam{}, err
	}
	return e, nil
}

// ListExams returns stored exams matching f, newest first.
func (s *Store) ListExams(f model.ExamFilter) ([]model.Exam, error) {
	query := `SELECT id, subject_id, subject_name, chapter_names, time_limit, total_marks, sections, created_at
		FROM exams WHERE 1=1`
	var args []any
	if f.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.ChapterID != "" {
		query += ` AND EXISTS (SELECT 1 FROM exam_chapters c WHERE c.exam_id = exams.id AND c.chapter_id = ?)`
		args = append(args, f.ChapterID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range exams {
		if exams[i].ChapterIDs, err = s.examChapters(exams[i].ID); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

func (s *Store) examChapters(examID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT chapter_id FROM exam_chapters WHERE exam_id = ? ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(row scanner) (model.Exam, error) {
	var (
		e        model.Exam
		names    string
		sections string
	)
	if err := row.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &names, &e.TimeLimitMinutes, &e.TotalMarks, &sections, &e.CreatedAt); err != nil {
		return model.Exam{}, err
	}
	if err := json.Unmarshal([]byte(names), &e.ChapterNames); err != nil {
		return model.Exam{}, fmt.Errorf("decode chapter names of exam %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(sections), &e.Sections); err != nil {
		return model.Exam{}, fmt.Errorf("decode sections of exam %s: %w", e.ID, err)
	}
	return e, nil
}

// SaveReport stores a scored report. Reports are immutable; saving the
// same id twice is an error.
func (s *Store) SaveReport(r model.ScoredReport) error {
	perQuestion, err := json.Marshal(r.PerQuestion)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	areas, err := json.Marshal(nonNil(r.ImprovementAreas))
	if err != nil {
		return fmt.Errorf("encode improvement areas: %w", err)
	}
	strengths, err := json.Marshal(nonNil(r.Strengths))
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, exam_id, source, total_marks, obtained_marks, percentage, grade,
		 per_question, improvement_areas, strengths, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ExamID, r.Source, r.TotalMarks, r.ObtainedMarks, r.Percentage, r.Grade,
		string(perQuestion), string(areas), string(strengths), r.EvaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	return nil
}

const reportColumns = `id, exam_id, source, total_marks, obtained_marks, percentage, grade,
	per_question, improvement_areas, strengths, evaluated_at`

// GetReport returns a stored report by id.
func (s *Store) GetReport(id string) (model.ScoredReport, error) {
	r, err := scanReport(s.db.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoredReport{}, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
	}
	return r, err
}

// ListReports returns the reports evaluated against an exam, oldest first.
func (s *Store) ListReports(examID string) ([]model.ScoredReport, error) {
	return s.queryReports(`SELECT `+reportColumns+` FROM reports WHERE exam_id = ? ORDER BY evaluated_at, id`, examID)
}

// ListAllReports returns every stored report, newest first.
func (s *Store) ListAllReports() ([]model.ScoredReport, error) {
	return s.queryReports(`SELECT ` + reportColumns + ` FROM reports ORDER BY evaluated_at DESC, id`)
}

func (s *Store) queryReports(query string, args ...any) ([]model.ScoredReport, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []model.ScoredReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanReport(row scanner) (model.ScoredReport, error) {
	var (
		r                            model.ScoredReport
		perQuestion, areas, strength string
	)
	err := row.Scan(&r.ID, &r.ExamID, &r.Source, &r.TotalMarks, &r.ObtainedMarks, &r.Percentage, &r.Grade,
		&perQuestion, &areas, &strength, &r.EvaluatedAt)
	if err != nil {
		return model.ScoredReport{}, err
	}
	for _, f := range []struct {
		raw  string
		dest any
	}{
		{perQuestion, &r.PerQuestion},
		{areas, &r.ImprovementAreas},
		{strength, &r.Strengths},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dest); err != nil {
			return model.ScoredReport{}, fmt.Errorf("decode report %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// ExamCount returns the number of stored exams.
func (s *Store) ExamCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
