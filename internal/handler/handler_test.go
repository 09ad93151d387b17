package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examprep/internal/assembler"
	"github.com/pavelanni/examprep/internal/catalog"
	"github.com/pavelanni/examprep/internal/evaluator"
	"github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/sheets"
	"github.com/pavelanni/examprep/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, "i18n init:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fullMarksGrader awards every requested question its full marks.
type fullMarksGrader struct{}

func (fullMarksGrader) Grade(_ context.Context, exam model.Exam, req model.GradingRequest) (*model.GradingResponse, error) {
	resp := &model.GradingResponse{Strengths: []string{"everything"}}
	for _, ref := range req.SectionAwareQuestionIDs {
		q, ok := exam.Question(ref.QuestionID)
		if !ok {
			return nil, fmt.Errorf("question %s not in exam", ref.QuestionID)
		}
		resp.PerQuestion = append(resp.PerQuestion, model.QuestionOutcome{
			QuestionID: q.ID, Attempted: true, MarksObtained: q.Marks, MarksPossible: q.Marks,
		})
	}
	return resp, nil
}

type failingGrader struct{}

func (failingGrader) Grade(context.Context, model.Exam, model.GradingRequest) (*model.GradingResponse, error) {
	return nil, errors.New("model unavailable")
}

type testEnv struct {
	h         *Handler
	router    chi.Router
	cat       *catalog.Catalog
	uploadDir string
}

func newTestEnv(t *testing.T, grader evaluator.Grader) *testEnv {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	sh, err := sheets.NewStore(dir, sheets.DefaultMaxBytes)
	if err != nil {
		t.Fatalf("sheets.NewStore: %v", err)
	}
	if grader == nil {
		grader = fullMarksGrader{}
	}
	ev, err := evaluator.New(evaluator.WithGrader(grader))
	if err != nil {
		t.Fatalf("evaluator.New: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	h, err := New(Deps{
		Catalog:    cat,
		Assembler:  assembler.New(cat),
		Evaluator:  ev,
		Store:      st,
		Sheets:     sh,
		AdminGuard: BasicAuthGuard(hash),
	}, model.RuntimeConfig{MaxUploadBytes: sheets.DefaultMaxBytes})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{h: h, router: r, cat: cat, uploadDir: dir}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (env *testEnv) createExam(t *testing.T, subject string, chapters ...string) model.Exam {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/exams", createExamRequest{
		SubjectID: subject, ChapterIDs: chapters, TimeLimitMinutes: 90,
	})
	expectStatus(t, rec, http.StatusCreated)
	return decode[model.Exam](t, rec)
}

func TestSubjectsAndChapters(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/subjects", nil)
	expectStatus(t, rec, http.StatusOK)
	if subjects := decode[[]model.Subject](t, rec); len(subjects) != 2 {
		t.Errorf("expected 2 subjects, got %d", len(subjects))
	}

	rec = env.do(t, http.MethodGet, "/api/subjects/math/chapters", nil)
	expectStatus(t, rec, http.StatusOK)
	chapters := decode[[]model.Chapter](t, rec)
	if len(chapters) != 3 || chapters[0].ID != "algebra" {
		t.Errorf("unexpected chapters: %+v", chapters)
	}

	rec = env.do(t, http.MethodGet, "/api/subjects/art/chapters", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestCreateAndListExams(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/exams", createExamRequest{
		SubjectID: "math", ChapterIDs: []string{"calculus", "algebra"}, TimeLimitMinutes: 90,
	})
	expectStatus(t, rec, http.StatusCreated)
	if strings.Contains(rec.Body.String(), "correct_index") {
		t.Error("exam paper must not reveal answer keys")
	}
	exam := decode[model.Exam](t, rec)
	if loc := rec.Header().Get("Location"); loc != "/api/exams/"+exam.ID {
		t.Errorf("unexpected Location %q", loc)
	}
	if exam.TotalMarks != 100 || len(exam.Sections[model.SectionA]) != 5 {
		t.Errorf("unexpected exam: total %d, section A %d", exam.TotalMarks, len(exam.Sections[model.SectionA]))
	}
	env.createExam(t, "physics", "optics")

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?subject=math", 1},
		{"?chapter=calculus", 1},
		{"?subject=physics&chapter=calculus", 0},
	}
	for _, tt := range tests {
		t.Run("filter"+tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/exams"+tt.query, nil)
			expectStatus(t, rec, http.StatusOK)
			if got := decode[[]examSummary](t, rec); len(got) != tt.want {
				t.Errorf("expected %d exams, got %d", tt.want, len(got))
			}
		})
	}

	rec = env.do(t, http.MethodGet, "/api/exams/"+exam.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Exam](t, rec); got.ID != exam.ID || len(got.ChapterNames) != 2 {
		t.Errorf("unexpected exam: %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/exams/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestCreateExamValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body any
	}{
		{"bad time limit", createExamRequest{SubjectID: "math", ChapterIDs: []string{"algebra"}, TimeLimitMinutes: 60}},
		{"no chapters", createExamRequest{SubjectID: "math", TimeLimitMinutes: 90}},
		{"unknown subject", createExamRequest{SubjectID: "art", ChapterIDs: []string{"x"}, TimeLimitMinutes: 90}},
		{"unknown field", map[string]any{"subject": "math"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/exams", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.createExam(t, "math", "algebra")

	rec := env.do(t, http.MethodPost, "/api/quiz", startQuizRequest{ExamID: exam.ID})
	expectStatus(t, rec, http.StatusCreated)
	v := decode[quizView](t, rec)
	if v.Total != 5 || v.Status != model.QuizInProgress || v.Score != nil {
		t.Fatalf("unexpected quiz: %+v", v)
	}
	if v.Summary != "5 questions left." {
		t.Errorf("unexpected summary %q", v.Summary)
	}
	base := "/api/quiz/" + v.ID

	rec = env.do(t, http.MethodPost, base+"/advance", nil)
	expectStatus(t, rec, http.StatusConflict)
	rec = env.do(t, http.MethodPost, base+"/retreat", nil)
	expectStatus(t, rec, http.StatusConflict)
	rec = env.do(t, http.MethodPost, base+"/answer", answerRequest{Option: ptr(99)})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = env.do(t, http.MethodPost, base+"/answer", map[string]any{})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = env.do(t, http.MethodPost, base+"/report", nil)
	expectStatus(t, rec, http.StatusConflict)

	// Answer the first question wrong and the rest right.
	completeQuiz := func() quizView {
		t.Helper()
		for i := range v.Total {
			q, _ := env.cat.Question(exam.Sections[model.SectionA][i].ID)
			option := *q.CorrectIndex
			if i == 0 {
				option = (option + 1) % len(q.Options)
			}
			rec = env.do(t, http.MethodPost, base+"/answer", answerRequest{Option: &option})
			expectStatus(t, rec, http.StatusOK)
			rec = env.do(t, http.MethodPost, base+"/advance", nil)
			expectStatus(t, rec, http.StatusOK)
		}
		return decode[quizView](t, rec)
	}
	v = completeQuiz()
	if v.Status != model.QuizCompleted || v.Score == nil || *v.Score != 4 {
		t.Fatalf("unexpected completed quiz: %+v", v)
	}
	if v.Summary != "4 of 5 correct." {
		t.Errorf("unexpected summary %q", v.Summary)
	}
	rec = env.do(t, http.MethodPost, base+"/answer", answerRequest{Option: ptr(0)})
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(t, http.MethodPost, base+"/restart", nil)
	expectStatus(t, rec, http.StatusOK)
	v = decode[quizView](t, rec)
	if v.Status != model.QuizInProgress || v.CurrentIndex != 0 || len(v.Answers) != 0 {
		t.Errorf("unexpected state after restart: %+v", v)
	}
	if v = completeQuiz(); v.Status != model.QuizCompleted {
		t.Fatalf("expected completed quiz after second attempt, got %s", v.Status)
	}

	rec = env.do(t, http.MethodPost, base+"/report", nil)
	expectStatus(t, rec, http.StatusCreated)
	report := decode[model.ScoredReport](t, rec)
	if report.ExamID != exam.ID || report.Source != model.SourceQuiz || report.Percentage != 80 || report.Grade != "A" {
		t.Errorf("unexpected report: %+v", report)
	}
	if n := env.h.quizzes.size(); n != 0 {
		t.Errorf("expected reported quiz to leave the registry, %d left", n)
	}

	rec = env.do(t, http.MethodGet, "/api/reports/"+report.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = env.do(t, http.MethodPost, base+"/report", nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = env.do(t, http.MethodGet, base, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestQuizRegistryReleasesEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	qs := env.cat.QuestionsOfType(model.TypeSingleChoice)
	q := qs[0]

	for range 20 {
		rec := env.do(t, http.MethodPost, "/api/quiz", startQuizRequest{QuestionIDs: []string{q.ID}})
		expectStatus(t, rec, http.StatusCreated)
		base := "/api/quiz/" + decode[quizView](t, rec).ID
		expectStatus(t, env.do(t, http.MethodPost, base+"/answer", answerRequest{Option: q.CorrectIndex}), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodPost, base+"/advance", nil), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodPost, base+"/report", nil), http.StatusCreated)
	}
	if n := env.h.quizzes.size(); n != 0 {
		t.Errorf("expected empty registry after reports, got %d entries", n)
	}
}

func TestQuizRegistryExpiresIdle(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newRegistry()
	g.now = func() time.Time { return now }

	stale := g.add(&quizEntry{})
	now = now.Add(quizIdleTTL / 2)
	fresh := g.add(&quizEntry{})
	if _, err := g.get(stale); err != nil {
		t.Fatalf("get within ttl: %v", err)
	}

	now = now.Add(quizIdleTTL + time.Minute)
	if _, err := g.get(fresh); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected idle quiz to expire, got %v", err)
	}
	g.add(&quizEntry{})
	if n := g.size(); n != 1 {
		t.Errorf("expected only the new quiz after pruning, got %d", n)
	}
}

func TestStartQuizErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body startQuizRequest
		want int
	}{
		{"nothing", startQuizRequest{}, http.StatusBadRequest},
		{"both", startQuizRequest{ExamID: "x", QuestionIDs: []string{"x"}}, http.StatusBadRequest},
		{"unknown exam", startQuizRequest{ExamID: "missing"}, http.StatusNotFound},
		{"unknown question", startQuizRequest{QuestionIDs: []string{"nope"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/quiz", tt.body)
			expectStatus(t, rec, tt.want)
		})
	}

	rec := env.do(t, http.MethodGet, "/api/quiz/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestStartQuizFromQuestionIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	var ids []string
	for _, q := range env.cat.QuestionsOfType(model.TypeSingleChoice)[:2] {
		ids = append(ids, q.ID)
	}
	rec := env.do(t, http.MethodPost, "/api/quiz", startQuizRequest{QuestionIDs: ids})
	expectStatus(t, rec, http.StatusCreated)
	if v := decode[quizView](t, rec); v.Total != 2 || v.Question.ID != ids[0] || v.ExamID != "" {
		t.Errorf("unexpected quiz: %+v", v)
	}

	free := env.cat.QuestionsOfType(model.TypeShortAnswer)[0]
	rec = env.do(t, http.MethodPost, "/api/quiz", startQuizRequest{QuestionIDs: []string{free.ID}})
	expectStatus(t, rec, http.StatusBadRequest)
}

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile(answerSheetField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		io.WriteString(fw, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmission(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.createExam(t, "physics", "mechanics")
	path := "/api/exams/" + exam.ID + "/submission"

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, path, "answers.txt", "1) b\n2) F = ma"))
	expectStatus(t, rec, http.StatusCreated)
	report := decode[model.ScoredReport](t, rec)
	if report.Percentage != 100 || report.Grade != "A+" || report.Source != model.SourceUpload {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(report.PerQuestion) != 14 {
		t.Errorf("expected 14 outcomes, got %d", len(report.PerQuestion))
	}

	rec = env.do(t, http.MethodGet, "/api/exams/"+exam.ID+"/reports", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[[]model.ScoredReport](t, rec); len(got) != 1 || got[0].ID != report.ID {
		t.Errorf("expected the stored report, got %+v", got)
	}

	tests := []struct {
		name, path, filename string
		want                 int
	}{
		{"missing file", path, "", http.StatusBadRequest},
		{"unsupported type", path, "answers.exe", http.StatusBadRequest},
		{"unknown exam", "/api/exams/missing/submission", "answers.txt", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, uploadRequest(t, tt.path, tt.filename, "text"))
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestSubmissionGradingFailure(t *testing.T) {
	env := newTestEnv(t, failingGrader{})
	exam := env.createExam(t, "math", "geometry")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, "/api/exams/"+exam.ID+"/submission", "answers.txt", "answers"))
	expectStatus(t, rec, http.StatusBadGateway)

	entries, err := os.ReadDir(env.uploadDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed submission should not keep the sheet, found %d files", len(entries))
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createExam(t, "math", "algebra")

	tests := []struct {
		name       string
		user, pass string
		want       int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", AdminUser, "guess", http.StatusUnauthorized},
		{"wrong user", "root", "secret", http.StatusUnauthorized},
		{"admin", AdminUser, "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/export", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			expectStatus(t, rec, tt.want)
			if tt.want == http.StatusOK {
				if exp := decode[model.Export](t, rec); len(exp.Exams) != 1 {
					t.Errorf("expected 1 exported exam, got %d", len(exp.Exams))
				}
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/reports", nil)
	req.SetBasicAuth(AdminUser, "secret")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", model.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: x", model.ErrInvalidIndex), http.StatusBadRequest},
		{fmt.Errorf("%w: x", model.ErrPrecondition), http.StatusConflict},
		{fmt.Errorf("%w: x", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", model.ErrExternalGrading), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func ptr(i int) *int { return &i }
