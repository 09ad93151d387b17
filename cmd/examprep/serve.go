package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examprep/internal/assembler"
	"github.com/pavelanni/examprep/internal/evaluator"
	"github.com/pavelanni/examprep/internal/handler"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/llm"
	"github.com/pavelanni/examprep/internal/llm/prompts"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/sheets"
	"github.com/pavelanni/examprep/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examprep.db", "SQLite database path")
	f.StringP("catalog", "c", "", "Catalog JSON file (empty = built-in catalog)")
	f.String("upload-dir", "uploads", "Directory for uploaded answer sheets")
	f.Int64("max-upload-bytes", sheets.DefaultMaxBytes, "Maximum answer sheet size in bytes")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Duration("grading-timeout", evaluator.DefaultGradingTimeout, "Time limit for grading one answer sheet")
	f.StringSlice("grade-bands", nil, "Grade thresholds as LABEL=MIN, e.g. A+=90,A=80,...,F=0 (empty = built-in scale)")
	f.StringP("lang", "l", "en", "Default feedback language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /prep)")
	f.String("admin-password", "", "Password for the admin API (empty disables it; or set EXAMPREP_ADMIN_PASSWORD)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (empty disables CORS)")
	addLogFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return err
	}

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	changed, err := db.RecordCatalog(cat.Version(), cat.Fingerprint())
	if err != nil {
		return fmt.Errorf("record catalog: %w", err)
	}
	if changed {
		slog.Warn("catalog changed since last run; stored exams keep their original questions",
			"version", cat.Version())
	}
	examCount, err := db.ExamCount()
	if err != nil {
		return fmt.Errorf("count exams: %w", err)
	}
	slog.Info("database opened", "path", v.GetString("db"), "exams", examCount)

	cfg := model.RuntimeConfig{
		BasePath:       normalizeBasePath(v.GetString("base-path")),
		UploadDir:      v.GetString("upload-dir"),
		MaxUploadBytes: v.GetInt64("max-upload-bytes"),
		GradingTimeout: v.GetDuration("grading-timeout"),
		PromptVariant:  strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant"))),
	}

	sheetStore, err := sheets.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	// Create LLM client.
	if !prompts.IsValidVariant(cfg.PromptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", cfg.PromptVariant)
		cfg.PromptVariant = string(prompts.PromptStandard)
	}
	llmClient, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		cfg.PromptVariant,
		sheetStore,
	)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := llmClient.Ping(pingCtx); err != nil {
		slog.Warn("LLM health check failed; answer-sheet grading is unavailable until it recovers", "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}
	cancel()

	scale, err := evaluator.ParseScale(v.GetStringSlice("grade-bands"))
	if err != nil {
		return fmt.Errorf("grade bands: %w", err)
	}
	ev, err := evaluator.New(
		evaluator.WithScale(scale),
		evaluator.WithGrader(llmClient),
		evaluator.WithTimeout(cfg.GradingTimeout),
	)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}

	guard, err := adminGuard(v.GetString("admin-password"))
	if err != nil {
		return err
	}

	h, err := handler.New(handler.Deps{
		Catalog:    cat,
		Assembler:  assembler.New(cat),
		Evaluator:  ev,
		Store:      db,
		Sheets:     sheetStore,
		AdminGuard: guard,
	}, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware())

	if cfg.BasePath != "" {
		r.Route(cfg.BasePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"catalog_version", cat.Version(),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"prompt_variant", cfg.PromptVariant,
		"lang", lang,
		"grading_timeout", cfg.GradingTimeout,
		"base_path", cfg.BasePath,
		"admin", guard != nil,
	)
	return http.ListenAndServe(addr, r)
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// adminGuard hashes the admin password once at startup. An empty password
// leaves the admin API unmounted.
func adminGuard(password string) (func(http.Handler) http.Handler, error) {
	if password == "" {
		slog.Info("admin API disabled: no admin password set")
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return handler.BasicAuthGuard(hash), nil
}
