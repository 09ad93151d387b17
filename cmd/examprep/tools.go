package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examprep/internal/assembler"
	"github.com/pavelanni/examprep/internal/store"
)

func assembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble a mock exam and print it as JSON",
		RunE:  runAssemble,
	}
	f := cmd.Flags()
	f.StringP("catalog", "c", "", "Catalog JSON file (empty = built-in catalog)")
	f.StringP("subject", "s", "", "Subject id (required)")
	f.StringSlice("chapter", nil, "Chapter ids (repeatable, at least one)")
	f.IntP("time-limit", "t", 90, "Time limit in minutes (80, 90 or 120)")
	f.Bool("save", false, "Also store the exam in the database")
	f.String("db", "examprep.db", "SQLite database path (with --save)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runAssemble(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return err
	}
	exam, err := assembler.New(cat).Assemble(v.GetString("subject"), v.GetStringSlice("chapter"), v.GetInt("time-limit"))
	if err != nil {
		return err
	}

	if v.GetBool("save") {
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if _, err := db.RecordCatalog(cat.Version(), cat.Fingerprint()); err != nil {
			return fmt.Errorf("record catalog: %w", err)
		}
		if err := db.SaveExam(exam); err != nil {
			return fmt.Errorf("save exam: %w", err)
		}
		slog.Info("saved exam", "id", exam.ID)
	}

	return writeJSONOutput(cmd, v.GetString("output"), exam)
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored exams and reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examprep.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	slog.Info("exporting", "exams", len(export.Exams), "unlinked_reports", len(export.Reports))
	return writeJSONOutput(cmd, v.GetString("output"), export)
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect question catalogs",
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog and report whether it can fill every exam section",
		RunE:  runCatalogCheck,
	}
	check.Flags().StringP("catalog", "c", "", "Catalog JSON file (empty = built-in catalog)")
	addLogFlags(check)
	cmd.AddCommand(check)
	return cmd
}

func runCatalogCheck(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cat, err := loadCatalog(v.GetString("catalog"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version:     %s\n", cat.Version())
	fmt.Fprintf(out, "fingerprint: %s\n", cat.Fingerprint())
	fmt.Fprintf(out, "subjects: %d  chapters: %d  concepts: %d  questions: %d\n",
		len(cat.Subjects()), len(cat.Chapters()), len(cat.Concepts()), len(cat.Questions()))

	short := 0
	for _, q := range assembler.Quotas {
		have := len(cat.QuestionsOfType(q.Type))
		status := "ok"
		if have < q.Items {
			status = "SHORT"
			short++
		}
		fmt.Fprintf(out, "section %s  %-13s %2d/%d  %s\n", q.Section, q.Type, have, q.Items, status)
	}
	if short > 0 {
		slog.Warn("catalog cannot fill every section; exams will be under-filled", "short_sections", short)
	}
	return nil
}

// writeJSONOutput writes v as indented JSON to path, or to the command's
// output when path is empty or "-".
func writeJSONOutput(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if path == "" || path == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
