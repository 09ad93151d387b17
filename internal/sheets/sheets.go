// Package sheets stores uploaded answer sheets behind opaque handles and
// extracts their text for grading.
package sheets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/examprep/internal/model"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes = 10 << 20

var allowedExt = map[string]bool{
	".pdf": true,
	".txt": true,
}

// Store keeps uploads as files in a single directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates dir if needed. maxBytes <= 0 means DefaultMaxBytes.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Save writes r to a new file and returns its handle. The original filename
// only decides the format.
func (s *Store) Save(filename string, r io.Reader) (model.SheetRef, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: unsupported answer sheet format %q", model.ErrValidation, ext)
	}
	ref := model.SheetRef(uuid.NewString() + ext)
	path := filepath.Join(s.dir, string(ref))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create sheet file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: answer sheet larger than %d bytes", model.ErrValidation, s.maxBytes)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("%w: answer sheet is empty", model.ErrValidation)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}

	slog.Info("stored answer sheet", "ref", ref, "bytes", n, "filename", filename)
	return ref, nil
}

// Text returns the plain text of the sheet behind ref.
func (s *Store) Text(ref model.SheetRef) (string, error) {
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: answer sheet %s", model.ErrNotFound, ref)
	}

	switch filepath.Ext(path) {
	case ".pdf":
		return pdfText(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read sheet: %w", err)
		}
		return string(data), nil
	}
}

// Remove deletes the sheet behind ref. Removing a missing sheet is not an error.
func (s *Store) Remove(ref model.SheetRef) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) path(ref model.SheetRef) (string, error) {
	name := string(ref)
	if name == "" || filepath.Base(name) != name || !allowedExt[filepath.Ext(name)] {
		return "", fmt.Errorf("%w: malformed answer sheet reference %q", model.ErrValidation, ref)
	}
	return filepath.Join(s.dir, name), nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
