package store

import (
	"database/sql"
	"errors"
)

// Metadata keys.
const (
	KeyCatalogVersion     = "catalog_version"
	KeyCatalogFingerprint = "catalog_fingerprint"
)

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// RecordCatalog stores the version and fingerprint of the catalog in use.
// It reports whether the fingerprint differs from the previously recorded one;
// the first recording is not a change.
func (s *Store) RecordCatalog(version, fingerprint string) (changed bool, err error) {
	prev, err := s.GetMetadata(KeyCatalogFingerprint)
	if err != nil {
		return false, err
	}
	if err := s.SetMetadata(KeyCatalogVersion, version); err != nil {
		return false, err
	}
	if err := s.SetMetadata(KeyCatalogFingerprint, fingerprint); err != nil {
		return false, err
	}
	return prev != "" && prev != fingerprint, nil
}
