package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Preference operations

// GetPreference returns the raw value stored under key. ok is false when the
// key has never been set.
func (s *Store) GetPreference(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err, "failed to get preference %s", key)
	}
	return value, true, nil
}

// SetPreference inserts or replaces the value stored under key.
func (s *Store) SetPreference(key, value string) error {
	query := `
		INSERT OR REPLACE INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.Exec(query, key, value, time.Now().Format(time.RFC3339)); err != nil {
		return wrapErr(err, "failed to set preference %s", key)
	}
	return nil
}

// DeletePreference removes key. Deleting a missing key is not an error.
func (s *Store) DeletePreference(key string) error {
	if _, err := s.db.Exec("DELETE FROM preferences WHERE key = ?", key); err != nil {
		return wrapErr(err, "failed to delete preference %s", key)
	}
	return nil
}

// ListPreferences returns every stored preference.
func (s *Store) ListPreferences() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM preferences ORDER BY key")
	if err != nil {
		return nil, wrapErr(err, "failed to list preferences")
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[key] = value
	}
	return prefs, rows.Err()
}

// Export history operations

// InsertExportRun starts a new run record and returns its ID.
func (s *Store) InsertExportRun(kind string, total int) (int64, error) {
	query := `
		INSERT INTO export_runs (kind, started_at, total)
		VALUES (?, ?, ?)
	`
	result, err := s.db.Exec(query, kind, time.Now().Format(time.RFC3339), total)
	if err != nil {
		return 0, wrapErr(err, "failed to insert export run")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get export run ID: %w", err)
	}
	return id, nil
}

// FinishExportRun marks a run as finished. errMsg is empty on success.
func (s *Store) FinishExportRun(id int64, errMsg string) error {
	query := `UPDATE export_runs SET finished_at = ?, error = ? WHERE id = ?`
	if _, err := s.db.Exec(query, time.Now().Format(time.RFC3339), errMsg, id); err != nil {
		return wrapErr(err, "failed to finish export run %d", id)
	}
	return nil
}

// ListExportRuns returns the most recent runs, newest first. limit <= 0
// returns all of them.
func (s *Store) ListExportRuns(limit int) ([]*ExportRun, error) {
	query := `
		SELECT id, kind, started_at, COALESCE(finished_at, ''), total, COALESCE(error, '')
		FROM export_runs
		ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr(err, "failed to list export runs")
	}
	defer rows.Close()

	var runs []*ExportRun
	for rows.Next() {
		var run ExportRun
		var startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &run.Kind, &startedAt, &finishedAt, &run.Total, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan export run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at for run %d: %w", run.ID, err)
		}
		if finishedAt != "" {
			run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to parse finished_at for run %d: %w", run.ID, err)
			}
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// InsertExportedDocument records a document written by a run. A document
// that is written again replaces its previous record.
func (s *Store) InsertExportedDocument(doc *ExportedDocument) error {
	query := `
		INSERT OR REPLACE INTO exported_documents
		(uri, doc_key, run_id, package_name, label, version_code, version_name, file_name, size_bytes, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	key := doc.Key
	if key == "" {
		key = doc.URI
	}
	_, err := s.db.Exec(query,
		doc.URI,
		key,
		doc.RunID,
		doc.PackageName,
		doc.Label,
		doc.VersionCode,
		doc.VersionName,
		doc.FileName,
		doc.SizeBytes,
		doc.Checksum,
		doc.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return wrapErr(err, "failed to insert exported document %s", doc.URI)
	}
	return nil
}

const exportedDocumentColumns = `uri, doc_key, run_id, package_name, COALESCE(label, ''), COALESCE(version_code, 0),
		COALESCE(version_name, ''), file_name, COALESCE(size_bytes, -1), COALESCE(checksum, ''), created_at`

func scanExportedDocument(row interface{ Scan(...any) error }) (*ExportedDocument, error) {
	var doc ExportedDocument
	var createdAt string
	err := row.Scan(
		&doc.URI,
		&doc.Key,
		&doc.RunID,
		&doc.PackageName,
		&doc.Label,
		&doc.VersionCode,
		&doc.VersionName,
		&doc.FileName,
		&doc.SizeBytes,
		&doc.Checksum,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for %s: %w", doc.URI, err)
	}
	return &doc, nil
}

// GetExportedDocument returns the record for a document key.
func (s *Store) GetExportedDocument(key string) (*ExportedDocument, error) {
	query := "SELECT " + exportedDocumentColumns + " FROM exported_documents WHERE doc_key = ?"
	doc, err := scanExportedDocument(s.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("exported document %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get exported document %s", key)
	}
	return doc, nil
}

// ListExportedDocuments returns the documents written by a run in insertion
// order.
func (s *Store) ListExportedDocuments(runID int64) ([]*ExportedDocument, error) {
	query := "SELECT " + exportedDocumentColumns + " FROM exported_documents WHERE run_id = ? ORDER BY rowid"
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, wrapErr(err, "failed to list exported documents for run %d", runID)
	}
	defer rows.Close()

	var docs []*ExportedDocument
	for rows.Next() {
		doc, err := scanExportedDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exported document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteExportedDocument removes the record for a document key.
func (s *Store) DeleteExportedDocument(key string) error {
	if _, err := s.db.Exec("DELETE FROM exported_documents WHERE doc_key = ?", key); err != nil {
		return wrapErr(err, "failed to delete exported document %s", key)
	}
	return nil
}
