// Package store persists Diff rows and their report sources in SQLite
// (§3 data model, §6.1 schema of the specification), the same
// database/sql + mattn/go-sqlite3 pattern the ingestor uses for user
// persistence.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/copypatrol/copypatrol-go/internal/models"
)

// Store manages diff and report-source persistence in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path. The schema is
// created separately, by CreateTables.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writers
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTables creates the diffs/report_sources schema if it doesn't exist
// (§6.1, the "db --create-tables" CLI action).
func (s *Store) CreateTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS diffs (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		project           TEXT NOT NULL,
		lang              TEXT NOT NULL,
		page_namespace    INTEGER NOT NULL,
		page_title        TEXT NOT NULL,
		rev_id            INTEGER NOT NULL,
		rev_parent_id     INTEGER NOT NULL DEFAULT 0,
		rev_timestamp     TEXT NOT NULL,
		rev_user_text     TEXT NOT NULL,
		submission_id     TEXT,
		status            INTEGER NOT NULL,
		status_timestamp  TEXT,
		status_user_text  TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS ix_diffs_rev ON diffs(project, lang, rev_id);
	CREATE INDEX IF NOT EXISTS idx_diffs_status ON diffs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_diffs_submission_id ON diffs(submission_id);

	CREATE TABLE IF NOT EXISTS report_sources (
		source_id      INTEGER PRIMARY KEY,
		submission_id  TEXT NOT NULL,
		description    TEXT NOT NULL,
		url            TEXT,
		percent        REAL NOT NULL,
		UNIQUE(source_id, submission_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sources_submission_id ON report_sources(submission_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const timestampLayout = "20060102150405" // 14-char MediaWiki timestamp

// AddRevision inserts a new diff row in StatusUnsubmitted, the entry point
// for every revision the stream ingester accepts (§4.1, §6.1).
func (s *Store) AddRevision(d *models.Diff) error {
	d.Status = models.StatusUnsubmitted
	result, err := s.db.Exec(`
		INSERT INTO diffs (project, lang, page_namespace, page_title, rev_id,
		                    rev_parent_id, rev_timestamp, rev_user_text, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Project, d.Lang, d.PageNamespace, d.PageTitle, d.RevID,
		d.RevParentID, d.RevTimestamp.UTC().Format(timestampLayout), d.RevUserText, int8(d.Status),
	)
	if err != nil {
		return fmt.Errorf("insert diff: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("diff id: %w", err)
	}
	d.ID = id
	return nil
}

// DiffsByStatus returns every diff row at the given status, oldest first.
func (s *Store) DiffsByStatus(status models.Status) ([]*models.Diff, error) {
	rows, err := s.db.Query(`
		SELECT id, project, lang, page_namespace, page_title, rev_id, rev_parent_id,
		       rev_timestamp, rev_user_text, submission_id, status, status_timestamp, status_user_text
		FROM diffs WHERE status = ? ORDER BY id ASC`, int8(status))
	if err != nil {
		return nil, fmt.Errorf("query diffs by status: %w", err)
	}
	defer rows.Close()

	var diffs []*models.Diff
	for rows.Next() {
		d, err := scanDiff(rows)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

// UpdateStatus transitions a diff to a new status, recording the actor and
// timestamp of the transition (§3.2 status lifecycle).
func (s *Store) UpdateStatus(revID uint64, status models.Status, userText string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE diffs SET status = ?, status_timestamp = ?, status_user_text = ? WHERE rev_id = ?`,
		int8(status), at.UTC().Format(timestampLayout), userText, revID,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return checkRowsAffected(result, "revision not found")
}

// SetSubmissionID records the similarity-service submission id assigned to
// a diff when its submission is created (§4.3). An empty submissionID
// clears the column to NULL.
func (s *Store) SetSubmissionID(revID uint64, submissionID string) error {
	var value any = submissionID
	if submissionID == "" {
		value = nil
	}
	result, err := s.db.Exec(`UPDATE diffs SET submission_id = ? WHERE rev_id = ?`, value, revID)
	if err != nil {
		return fmt.Errorf("set submission id: %w", err)
	}
	return checkRowsAffected(result, "revision not found")
}

// RemoveRevision deletes a diff row and any report sources attached to its
// submission, the "db --remove-revision" CLI action (§6.3).
func (s *Store) RemoveRevision(revID uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var submissionID sql.NullString
	if err := tx.QueryRow(`SELECT submission_id FROM diffs WHERE rev_id = ?`, revID).Scan(&submissionID); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("revision not found")
		}
		return err
	}
	if _, err := tx.Exec(`DELETE FROM diffs WHERE rev_id = ?`, revID); err != nil {
		return err
	}
	if submissionID.Valid {
		if _, err := tx.Exec(`DELETE FROM report_sources WHERE submission_id = ?`, submissionID.String); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveSubmission deletes every diff row (and report sources) tied to a
// similarity-service submission id, the "db --remove-submission" CLI
// action (§6.3).
func (s *Store) RemoveSubmission(submissionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM diffs WHERE submission_id = ?`, submissionID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM report_sources WHERE submission_id = ?`, submissionID); err != nil {
		return err
	}
	return tx.Commit()
}

// AddSources replaces the report sources attached to a submission.
func (s *Store) AddSources(submissionID string, sources []models.Source) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM report_sources WHERE submission_id = ?`, submissionID); err != nil {
		return err
	}
	for _, src := range sources {
		if _, err := tx.Exec(`
			INSERT INTO report_sources (source_id, submission_id, description, url, percent)
			VALUES (?, ?, ?, ?, ?)`,
			src.SourceID, submissionID, src.Description, src.URL, src.Percent,
		); err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
	}
	return tx.Commit()
}

// ReadyDiffsSince returns every READY diff whose status transition happened
// at or after since, oldest first. Used by the digest scheduler to find
// what to summarize for operators.
func (s *Store) ReadyDiffsSince(since time.Time) ([]*models.Diff, error) {
	rows, err := s.db.Query(`
		SELECT id, project, lang, page_namespace, page_title, rev_id, rev_parent_id,
		       rev_timestamp, rev_user_text, submission_id, status, status_timestamp, status_user_text
		FROM diffs WHERE status = ? AND status_timestamp >= ? ORDER BY status_timestamp ASC`,
		int8(models.StatusReady), since.UTC().Format(timestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query ready diffs: %w", err)
	}
	defer rows.Close()

	var diffs []*models.Diff
	for rows.Next() {
		d, err := scanDiff(rows)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

// SourcesBySubmission returns the report sources recorded for a submission.
func (s *Store) SourcesBySubmission(submissionID string) ([]models.Source, error) {
	rows, err := s.db.Query(`
		SELECT source_id, submission_id, description, url, percent
		FROM report_sources WHERE submission_id = ?`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var src models.Source
		var url sql.NullString
		if err := rows.Scan(&src.SourceID, &src.SubmissionID, &src.Description, &url, &src.Percent); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if url.Valid {
			src.URL = &url.String
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func scanDiff(rows *sql.Rows) (*models.Diff, error) {
	d := &models.Diff{}
	var revTimestamp string
	var submissionID, statusTimestamp, statusUserText sql.NullString
	var status int8

	if err := rows.Scan(
		&d.ID, &d.Project, &d.Lang, &d.PageNamespace, &d.PageTitle, &d.RevID, &d.RevParentID,
		&revTimestamp, &d.RevUserText, &submissionID, &status, &statusTimestamp, &statusUserText,
	); err != nil {
		return nil, fmt.Errorf("scan diff: %w", err)
	}

	d.Status = models.Status(status)
	if ts, err := time.Parse(timestampLayout, revTimestamp); err == nil {
		d.RevTimestamp = ts
	}
	if submissionID.Valid {
		d.SubmissionID = &submissionID.String
	}
	if statusTimestamp.Valid {
		if ts, err := time.Parse(timestampLayout, statusTimestamp.String); err == nil {
			d.StatusTimestamp = &ts
		}
	}
	if statusUserText.Valid {
		d.StatusUserText = &statusUserText.String
	}
	return d, nil
}

func checkRowsAffected(result sql.Result, notFoundMsg string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s", notFoundMsg)
	}
	return nil
}
