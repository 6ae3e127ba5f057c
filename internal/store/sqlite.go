package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jiwoolab/mailvault/internal/model"
)

// ErrNotFound is returned when no email exists for the requested ID.
var ErrNotFound = errors.New("email not found")

// EmailStore persists normalized email records and their label
// associations in a local SQLite database.
type EmailStore struct {
	db *sqlx.DB
}

// NewEmailStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewEmailStore(dbPath string) (*EmailStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &EmailStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *EmailStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *EmailStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertEmails replace-inserts a batch of emails inside one transaction.
// Each email's label set is fully replaced: stale labels from a previous
// ingest of the same ID do not survive. Either the whole batch commits
// or none of it does. A zero-length batch is a no-op.
func (s *EmailStore) UpsertEmails(ctx context.Context, emails []model.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const upsertQuery = `
		INSERT OR REPLACE INTO emails (
			id, thread_id, subject, sender, recipient,
			date, body, snippet, internal_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	upsertStmt, err := tx.PreparexContext(ctx, upsertQuery)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer upsertStmt.Close()

	labelStmt, err := tx.PreparexContext(ctx,
		"INSERT OR IGNORE INTO email_labels (email_id, label) VALUES (?, ?)",
	)
	if err != nil {
		return 0, fmt.Errorf("preparing label statement: %w", err)
	}
	defer labelStmt.Close()

	for _, e := range emails {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM email_labels WHERE email_id = ?", e.ID,
		); err != nil {
			return 0, fmt.Errorf("clearing labels for email %s: %w", e.ID, err)
		}

		if _, err := upsertStmt.ExecContext(ctx,
			e.ID, e.ThreadID, e.Subject, e.Sender, e.Recipient,
			e.Date, e.Body, e.Snippet, e.InternalDate,
		); err != nil {
			return 0, fmt.Errorf("upserting email %s: %w", e.ID, err)
		}

		for _, label := range e.Labels {
			if _, err := labelStmt.ExecContext(ctx, e.ID, label); err != nil {
				return 0, fmt.Errorf("upserting label %q for email %s: %w", label, e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing email batch: %w", err)
	}
	return len(emails), nil
}

// List retrieves email summaries (no body), most recent first by
// provider timestamp, with labels aggregated from the join table.
func (s *EmailStore) List(ctx context.Context, limit, offset int) ([]model.Email, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT
			e.id, e.thread_id, e.subject, e.sender, e.recipient,
			e.date, e.snippet, e.internal_date,
			COALESCE(GROUP_CONCAT(el.label), '') AS labels
		FROM emails e
		LEFT JOIN email_labels el ON e.id = el.email_id
		GROUP BY e.id
		ORDER BY e.internal_date DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		var (
			e      model.Email
			labels string
		)
		err := rows.Scan(
			&e.ID, &e.ThreadID, &e.Subject, &e.Sender, &e.Recipient,
			&e.Date, &e.Snippet, &e.InternalDate, &labels,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning email row: %w", err)
		}
		e.Labels = splitLabels(labels)
		emails = append(emails, e)
	}

	return emails, rows.Err()
}

// GetByID retrieves the full record for one email, including its body.
func (s *EmailStore) GetByID(ctx context.Context, id string) (*model.Email, error) {
	const query = `
		SELECT
			e.id, e.thread_id, e.subject, e.sender, e.recipient,
			e.date, e.body, e.snippet, e.internal_date,
			COALESCE(GROUP_CONCAT(el.label), '') AS labels
		FROM emails e
		LEFT JOIN email_labels el ON e.id = el.email_id
		WHERE e.id = ?
		GROUP BY e.id`

	var (
		e      model.Email
		labels string
	)
	err := s.db.QueryRowxContext(ctx, query, id).Scan(
		&e.ID, &e.ThreadID, &e.Subject, &e.Sender, &e.Recipient,
		&e.Date, &e.Body, &e.Snippet, &e.InternalDate, &labels,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting email %s: %w", id, err)
	}
	e.Labels = splitLabels(labels)

	return &e, nil
}

// Count returns the total number of cached emails.
func (s *EmailStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM emails"); err != nil {
		return 0, fmt.Errorf("counting emails: %w", err)
	}
	return count, nil
}

// Sample returns one arbitrary email record, or nil when the cache is
// empty. Used by health checks.
func (s *EmailStore) Sample(ctx context.Context) (*model.Email, error) {
	var e model.Email
	err := s.db.QueryRowxContext(ctx,
		"SELECT id, thread_id, subject, sender, recipient, date, body, snippet, internal_date FROM emails LIMIT 1",
	).Scan(
		&e.ID, &e.ThreadID, &e.Subject, &e.Sender, &e.Recipient,
		&e.Date, &e.Body, &e.Snippet, &e.InternalDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sampling emails: %w", err)
	}
	return &e, nil
}

// splitLabels converts a GROUP_CONCAT aggregate back into a label slice.
func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
