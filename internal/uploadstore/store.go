// Package uploadstore persists what ircup needs across runs: tus resume
// URLs keyed by file fingerprint, and a history of completed uploads.
// Tokens are never written here.
package uploadstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// StaleResumeAge is how long an unfinished upload stays resumable. tus
// servers typically expire partial uploads well before this.
const StaleResumeAge = 7 * 24 * time.Hour

// defaultListLimit applies when List is called with a non-positive limit.
const defaultListLimit = 20

const (
	sqlGetResume = `SELECT url FROM resume_urls WHERE fingerprint = ?`

	sqlUpsertResume = `INSERT INTO resume_urls (fingerprint, url, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
		 url = excluded.url,
		 updated_at = excluded.updated_at`

	sqlDeleteResume = `DELETE FROM resume_urls WHERE fingerprint = ?`

	sqlDeleteStaleResume = `DELETE FROM resume_urls WHERE updated_at < ?`

	sqlInsertUpload = `INSERT INTO uploads
		(id, name, path, size, mime_type, upload_url, share_url, network, target,
		 authorized, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListUploads = `SELECT id, name, path, size, mime_type, upload_url, share_url,
		network, target, authorized, uploaded_at
		FROM uploads ORDER BY uploaded_at DESC, id LIMIT ?`
)

// Store owns the SQLite database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the database at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("uploadstore: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("upload store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("uploadstore: closing database: %w", err)
	}

	return nil
}

// ResumeURL returns the tus upload URL remembered for fingerprint.
func (s *Store) ResumeURL(ctx context.Context, fingerprint string) (string, bool, error) {
	var u string

	err := s.db.QueryRowContext(ctx, sqlGetResume, fingerprint).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("uploadstore: reading resume url: %w", err)
	}

	return u, true, nil
}

// SaveResumeURL remembers the tus upload URL for fingerprint.
func (s *Store) SaveResumeURL(ctx context.Context, fingerprint, uploadURL string) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertResume, fingerprint, uploadURL, s.nowFunc().Unix()); err != nil {
		return fmt.Errorf("uploadstore: saving resume url: %w", err)
	}

	return nil
}

// DeleteResumeURL forgets fingerprint. Unknown fingerprints are not an error.
func (s *Store) DeleteResumeURL(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteResume, fingerprint); err != nil {
		return fmt.Errorf("uploadstore: deleting resume url: %w", err)
	}

	return nil
}

// CleanStale drops resume URLs last touched more than maxAge ago and
// returns how many were removed.
func (s *Store) CleanStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.nowFunc().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx, sqlDeleteStaleResume, cutoff)
	if err != nil {
		return 0, fmt.Errorf("uploadstore: cleaning stale resume urls: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("uploadstore: counting cleaned rows: %w", err)
	}

	if n > 0 {
		s.logger.Info("removed stale resume entries", slog.Int64("count", n))
	}

	return n, nil
}

// Entry is one completed upload.
type Entry struct {
	ID         string
	Name       string
	Path       string
	Size       int64
	MIMEType   string
	UploadURL  string
	ShareURL   string
	Network    string
	Target     string
	Authorized bool
	UploadedAt time.Time
}

// Record appends e to the history, filling in ID and UploadedAt when unset.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	if e.UploadedAt.IsZero() {
		e.UploadedAt = s.nowFunc().UTC()
	}

	_, err := s.db.ExecContext(ctx, sqlInsertUpload,
		e.ID, e.Name, e.Path, e.Size, e.MIMEType, e.UploadURL, e.ShareURL,
		e.Network, e.Target, e.Authorized, e.UploadedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("uploadstore: recording upload %s: %w", e.Name, err)
	}

	return nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlListUploads, limit)
	if err != nil {
		return nil, fmt.Errorf("uploadstore: listing uploads: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e          Entry
			uploadedAt int64
		)

		if err := rows.Scan(&e.ID, &e.Name, &e.Path, &e.Size, &e.MIMEType, &e.UploadURL,
			&e.ShareURL, &e.Network, &e.Target, &e.Authorized, &uploadedAt); err != nil {
			return nil, fmt.Errorf("uploadstore: scanning upload row: %w", err)
		}

		e.UploadedAt = time.Unix(0, uploadedAt).UTC()
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uploadstore: iterating upload rows: %w", err)
	}

	return out, nil
}
