package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rohmanhakim/crawl-engine/pkg/fileutil"
)

// DBFileName is the database file kept inside a job directory.
const DBFileName = "crawl.db"

// Store persists the seen set and the pending set of one crawl job, so that
// a crawl killed midway resumes from the same job directory.
// A single connection serializes every statement.
type Store struct {
	db     *sql.DB
	dir    string
	dbPath string
}

// Open opens or creates the job database in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if _, err := fileutil.EnsureDir(dir); err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseOpenFailed}
	}
	dbPath := filepath.Join(dir, DBFileName)

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseOpenFailed}
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dir: dir, dbPath: dbPath}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &StoreError{Message: fmt.Sprintf("enable WAL: %v", err), Cause: ErrCauseOpenFailed}
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, &StoreError{Message: fmt.Sprintf("create tables: %v", err), Cause: ErrCauseOpenFailed}
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	-- fingerprints of every request scheduled once
	CREATE TABLE IF NOT EXISTS seen (
		fingerprint TEXT PRIMARY KEY
	) WITHOUT ROWID;

	-- requests accepted but not yet handed to the downloader
	CREATE TABLE IF NOT EXISTS pending (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL,
		priority INTEGER NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_order ON pending(priority DESC, id ASC);
	CREATE INDEX IF NOT EXISTS idx_pending_origin ON pending(origin, priority DESC, id ASC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddSeen records fp and reports whether it was new.
func (s *Store) AddSeen(ctx context.Context, fp string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO seen(fingerprint) VALUES (?)", fp)
	if err != nil {
		return false, &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	return n == 1, nil
}

// Seen returns every recorded fingerprint.
func (s *Store) Seen(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM seen")
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	return out, nil
}

// Push appends a serialized request.
func (s *Store) Push(ctx context.Context, origin string, priority int, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pending(origin, priority, payload) VALUES (?, ?, ?)",
		origin, priority, payload)
	if err != nil {
		return &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	return nil
}

// Pop removes and returns the highest-priority payload, earliest first among
// equals. An empty origin pops across all origins.
func (s *Store) Pop(ctx context.Context, origin string) ([]byte, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	defer func() { _ = tx.Rollback() }()

	var row *sql.Row
	if origin == "" {
		row = tx.QueryRowContext(ctx,
			"SELECT id, payload FROM pending ORDER BY priority DESC, id ASC LIMIT 1")
	} else {
		row = tx.QueryRowContext(ctx,
			"SELECT id, payload FROM pending WHERE origin = ? ORDER BY priority DESC, id ASC LIMIT 1", origin)
	}

	var id int64
	var payload []byte
	if err := row.Scan(&id, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending WHERE id = ?", id); err != nil {
		return nil, false, &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, &StoreError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	return payload, true, nil
}

// Len counts pending requests; an empty origin counts all of them.
func (s *Store) Len(ctx context.Context, origin string) (int, error) {
	var n int
	var err error
	if origin == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending WHERE origin = ?", origin).Scan(&n)
	}
	if err != nil {
		return 0, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	return n, nil
}

// Origins lists origins with at least one pending request.
func (s *Store) Origins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT origin FROM pending ORDER BY origin")
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Cause: ErrCauseReadFailed}
	}
	return out, nil
}
