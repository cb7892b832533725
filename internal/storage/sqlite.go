// Package storage provides the SQLite implementation of Storage.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/companion/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db    *sql.DB
	clock func() time.Time
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithClock replaces the wall clock used to stamp appended entries.
func WithClock(clock func() time.Time) Option {
	return func(s *SQLiteStorage) { s.clock = clock }
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Write transactions take the
// database lock at BEGIN, so check-then-write sequences inside one transaction are atomic.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		history_key TEXT NOT NULL,
		companion_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_key_ts ON history(history_key, ts, seq);
	CREATE INDEX IF NOT EXISTS idx_history_companion ON history(companion_id);

	CREATE TABLE IF NOT EXISTS companions (
		id TEXT PRIMARY KEY,
		owner_id TEXT,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL,
		seed TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS companion_sources (
		companion_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT,
		content TEXT,
		url TEXT,
		path TEXT,
		PRIMARY KEY (companion_id, source_id),
		FOREIGN KEY (companion_id) REFERENCES companions(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, op, err)
}

// Append writes one history entry. The timestamp is the current time in milliseconds,
// raised to the newest existing timestamp of the key if the clock went backwards.
// Entries sharing a timestamp keep insertion order.
func (s *SQLiteStorage) Append(ctx context.Context, key models.CompanionKey, text string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	hk := key.HistoryKey()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (history_key, companion_id, text, ts)
		 SELECT ?, ?, ?, MAX(?, COALESCE((SELECT MAX(ts) FROM history WHERE history_key = ?), 0))`,
		hk, key.CompanionID, text, s.clock().UnixMilli(), hk,
	)
	if err != nil {
		return storeErr("append", err)
	}
	return nil
}

// ReadRecent returns the newest limit entries for key in chronological order.
func (s *SQLiteStorage) ReadRecent(ctx context.Context, key models.CompanionKey, limit int) ([]models.HistoryEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.HistoryEntry{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, ts FROM (
			SELECT text, ts, seq FROM history
			WHERE history_key = ?
			ORDER BY ts DESC, seq DESC
			LIMIT ?
		 ) ORDER BY ts ASC, seq ASC`,
		key.HistoryKey(), limit,
	)
	if err != nil {
		return nil, storeErr("read recent", err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0, limit)
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.Text, &e.Timestamp); err != nil {
			return nil, storeErr("scan history", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read recent", err)
	}
	return entries, nil
}

// SeedIfEmpty writes the seed dialogue when the log for key is empty, one entry per
// delimiter-separated line (blank lines included) with timestamps 0, 1, 2, ...
// The emptiness check and the inserts share one immediate transaction, so concurrent callers
// seed at most once.
func (s *SQLiteStorage) SeedIfEmpty(ctx context.Context, key models.CompanionKey, seed, delimiter string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(seed) == "" {
		return nil
	}
	if delimiter == "" {
		delimiter = "\n"
	}
	hk := key.HistoryKey()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin seed", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM history WHERE history_key = ?)`, hk).Scan(&exists)
	if err != nil {
		return storeErr("check history", err)
	}
	if exists == 1 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history (history_key, companion_id, text, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return storeErr("prepare seed", err)
	}
	defer stmt.Close()

	for i, line := range strings.Split(seed, delimiter) {
		if _, err := stmt.ExecContext(ctx, hk, key.CompanionID, line, int64(i)); err != nil {
			return storeErr("seed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit seed", err)
	}
	return nil
}

// Count returns the number of entries in the log for key.
func (s *SQLiteStorage) Count(ctx context.Context, key models.CompanionKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE history_key = ?`, key.HistoryKey()).Scan(&n)
	if err != nil {
		return 0, storeErr("count history", err)
	}
	return n, nil
}

// Clear removes the log for key and returns how many entries were deleted.
// The next turn under key is seeded again.
func (s *SQLiteStorage) Clear(ctx context.Context, key models.CompanionKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE history_key = ?`, key.HistoryKey())
	if err != nil {
		return 0, storeErr("clear history", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SaveCompanion creates or updates a companion profile and replaces its source records.
func (s *SQLiteStorage) SaveCompanion(ctx context.Context, c *models.Companion) error {
	if c.ID == "" {
		return fmt.Errorf("%w: companion id is required", models.ErrInvalidKey)
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin save companion", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO companions (id, owner_id, name, instructions, seed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			instructions = excluded.instructions,
			seed = excluded.seed,
			updated_at = excluded.updated_at`,
		c.ID, c.OwnerID, c.Name, c.Instructions, c.Seed, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return storeErr("save companion", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM companion_sources WHERE companion_id = ?`, c.ID); err != nil {
		return storeErr("replace sources", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO companion_sources (companion_id, source_id, position, type, title, content, url, path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeErr("prepare sources", err)
	}
	defer stmt.Close()

	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("%w: source %d has no id", models.ErrInvalidSource, i)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, src.ID, i, string(src.Type), src.Title, src.Content, src.URL, src.Path); err != nil {
			return storeErr("save source", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit companion", err)
	}
	return nil
}

// GetCompanion returns a companion profile with its sources in saved order.
func (s *SQLiteStorage) GetCompanion(ctx context.Context, id string) (*models.Companion, error) {
	var c models.Companion
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, instructions, seed, created_at, updated_at
		 FROM companions WHERE id = ?`, id,
	).Scan(&c.ID, &owner, &c.Name, &c.Instructions, &c.Seed, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrCompanionNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get companion", err)
	}
	c.OwnerID = owner.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, type, title, content, url, path
		 FROM companion_sources WHERE companion_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, storeErr("get sources", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src models.Source
		var typ string
		var title, content, url, path sql.NullString
		if err := rows.Scan(&src.ID, &typ, &title, &content, &url, &path); err != nil {
			return nil, storeErr("scan source", err)
		}
		src.Type = models.SourceType(typ)
		src.Title, src.Content, src.URL, src.Path = title.String, content.String, url.String, path.String
		c.Sources = append(c.Sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get sources", err)
	}
	return &c, nil
}

// ListCompanions returns profiles without their sources, newest first.
func (s *SQLiteStorage) ListCompanions(ctx context.Context, offset, limit int) ([]*models.Companion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, instructions, seed, created_at, updated_at
		 FROM companions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, storeErr("list companions", err)
	}
	defer rows.Close()

	var out []*models.Companion
	for rows.Next() {
		var c models.Companion
		var owner sql.NullString
		if err := rows.Scan(&c.ID, &owner, &c.Name, &c.Instructions, &c.Seed, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storeErr("scan companion", err)
		}
		c.OwnerID = owner.String
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list companions", err)
	}
	return out, nil
}

// DeleteCompanion removes a companion, its sources, and all of its history logs.
func (s *SQLiteStorage) DeleteCompanion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin delete companion", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM companions WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete companion", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrCompanionNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM companion_sources WHERE companion_id = ?`, id); err != nil {
		return storeErr("delete sources", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE companion_id = ?`, id); err != nil {
		return storeErr("delete history", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit delete companion", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
