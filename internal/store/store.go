package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"hopper/internal/config"
	"hopper/internal/services"
)

// Result is one processed file's record. A row's existence is what makes
// re-ingestion of the same filename a no-op.
type Result struct {
	Filename         string
	ShortDescription string
	LongDescription  string
	ThumbnailPath    string
	Keep             bool
	ClipCutDuration  float64
	BatchID          string
	LastUpdated      time.Time
}

// Store manages result persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the results database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a result row exists for filename.
func (s *Store) Exists(ctx context.Context, filename string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM results WHERE filename = ?", filename,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query result existence: %w", err)
	}
	return count > 0, nil
}

// Upsert inserts or replaces the result row for res.Filename.
func (s *Store) Upsert(ctx context.Context, res Result) error {
	if res.Filename == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert", "filename is required", nil)
	}
	updated := res.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (
            filename, short_description, long_description, thumbnail_path,
            keep, clip_cut_duration, batch_id, last_updated
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(filename) DO UPDATE SET
            short_description = excluded.short_description,
            long_description = excluded.long_description,
            thumbnail_path = excluded.thumbnail_path,
            keep = excluded.keep,
            clip_cut_duration = excluded.clip_cut_duration,
            batch_id = excluded.batch_id,
            last_updated = excluded.last_updated`,
		res.Filename,
		res.ShortDescription,
		res.LongDescription,
		res.ThumbnailPath,
		boolToInt(res.Keep),
		res.ClipCutDuration,
		res.BatchID,
		updated.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// Get returns the result for filename.
func (s *Store) Get(ctx context.Context, filename string) (*Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT filename, short_description, long_description, thumbnail_path,
                keep, clip_cut_duration, batch_id, last_updated
         FROM results WHERE filename = ?`, filename)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get", fmt.Sprintf("no result for %q", filename), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// List returns all results, newest first.
func (s *Store) List(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, short_description, long_description, thumbnail_path,
                keep, clip_cut_duration, batch_id, last_updated
         FROM results ORDER BY last_updated DESC, filename ASC`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// SetKeep flips the keep flag for filename.
func (s *Store) SetKeep(ctx context.Context, filename string, keep bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE results SET keep = ?, last_updated = ? WHERE filename = ?",
		boolToInt(keep), time.Now().UTC().Format(time.RFC3339Nano), filename)
	if err != nil {
		return fmt.Errorf("set keep: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set keep rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "set keep", fmt.Sprintf("no result for %q", filename), nil)
	}
	return nil
}

// Forget deletes the result row for filename so the file can be ingested
// again.
func (s *Store) Forget(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM results WHERE filename = ?", filename)
	if err != nil {
		return fmt.Errorf("forget result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("forget rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "forget", fmt.Sprintf("no result for %q", filename), nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*Result, error) {
	var res Result
	var keep int
	var updated string
	if err := row.Scan(
		&res.Filename,
		&res.ShortDescription,
		&res.LongDescription,
		&res.ThumbnailPath,
		&keep,
		&res.ClipCutDuration,
		&res.BatchID,
		&updated,
	); err != nil {
		return nil, err
	}
	res.Keep = keep != 0
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		res.LastUpdated = ts
	}
	return &res, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
