package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SQLiteFile is the database file name inside the checkpoint directory
const SQLiteFile = "checkpoints.db"

// SQLiteStore keeps checkpoints of every run in one database, keyed by run
type SQLiteStore struct {
	db     *sql.DB
	runKey string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath, runKey string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, runKey: runKey}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Record, error) {
	rec := &Record{RunKey: s.runKey}
	var started, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT input_dir, output_dir, processed_records, written_records, failed_records, started_at, updated_at
		FROM checkpoints WHERE run_key = ?`, s.runKey,
	).Scan(&rec.InputDir, &rec.OutputDir, &rec.Processed, &rec.Written, &rec.Failed, &started, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	rec.StartedAt = parseTime(started)
	rec.UpdatedAt = parseTime(updated)

	rows, err := s.db.QueryContext(ctx, "SELECT file_path FROM checkpoint_files WHERE run_key = ?", s.runKey)
	if err != nil {
		return nil, fmt.Errorf("load completed files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		rec.Completed = append(rec.Completed, path)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(rec.Completed)
	return rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (run_key, input_dir, output_dir, processed_records, written_records, failed_records, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_key) DO UPDATE SET
			processed_records = excluded.processed_records,
			written_records = excluded.written_records,
			failed_records = excluded.failed_records,
			updated_at = excluded.updated_at`,
		s.runKey, rec.InputDir, rec.OutputDir, rec.Processed, rec.Written, rec.Failed,
		formatTime(rec.StartedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	for _, path := range rec.Completed {
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO checkpoint_files (run_key, file_path) VALUES (?, ?)",
			s.runKey, path,
		); err != nil {
			return fmt.Errorf("save completed file: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoint_files WHERE run_key = ?", s.runKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete completed files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE run_key = ?", s.runKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
