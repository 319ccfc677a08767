package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultSlot = "budget-export-data"

type SQLiteRepository struct {
	db   *sql.DB
	slot string
}

var (
	_ DocumentStore = (*SQLiteRepository)(nil)
	_ Pinger        = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Document cache schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{db: db, slot: defaultSlot}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadDocument implements DocumentStore
func (r *SQLiteRepository) LoadDocument(ctx context.Context) ([]byte, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM document_cache WHERE slot = ?`, r.slot).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("select cached document: %w", err)
	}
	return []byte(body), nil
}

// SaveDocument implements DocumentStore
func (r *SQLiteRepository) SaveDocument(ctx context.Context, body []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO document_cache (slot, body, saved_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET body = excluded.body, saved_at = excluded.saved_at`,
		r.slot, string(body))
	if err != nil {
		return fmt.Errorf("upsert cached document: %w", err)
	}

	slog.DebugContext(ctx, "Document cached in SQLite", "slot", r.slot, "bytes", len(body))
	return nil
}
