package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/poyrazK/authbroker/internal/adapters/repository/migrations"
	"github.com/poyrazK/authbroker/internal/core/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteRepository implements ports.AuthIDRepository on a single local SQLite file.
// The file tolerates one writer at a time, so Create and SetActive hold the write side
// of mu for the duration of one call; reads share the read side.
type SQLiteRepository struct {
	db   *sql.DB
	path string

	mu          sync.RWMutex
	lastCreated time.Time
}

// OpenSQLite opens (creating if needed) the store file at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create storage dir: %w", domain.ErrUnavailable, err)
	}

	dsn := "file:" + cleanPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", domain.ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %w", domain.ErrUnavailable, err)
	}
	if err := applySQLiteMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: run migrations: %w", domain.ErrUnavailable, err)
	}
	return &SQLiteRepository{db: db, path: cleanPath}, nil
}

// Path returns the cleaned location of the store file.
func (s *SQLiteRepository) Path() string {
	return s.path
}

func (s *SQLiteRepository) Create(ctx context.Context, id string, customerID, label *string) (*domain.AuthID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// created_at never moves backwards within one store, so list order follows issuance.
	createdAt := time.UnixMilli(time.Now().UTC().UnixMilli()).UTC()
	if createdAt.Before(s.lastCreated) {
		createdAt = s.lastCreated
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_ids (id, customer_id, label, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
		id, customerID, label, createdAt.UnixMilli(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, unavailable("create auth id", err)
	}
	s.lastCreated = createdAt

	return &domain.AuthID{
		ID:         id,
		CustomerID: customerID,
		Label:      label,
		IsActive:   true,
		CreatedAt:  createdAt,
	}, nil
}

func (s *SQLiteRepository) Get(ctx context.Context, id string) (*domain.AuthID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, label, is_active, created_at FROM auth_ids WHERE id = ?`, id)
	rec, err := scanSQLiteAuthID(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get auth id", err)
	}
	return rec, nil
}

func (s *SQLiteRepository) List(ctx context.Context) ([]domain.AuthID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, label, is_active, created_at FROM auth_ids ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, unavailable("list auth ids", err)
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	recs := []domain.AuthID{}
	for rows.Next() {
		rec, err := scanSQLiteAuthID(rows)
		if err != nil {
			return nil, unavailable("list auth ids", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list auth ids", err)
	}
	return recs, nil
}

func (s *SQLiteRepository) SetActive(ctx context.Context, id string, active bool) (*domain.AuthID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`UPDATE auth_ids SET is_active = ? WHERE id = ?
		 RETURNING id, customer_id, label, is_active, created_at`,
		active, id)
	rec, err := scanSQLiteAuthID(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("set auth id state", err)
	}
	return rec, nil
}

func (s *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM auth_ids WHERE id = ?)`, id).Scan(&exists); err != nil {
		return false, unavailable("check auth id", err)
	}
	return exists, nil
}

func (s *SQLiteRepository) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanSQLiteAuthID(row rowScanner) (*domain.AuthID, error) {
	var (
		rec       domain.AuthID
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.CustomerID, &rec.Label, &rec.IsActive, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &rec, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
