package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/infrastructure/metrics"
)

//go:embed schema.sql
var postgresSchema string

// SQLSTATE codes the repository interprets.
const (
	pgUniqueViolation = "23505"
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
)

const authIDColumns = `id, customer_id, label, is_active, created_at`

// PoolConfig bounds the Postgres connection pool.
type PoolConfig struct {
	URL      string
	MinConns int32
	MaxConns int32
	// AcquireTimeout caps each operation, including the wait for a free connection.
	AcquireTimeout time.Duration
}

// PostgresRepository implements ports.AuthIDRepository using PostgreSQL. Row-level
// atomicity of INSERT and UPDATE provides all write serialization; no in-process locks
// are held.
type PostgresRepository struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresOption configures a PostgresRepository.
type PostgresOption func(*PostgresRepository)

// WithOperationTimeout bounds every call made through the repository.
func WithOperationTimeout(d time.Duration) PostgresOption {
	return func(r *PostgresRepository) { r.timeout = d }
}

// NewPostgresRepository creates and returns a new PostgresRepository on an existing handle.
func NewPostgresRepository(db *sql.DB, opts ...PostgresOption) *PostgresRepository {
	r := &PostgresRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenPostgres builds a bounded pgx pool, exposes it through database/sql and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, cfg PoolConfig) (*PostgresRepository, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", domain.ErrUnavailable, err)
	}

	// Idle connections stay in pgxpool; OpenDBFromPool disables database/sql idling.
	db := stdlib.OpenDBFromPool(pool)
	db.SetMaxOpenConns(int(poolCfg.MaxConns))

	r := NewPostgresRepository(db, WithOperationTimeout(cfg.AcquireTimeout))
	r.pool = pool

	if err := r.Migrate(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Migrate creates the schema. Several instances may run it at once; objects that a
// concurrent creator already made count as success.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("migrate: %w: %w", domain.ErrUnavailable, err)
		}
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, id string, customerID, label *string) (*domain.AuthID, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.reportPool()

	query := `INSERT INTO auth_ids (id, customer_id, label, is_active) VALUES ($1, $2, $3, TRUE)
	          RETURNING ` + authIDColumns
	rec, err := scanAuthID(r.db.QueryRowContext(ctx, query, id, customerID, label))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, unavailable("create auth id", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.AuthID, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.reportPool()

	query := `SELECT ` + authIDColumns + ` FROM auth_ids WHERE id = $1`
	rec, err := scanAuthID(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get auth id", err)
	}
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]domain.AuthID, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.reportPool()

	query := `SELECT ` + authIDColumns + ` FROM auth_ids ORDER BY created_at ASC, id ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, unavailable("list auth ids", errQuery)
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	recs := []domain.AuthID{}
	for rows.Next() {
		rec, errScan := scanAuthID(rows)
		if errScan != nil {
			return nil, unavailable("list auth ids", errScan)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list auth ids", err)
	}
	return recs, nil
}

// SetActive flips is_active in one atomic statement. Setting the current value again
// still returns the row.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) (*domain.AuthID, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.reportPool()

	query := `UPDATE auth_ids SET is_active = $1 WHERE id = $2 RETURNING ` + authIDColumns
	rec, err := scanAuthID(r.db.QueryRowContext(ctx, query, active, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("set auth id state", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer r.reportPool()

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM auth_ids WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, unavailable("check auth id", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the database handle and, when owned, the pool beneath it.
func (r *PostgresRepository) Close() error {
	err := r.db.Close()
	if r.pool != nil {
		r.pool.Close()
		metrics.DBConnectionsActive.Set(0)
	}
	return err
}

func (r *PostgresRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepository) reportPool() {
	if r.pool == nil {
		return
	}
	metrics.DBConnectionsActive.Set(float64(r.pool.Stat().AcquiredConns()))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthID(row rowScanner) (*domain.AuthID, error) {
	var rec domain.AuthID
	if err := row.Scan(&rec.ID, &rec.CustomerID, &rec.Label, &rec.IsActive, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgDuplicateTable, pgDuplicateObject, pgUniqueViolation:
		// 23505 surfaces when two sessions race CREATE TABLE IF NOT EXISTS on pg_type.
		return true
	}
	return false
}
