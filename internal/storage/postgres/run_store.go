// Package postgres keeps the ledger of batch runs in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the connection pool and table names.
type RunStoreConfig struct {
	DSN             string
	RunsTable       string
	FailuresTable   string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore writes one row per run plus one row per failed file.
type RunStore struct {
	pool          txBeginner
	runsTable     string
	failuresTable string
}

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(pool, cfg.RunsTable, cfg.FailuresTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool builds a store on an existing pool.
func NewRunStoreWithPool(pool txBeginner, runsTable, failuresTable string) (*RunStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if runsTable == "" {
		runsTable = "ingest_runs"
	}
	if failuresTable == "" {
		failuresTable = "ingest_failures"
	}
	for _, table := range []string{runsTable, failuresTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &RunStore{pool: pool, runsTable: runsTable, failuresTable: failuresTable}, nil
}

// EnsureSchema creates the ledger tables when they do not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id      TEXT PRIMARY KEY,
			team        TEXT NOT NULL,
			crawler     TEXT NOT NULL,
			root        TEXT NOT NULL,
			index_name  TEXT NOT NULL,
			doc_type    TEXT NOT NULL,
			enumerated  INTEGER NOT NULL,
			succeeded   INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`, s.runsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL REFERENCES %s (run_id),
			path   TEXT NOT NULL,
			stage  TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, path)
		)`, s.failuresTable, s.runsTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}

// RecordRun writes summary and its failures in a single transaction.
func (s *RunStore) RecordRun(ctx context.Context, summary ingest.RunSummary) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	runQuery := fmt.Sprintf(`INSERT INTO %s
		(run_id, team, crawler, root, index_name, doc_type, enumerated, succeeded, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.runsTable)
	if _, err = tx.Exec(ctx, runQuery,
		summary.RunID,
		summary.Team,
		summary.Crawler,
		summary.Root,
		summary.Index,
		summary.DocType,
		summary.Enumerated,
		summary.Succeeded,
		summary.Failed,
		summary.StartedAt,
		summary.FinishedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	failureQuery := fmt.Sprintf(`INSERT INTO %s (run_id, path, stage, reason) VALUES ($1, $2, $3, $4)`, s.failuresTable)
	for _, failure := range summary.Failures {
		if _, err = tx.Exec(ctx, failureQuery, summary.RunID, failure.Path, string(failure.Stage), failure.Reason); err != nil {
			return fmt.Errorf("insert failure %s: %w", failure.Path, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}
