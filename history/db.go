// Package history persists run outcomes to PostgreSQL.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Run struct {
	ID         string
	Status     string
	Retried    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

type ItemRun struct {
	ID       int
	RunID    string
	Basename string
	Name     string
	Category string
	ExitCode int
	Runtime  float64
	Status   string
	Message  string
}

type CaseResult struct {
	ItemRunID int
	Name      string
	Result    string
	Executed  bool
	Runtime   float64
}

// Schema creates the tables the store writes to
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	retried BOOLEAN NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS item_runs (
	id SERIAL PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	basename TEXT NOT NULL,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	runtime DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS case_results (
	item_run_id INTEGER NOT NULL REFERENCES item_runs (id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	result TEXT NOT NULL,
	executed BOOLEAN NOT NULL,
	runtime DOUBLE PRECISION NOT NULL
);
`

type Connection interface {
	// LastRun returns the most recently finished run, nil when none is recorded
	LastRun(ctx context.Context) (*Run, error)

	Begin(ctx context.Context) (Transactor, error)
	Close() error
}

type Transactor interface {
	InsertRun(ctx context.Context, r Run) error
	InsertItemRun(ctx context.Context, ir ItemRun) (int, error)
	InsertCaseResult(ctx context.Context, cr CaseResult) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

type PGXDB struct {
	conn *pgxpool.Pool
	log  log.Logger
}

// New connects to the database at uri and makes sure the schema exists
func New(ctx context.Context, uri string, logger log.Logger) (*PGXDB, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if logger == nil {
		logger = log.New()
	}

	db := &PGXDB{conn: conn, log: logger.New("component", "history")}
	if _, err := conn.Exec(ctx, Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func (p *PGXDB) LastRun(ctx context.Context) (*Run, error) {
	sql := `
SELECT id, status, retried, started_at, finished_at
FROM runs ORDER BY finished_at DESC LIMIT 1
`

	row := p.conn.QueryRow(ctx, sql)
	var r Run
	if err := row.Scan(&r.ID, &r.Status, &r.Retried, &r.StartedAt, &r.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return &r, nil
}

func (p *PGXDB) Begin(ctx context.Context) (Transactor, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &PGXTransactor{tx: tx, log: p.log}, nil
}

func (p *PGXDB) Close() error {
	p.conn.Close()
	return nil
}

type PGXTransactor struct {
	tx  pgx.Tx
	log log.Logger
	mtx sync.Mutex
}

func (p *PGXTransactor) InsertRun(ctx context.Context, r Run) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO runs (id, status, retried, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING
`

	if _, err := p.tx.Exec(ctx,
		sql,
		r.ID,
		r.Status,
		r.Retried,
		r.StartedAt,
		r.FinishedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (p *PGXTransactor) InsertItemRun(ctx context.Context, ir ItemRun) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO item_runs (run_id, basename, name, category, exit_code, runtime, status, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id
`

	row := p.tx.QueryRow(ctx,
		sql,
		ir.RunID,
		ir.Basename,
		ir.Name,
		ir.Category,
		ir.ExitCode,
		ir.Runtime,
		ir.Status,
		ir.Message,
	)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert item run: %w", err)
	}
	return id, nil
}

func (p *PGXTransactor) InsertCaseResult(ctx context.Context, cr CaseResult) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO case_results (item_run_id, name, result, executed, runtime)
VALUES ($1, $2, $3, $4, $5)
`

	if _, err := p.tx.Exec(ctx,
		sql,
		cr.ItemRunID,
		cr.Name,
		cr.Result,
		cr.Executed,
		cr.Runtime,
	); err != nil {
		return fmt.Errorf("failed to insert case result: %w", err)
	}
	return nil
}

func (p *PGXTransactor) Commit(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Commit(ctx)
}

func (p *PGXTransactor) Rollback(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if err := p.tx.Rollback(ctx); err != nil {
		p.log.Error("Error rolling back transaction", "err", err)
	}
}
