package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs compiled statements inside a read-only transaction.
type Executor struct {
	pool         *pgxpool.Pool
	schema       string
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, schema string, maxRows int, queryTimeout time.Duration) *Executor {
	if schema == "" {
		schema = "public"
	}
	return &Executor{
		pool:         pool,
		schema:       schema,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, q *domain.CompiledQuery) ([]map[string]any, error) {
	sql, args, err := q.Positional()
	if err != nil {
		return nil, fmt.Errorf("binding parameters: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	wrappedSQL := fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", sql, e.maxRows)

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes both settings to this transaction.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+quoteIdent(e.schema)); err != nil {
		return nil, fmt.Errorf("setting search path: %w", err)
	}

	rows, err := tx.Query(ctx, wrappedSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return results, nil
}
