package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader reads dataset tables for the profiler. Column names reach statement
// text only after being matched against the table's own column list.
type Reader struct {
	pool   *pgxpool.Pool
	schema string
}

func NewReader(pool *pgxpool.Pool, schema string) *Reader {
	if schema == "" {
		schema = "public"
	}
	return &Reader{pool: pool, schema: schema}
}

func (r *Reader) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.pool.Query(ctx, queryColumns, r.schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %q: %w", table, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning columns of %q: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q %w", table, domain.ErrNotFound)
	}
	return cols, nil
}

func (r *Reader) SampleColumns(ctx context.Context, table string, columns []string, limit int) ([]domain.ColumnSample, error) {
	if err := r.checkColumns(ctx, table, columns...); err != nil {
		return nil, err
	}

	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = quoteIdent(c) + "::text"
	}
	query := fmt.Sprintf(querySample, strings.Join(exprs, ", "), r.qualified(table))

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("sampling %q: %w", table, err)
	}
	defer rows.Close()

	samples := make([]domain.ColumnSample, len(columns))
	for i, c := range columns {
		samples[i].Name = c
	}
	vals := make([]*string, len(columns))
	dest := make([]any, len(columns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning sample row: %w", err)
		}
		for i, v := range vals {
			if v == nil {
				samples[i].Nulls++
				continue
			}
			samples[i].Values = append(samples[i].Values, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sample rows: %w", err)
	}
	return samples, nil
}

func (r *Reader) ColumnCounts(ctx context.Context, table string, columns []string) (*port.ColumnCounts, error) {
	if err := r.checkColumns(ctx, table, columns...); err != nil {
		return nil, err
	}

	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = fmt.Sprintf("count(DISTINCT %s)", quoteIdent(c))
	}
	query := fmt.Sprintf(queryCounts, strings.Join(exprs, ", "), r.qualified(table))

	var rowCount int64
	distinct := make([]int64, len(columns))
	dest := make([]any, 0, len(columns)+1)
	dest = append(dest, &rowCount)
	for i := range distinct {
		dest = append(dest, &distinct[i])
	}
	if err := r.pool.QueryRow(ctx, query).Scan(dest...); err != nil {
		return nil, fmt.Errorf("counting %q: %w", table, err)
	}

	out := &port.ColumnCounts{RowCount: rowCount, Distinct: make(map[string]int64, len(columns))}
	for i, c := range columns {
		out.Distinct[c] = distinct[i]
	}
	return out, nil
}

func (r *Reader) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, bool, error) {
	if err := r.checkColumns(ctx, table, column); err != nil {
		return nil, false, err
	}
	col := quoteIdent(column)
	query := fmt.Sprintf(queryDistinct, col, r.qualified(table), col)

	rows, err := r.pool.Query(ctx, query, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("distinct values of %q: %w", column, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, false, fmt.Errorf("scanning distinct values of %q: %w", column, err)
	}
	if len(values) > limit {
		return values[:limit], true, nil
	}
	return values, false, nil
}

// DateRange asks the server for the bounds first. Values the server cannot
// cast are parsed client-side with the sampler's layouts instead.
func (r *Reader) DateRange(ctx context.Context, table, column string) (string, string, error) {
	if err := r.checkColumns(ctx, table, column); err != nil {
		return "", "", err
	}
	col := quoteIdent(column)

	var minDate, maxDate *string
	query := fmt.Sprintf(queryDateRange, col, col, r.qualified(table))
	if err := r.pool.QueryRow(ctx, query).Scan(&minDate, &maxDate); err == nil {
		return deref(minDate), deref(maxDate), nil
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(queryDistinctAll, col, r.qualified(table), col))
	if err != nil {
		return "", "", fmt.Errorf("date range of %q: %w", column, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", "", fmt.Errorf("scanning dates of %q: %w", column, err)
	}

	var lo, hi string
	for _, v := range values {
		d, ok := domain.ParseDate(v)
		if !ok {
			continue
		}
		iso := d.Format(domain.ISODate)
		if lo == "" || iso < lo {
			lo = iso
		}
		if hi == "" || iso > hi {
			hi = iso
		}
	}
	return lo, hi, nil
}

// checkColumns fails unless every name is a column of table.
func (r *Reader) checkColumns(ctx context.Context, table string, names ...string) error {
	cols, err := r.Columns(ctx, table)
	if err != nil {
		return err
	}
	for _, n := range names {
		if !slices.Contains(cols, n) {
			return fmt.Errorf("%w: %q is not a column of %q", domain.ErrUnsupportedColumn, n, table)
		}
	}
	return nil
}

func (r *Reader) qualified(table string) string {
	return pgx.Identifier{r.schema, table}.Sanitize()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
