package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guillermoBallester/tally/internal/core/domain"
	"github.com/guillermoBallester/tally/internal/core/port"
)

// ProfileRepository stores schema profile documents in schema_profiles.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) CreatePending(ctx context.Context, table, fileName string) error {
	doc, err := json.Marshal(domain.NewPendingProfile(table, fileName))
	if err != nil {
		return fmt.Errorf("encoding pending profile: %w", err)
	}

	query := `
INSERT INTO schema_profiles (table_name, file_name, status, document, version)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (table_name) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, table, fileName, string(domain.StatusProcessing), string(doc), domain.ProfileVersion)
	if err != nil {
		return fmt.Errorf("create pending profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create pending profile: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", domain.ErrDatasetExists, table)
	}
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, table string) (*domain.SchemaProfile, error) {
	query := `
SELECT document
FROM schema_profiles
WHERE table_name = $1`

	var doc []byte
	if err := r.db.QueryRowContext(ctx, query, table).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("dataset %q %w", table, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var p domain.SchemaProfile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %q: %w", table, err)
	}
	return &p, nil
}

// Publish promotes the stored profile in a single conditional update, so
// concurrent publishers cannot both succeed.
func (r *ProfileRepository) Publish(ctx context.Context, p *domain.SchemaProfile) error {
	if !p.Status.Terminal() {
		return fmt.Errorf("publish profile: status %q is not terminal", p.Status)
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	query := `
UPDATE schema_profiles
SET status = $2, document = $3::jsonb, version = $4, updated_at = now()
WHERE table_name = $1 AND status = 'processing'`
	res, err := r.db.ExecContext(ctx, query, p.TableName, string(p.Status), string(doc), p.Version)
	if err != nil {
		return fmt.Errorf("publish profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("publish profile: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_profiles WHERE table_name = $1)`, p.TableName).Scan(&exists); err != nil {
		return fmt.Errorf("publish profile: %w", err)
	}
	if !exists {
		return fmt.Errorf("dataset %q %w", p.TableName, domain.ErrNotFound)
	}
	return fmt.Errorf("%w: %q", domain.ErrAlreadyPublished, p.TableName)
}

func (r *ProfileRepository) List(ctx context.Context) ([]port.ProfileSummary, error) {
	query := `
SELECT table_name, file_name, status, COALESCE(document->>'error', '')
FROM schema_profiles
ORDER BY created_at, table_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []port.ProfileSummary
	for rows.Next() {
		var s port.ProfileSummary
		var status string
		if err := rows.Scan(&s.TableName, &s.FileName, &status, &s.Error); err != nil {
			return nil, fmt.Errorf("scan profile summary: %w", err)
		}
		s.Status = domain.ProfileStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}
