package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"assent/internal/site"
	"assent/internal/website/models"
	"assent/pkg/platform/sentinel"
)

// Postgres persists website documents as JSONB rows.
//
// Expected schema:
//
//	CREATE TABLE websites (
//	    site_id    TEXT PRIMARY KEY,
//	    document   JSONB NOT NULL,
//	    active     BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Upsert(ctx context.Context, website *models.Website) error {
	document, err := json.Marshal(website.Config)
	if err != nil {
		return fmt.Errorf("marshal website document: %w", err)
	}

	query := `
		INSERT INTO websites (site_id, document, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id) DO UPDATE
		SET document = EXCLUDED.document,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		website.SiteID,
		document,
		website.Active,
		website.CreatedAt,
		website.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert website: %w", err)
	}
	return nil
}

func (s *Postgres) FindBySiteID(ctx context.Context, siteID string) (*models.Website, error) {
	query := `
		SELECT site_id, document, active, created_at, updated_at
		FROM websites
		WHERE site_id = $1
	`

	var (
		website  models.Website
		document []byte
	)
	err := s.pool.QueryRow(ctx, query, siteID).Scan(
		&website.SiteID,
		&document,
		&website.Active,
		&website.CreatedAt,
		&website.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find website: %w", err)
	}

	var cfg site.Config
	if err := json.Unmarshal(document, &cfg); err != nil {
		return nil, fmt.Errorf("decode website document: %w", err)
	}
	website.Config = cfg
	return &website, nil
}

func (s *Postgres) SetActive(ctx context.Context, siteID string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE websites SET active = $2, updated_at = NOW() WHERE site_id = $1`,
		siteID, active,
	)
	if err != nil {
		return fmt.Errorf("set website active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
