package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assent/internal/receipt/models"
	"assent/pkg/platform/tx"
)

// Postgres persists receipts in a receipts table via database/sql. The
// lib/pq driver is registered by the composition root.
//
// Expected schema:
//
//	CREATE TABLE receipts (
//	    id             UUID PRIMARY KEY,
//	    site_id        TEXT NOT NULL,
//	    visitor_id     TEXT NOT NULL,
//	    action         TEXT NOT NULL,
//	    purposes       JSONB NOT NULL,
//	    language       TEXT NOT NULL DEFAULT '',
//	    schema_version INT NOT NULL,
//	    state_hash     TEXT NOT NULL,
//	    user_agent     TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX receipts_dedup_idx ON receipts (visitor_id, state_hash, created_at DESC);
//	CREATE INDEX receipts_site_idx ON receipts (site_id, created_at DESC);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// querier lets statements join a transaction carried in context, so the
// service can run the dedup check and the insert atomically via tx.Run.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

func (s *Postgres) Append(ctx context.Context, receipt *models.Receipt) error {
	purposes, err := json.Marshal(receipt.Purposes)
	if err != nil {
		return fmt.Errorf("marshal purposes: %w", err)
	}

	const query = `
		INSERT INTO receipts (id, site_id, visitor_id, action, purposes, language, schema_version, state_hash, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.q(ctx).ExecContext(ctx, query,
		receipt.ID,
		receipt.SiteID,
		receipt.VisitorID,
		string(receipt.Action),
		purposes,
		receipt.Language,
		receipt.SchemaVersion,
		receipt.StateHash,
		receipt.UserAgent,
		receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (s *Postgres) HasRecent(ctx context.Context, visitorID, stateHash string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM receipts
			WHERE visitor_id = $1 AND state_hash = $2 AND created_at >= $3
		)`

	var exists bool
	if err := s.q(ctx).QueryRowContext(ctx, query, visitorID, stateHash, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("query recent receipt: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListBySite(ctx context.Context, siteID string, limit int) ([]*models.Receipt, error) {
	const query = `
		SELECT id, site_id, visitor_id, action, purposes, language, schema_version, state_hash, user_agent, created_at
		FROM receipts
		WHERE site_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.q(ctx).QueryContext(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []*models.Receipt
	for rows.Next() {
		var (
			r        models.Receipt
			action   string
			purposes []byte
		)
		if err := rows.Scan(&r.ID, &r.SiteID, &r.VisitorID, &action, &purposes, &r.Language, &r.SchemaVersion, &r.StateHash, &r.UserAgent, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.Action = models.Action(action)
		if err := json.Unmarshal(purposes, &r.Purposes); err != nil {
			return nil, fmt.Errorf("unmarshal purposes: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

func (s *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM receipts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete receipts: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}
