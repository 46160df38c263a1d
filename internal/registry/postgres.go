package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewPostgresStore(pool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{pool: pool, log: log}
}

// EnsureSchema creates the registry table if it does not already exist.
// Safe to call repeatedly and concurrently.
func (s *pgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenant_databases (
  tenant_id text PRIMARY KEY,
  email text NOT NULL,
  db_name text NOT NULL,
  db_url text NOT NULL,
  db_token text NOT NULL,
  storage_used_bytes bigint NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tenant_databases_email_idx ON tenant_databases(email);
`)
	if err != nil {
		return fmt.Errorf("registry schema: %w", err)
	}
	return nil
}

func (s *pgStore) Find(ctx context.Context, tenantID string) (*TenantRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT tenant_id,email,db_name,db_url,db_token,storage_used_bytes,created_at,updated_at
		FROM tenant_databases WHERE tenant_id=$1`, tenantID)
	var rec TenantRecord
	if err := row.Scan(&rec.TenantID, &rec.Email, &rec.DBName, &rec.DBURL, &rec.DBToken,
		&rec.StorageUsedBytes, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registry find: %w", err)
	}
	return &rec, nil
}

func (s *pgStore) Insert(ctx context.Context, rec *TenantRecord) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tenant_databases
		(tenant_id,email,db_name,db_url,db_token,storage_used_bytes,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.TenantID, rec.Email, rec.DBName, rec.DBURL, rec.DBToken,
		rec.StorageUsedBytes, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("registry insert: %w", err)
	}
	return nil
}

func (s *pgStore) BumpUsage(ctx context.Context, tenantID string, delta int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenant_databases
		SET storage_used_bytes = storage_used_bytes + $2, updated_at = NOW()
		WHERE tenant_id=$1`, tenantID, delta)
	if err != nil {
		return fmt.Errorf("registry bump usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
