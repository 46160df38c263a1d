// Package registry is the central store mapping tenant identifiers to
// their isolated database descriptors. A single Postgres table backs
// it; the primary-key uniqueness of tenant_id is the arbiter for
// concurrent first-time provisioning.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConflict: a record for the tenant already exists. Expected
	// during provisioning races; handled, not fatal.
	ErrConflict = errors.New("registry: tenant record already exists")
	ErrNotFound = errors.New("registry: tenant record not found")
)

// TenantRecord describes one tenant's database. The token is
// write-once: set at insert, never silently overwritten. A record is
// only ever inserted after its database has a fully initialized
// schema, so readers may trust the database to be usable.
type TenantRecord struct {
	TenantID         string
	Email            string
	DBName           string
	DBURL            string
	DBToken          string
	StorageUsedBytes int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Store interface {
	// Find returns the record for tenantID, or ErrNotFound.
	Find(ctx context.Context, tenantID string) (*TenantRecord, error)
	// Insert persists a new record. Returns ErrConflict when a record
	// for the tenant already exists (store-level constraint, not a
	// check-then-act in application code).
	Insert(ctx context.Context, rec *TenantRecord) error
	// BumpUsage adjusts the storage counter by delta bytes.
	BumpUsage(ctx context.Context, tenantID string, delta int64) error
	// EnsureSchema creates the registry table and indexes if absent.
	// Idempotent; safe to run at every process start.
	EnsureSchema(ctx context.Context) error
}
