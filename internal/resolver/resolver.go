// Package resolver turns a verified tenant identifier into a live
// connection to that tenant's database, provisioning the database on
// first use.
//
// Concurrent first-time resolution for one tenant is tolerated rather
// than locked out: both callers may provision, and the registry's
// primary-key constraint decides the winner. The loser adopts the
// winner's record; its own freshly created database is orphaned and
// left to operator reconciliation.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cronhub/internal/metrics"
	"cronhub/internal/provision"
	"cronhub/internal/registry"
	"cronhub/internal/schema"
)

// ResolveError wraps any resolution failure with the tenant it was for.
type ResolveError struct {
	TenantID string
	Err      error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve tenant %s: %v", e.TenantID, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Provisioner creates a tenant database and credential without
// persisting anything.
type Provisioner interface {
	Provision(ctx context.Context, tenantID, email string) (registry.TenantRecord, error)
}

// Connector opens a handle to a tenant database at url using token.
type Connector interface {
	Open(ctx context.Context, url, token string) (*sql.DB, error)
}

// Conn is a live, tenant-scoped database handle. Never reuse across
// tenant identifiers.
type Conn struct {
	TenantID string
	Record   registry.TenantRecord
	DB       *sql.DB
}

type Resolver struct {
	store registry.Store
	prov  Provisioner
	conns Connector
	cache *connCache
	log   *zap.SugaredLogger

	// initSchema and syncSchema are swappable for tests; they default
	// to schema.Init and schema.Sync.
	initSchema func(ctx context.Context, db schema.Execer) error
	syncSchema func(ctx context.Context, db schema.Execer) (bool, error)
}

func New(store registry.Store, prov Provisioner, conns Connector, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		store:      store,
		prov:       prov,
		conns:      conns,
		cache:      newConnCache(),
		log:        log,
		initSchema: func(ctx context.Context, db schema.Execer) error { return schema.Init(ctx, db) },
		syncSchema: func(ctx context.Context, db schema.Execer) (bool, error) { return schema.Sync(ctx, db) },
	}
}

// Resolve returns a ready connection to tenantID's database,
// provisioning it first if the tenant has never been seen. On any
// failure no connection is returned.
func (r *Resolver) Resolve(ctx context.Context, tenantID, email string) (*Conn, error) {
	start := time.Now()
	defer func() { metrics.ResolveSeconds.Observe(time.Since(start).Seconds()) }()

	rec, err := r.store.Find(ctx, tenantID)
	switch {
	case err == nil:
		return r.open(ctx, tenantID, *rec)
	case errors.Is(err, registry.ErrNotFound):
		return r.provision(ctx, tenantID, email)
	default:
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}
}

func (r *Resolver) open(ctx context.Context, tenantID string, rec registry.TenantRecord) (*Conn, error) {
	if conn := r.cache.get(tenantID, rec.DBToken); conn != nil {
		return conn, nil
	}
	db, err := r.conns.Open(ctx, rec.DBURL, rec.DBToken)
	if err != nil {
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}
	// An already-provisioned tenant may be behind the current catalog
	// version; bring it up before handing the connection out.
	upgraded, err := r.syncSchema(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}
	if upgraded {
		r.log.Infow("tenant schema upgraded", "tenant", tenantID)
	}
	return r.cache.put(&Conn{TenantID: tenantID, Record: rec, DB: db}), nil
}

func (r *Resolver) provision(ctx context.Context, tenantID, email string) (*Conn, error) {
	// A caller disconnect must not strand a created database between
	// the platform API call and the registry insert, so the whole
	// first-use path runs detached from the request's cancellation.
	ctx = context.WithoutCancel(ctx)

	rec, err := r.prov.Provision(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, provision.ErrQuotaExceeded) {
			metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeQuota).Inc()
		} else {
			metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeError).Inc()
		}
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}

	db, err := r.conns.Open(ctx, rec.DBURL, rec.DBToken)
	if err != nil {
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}

	// Schema must be complete before the record is visible: any reader
	// that observes a record may skip re-initialization.
	if err := r.initSchema(ctx, db); err != nil {
		_ = db.Close()
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}

	err = r.store.Insert(ctx, &rec)
	if errors.Is(err, registry.ErrConflict) {
		// Another resolver won the race. Adopt its record; our
		// database is now an orphan for operator reconciliation.
		_ = db.Close()
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeLostRace).Inc()
		r.log.Warnw("lost provisioning race, orphaned database",
			"tenant", tenantID, "orphan_db", rec.DBName)
		winner, ferr := r.store.Find(ctx, tenantID)
		if ferr != nil {
			return nil, &ResolveError{TenantID: tenantID, Err: ferr}
		}
		return r.open(ctx, tenantID, *winner)
	}
	if err != nil {
		_ = db.Close()
		metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, &ResolveError{TenantID: tenantID, Err: err}
	}

	metrics.ProvisionTotal.WithLabelValues(metrics.OutcomeWon).Inc()
	r.log.Infow("provisioned tenant database", "tenant", tenantID, "db", rec.DBName)
	return r.cache.put(&Conn{TenantID: tenantID, Record: rec, DB: db}), nil
}
