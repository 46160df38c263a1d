// pkg/db/db.go
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cronhub/pkg/config"
)

// MustConnect opens the registry connection pool. The registry is the
// single central database, so a failure here is fatal at startup.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	pool, err := pgxpool.New(context.Background(), cfg.RegistryURL)
	if err != nil {
		log.Fatalw("registry connect", "err", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalw("registry ping", "err", err)
	}
	log.Infow("registry ready", "host", redactDSN(cfg.RegistryURL))
	return pool
}

// MustRedis opens the optional record cache. Returns nil when unset.
func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis parse", "err", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(context.Background()).Err(); err != nil {
		log.Fatalw("redis ping", "err", err)
	}
	log.Infow("redis ready", "addr", opts.Addr)
	return cli
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
