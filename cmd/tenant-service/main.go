// cmd/tenant-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronhub/internal/auth"
	"cronhub/internal/jobs"
	"cronhub/internal/provision"
	"cronhub/internal/registry"
	"cronhub/internal/resolver"
	"cronhub/internal/tenantapi"
	"cronhub/pkg/config"
	"cronhub/pkg/db"
	"cronhub/pkg/logger"
	"cronhub/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		log.Fatalw("config", "err", err)
	}

	ctx := context.Background()

	pool := db.MustConnect(cfg, log)
	defer pool.Close()

	var store registry.Store = registry.NewPostgresStore(pool, logger.Named(log, "registry"))
	if rdb := db.MustRedis(cfg, log); rdb != nil {
		store = registry.NewCachedStore(store, rdb, 5*time.Minute, logger.Named(log, "registry"))
	}
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalw("registry schema", "err", err)
	}

	verifier, err := auth.NewVerifier(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience, cfg.JWKSTTL, cfg.AuthSkew, logger.Named(log, "auth"))
	if err != nil {
		log.Fatalw("verifier", "err", err)
	}

	prov := provision.NewClient(cfg.TursoAPIURL, cfg.TursoAPIToken, cfg.TursoOrg, cfg.TursoGroup, logger.Named(log, "turso"))
	res := resolver.New(store, prov, resolver.NewLibsqlConnector(), logger.Named(log, "resolver"))
	jobsSvc := jobs.NewService(logger.Named(log, "jobs"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing())
	r.Use(middleware.Auth(verifier, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	tenantapi.RegisterRoutes(r, res, store, log)
	jobs.RegisterRoutes(r, res, jobsSvc, log)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("tenant-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("tenant-service stopped")
}
