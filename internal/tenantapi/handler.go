// internal/tenantapi/handler.go
package tenantapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cronhub/internal/provision"
	"cronhub/internal/registry"
	"cronhub/internal/resolver"
	"cronhub/pkg/middleware"
)

// databaseView is the caller-visible slice of a tenant record. The
// credential never leaves the service.
type databaseView struct {
	TenantID         string    `json:"tenant_id"`
	Email            string    `json:"email"`
	DBName           string    `json:"db_name"`
	DBURL            string    `json:"db_url"`
	StorageUsedBytes int64     `json:"storage_used_bytes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RegisterRoutes mounts the account-level endpoints: database info
// (provisioning on first call) and storage accounting.
func RegisterRoutes(r chi.Router, res *resolver.Resolver, store registry.Store, log *zap.SugaredLogger) {
	r.Get("/v1/me/database", func(w http.ResponseWriter, req *http.Request) {
		claims, ok := middleware.ClaimsFrom(req.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := res.Resolve(req.Context(), claims.Subject, claims.Email)
		if err != nil {
			msg := "tenant database unavailable"
			if errors.Is(err, provision.ErrQuotaExceeded) {
				msg = "database quota exceeded"
			}
			log.Errorw("resolve tenant", "tenant", claims.Subject, "err", err)
			http.Error(w, msg, http.StatusServiceUnavailable)
			return
		}
		rec := conn.Record
		writeJSON(w, http.StatusOK, databaseView{
			TenantID:         rec.TenantID,
			Email:            rec.Email,
			DBName:           rec.DBName,
			DBURL:            rec.DBURL,
			StorageUsedBytes: rec.StorageUsedBytes,
			CreatedAt:        rec.CreatedAt,
			UpdatedAt:        rec.UpdatedAt,
		})
	})

	r.Post("/v1/me/usage", func(w http.ResponseWriter, req *http.Request) {
		claims, ok := middleware.ClaimsFrom(req.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			DeltaBytes int64 `json:"delta_bytes"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := store.BumpUsage(req.Context(), claims.Subject, body.DeltaBytes); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				http.Error(w, "tenant not provisioned", http.StatusNotFound)
				return
			}
			log.Errorw("bump usage", "tenant", claims.Subject, "err", err)
			http.Error(w, "usage update failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
