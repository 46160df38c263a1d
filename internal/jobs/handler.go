// internal/jobs/handler.go
package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cronhub/internal/resolver"
	"cronhub/pkg/middleware"
)

// RegisterRoutes mounts the per-tenant job CRUD. Every handler first
// resolves the caller's tenant database; an unresolvable tenant never
// reaches a data operation.
func RegisterRoutes(r chi.Router, res *resolver.Resolver, svc *Service, log *zap.SugaredLogger) {
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", listHandler(res, svc, log))
		r.Post("/", createHandler(res, svc, log))
		r.Put("/{jobID}", updateHandler(res, svc, log))
		r.Delete("/{jobID}", deleteHandler(res, svc, log))
	})
}

func listHandler(res *resolver.Resolver, svc *Service, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, ok := resolve(w, r, res, log)
		if !ok {
			return
		}
		out, err := svc.List(r.Context(), conn.DB, conn.TenantID)
		if err != nil {
			log.Errorw("list jobs", "tenant", conn.TenantID, "err", err)
			http.Error(w, "list failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createHandler(res *resolver.Resolver, svc *Service, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, ok := resolve(w, r, res, log)
		if !ok {
			return
		}
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.Schedule == "" || req.Command == "" {
			http.Error(w, "name, schedule and command are required", http.StatusBadRequest)
			return
		}
		job, err := svc.Create(r.Context(), conn.DB, conn.TenantID, req)
		if err != nil {
			log.Errorw("create job", "tenant", conn.TenantID, "err", err)
			http.Error(w, "create failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func updateHandler(res *resolver.Resolver, svc *Service, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, ok := resolve(w, r, res, log)
		if !ok {
			return
		}
		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		job, err := svc.Update(r.Context(), conn.DB, conn.TenantID, chi.URLParam(r, "jobID"), req)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			log.Errorw("update job", "tenant", conn.TenantID, "err", err)
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func deleteHandler(res *resolver.Resolver, svc *Service, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, ok := resolve(w, r, res, log)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), conn.DB, conn.TenantID, chi.URLParam(r, "jobID")); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			log.Errorw("delete job", "tenant", conn.TenantID, "err", err)
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resolve(w http.ResponseWriter, r *http.Request, res *resolver.Resolver, log *zap.SugaredLogger) (*resolver.Conn, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	conn, err := res.Resolve(r.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Errorw("resolve tenant", "tenant", claims.Subject, "err", err)
		http.Error(w, "tenant database unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return conn, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
