package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service runs job operations against whichever tenant database the
// caller resolved. Every query is additionally scoped by tenant id
// even though each database belongs to exactly one tenant.
type Service struct {
	log *zap.SugaredLogger
}

func NewService(log *zap.SugaredLogger) *Service {
	return &Service{log: log}
}

const listQuery = `SELECT id, tenant_id, name, schedule, command, enabled
	FROM cron_jobs WHERE tenant_id = ? ORDER BY created_at DESC`

func (s *Service) List(ctx context.Context, db DBTX, tenantID string) ([]CronJob, error) {
	rows, err := db.QueryContext(ctx, listQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []CronJob{}
	for rows.Next() {
		var j CronJob
		var enabled int64
		if err := rows.Scan(&j.ID, &j.TenantID, &j.Name, &j.Schedule, &j.Command, &enabled); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Enabled = enabled != 0
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Service) Create(ctx context.Context, db DBTX, tenantID string, req CreateRequest) (CronJob, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	job := CronJob{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     req.Name,
		Schedule: req.Schedule,
		Command:  req.Command,
		Enabled:  enabled,
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO cron_jobs (id, tenant_id, name, schedule, command, enabled) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.Name, job.Schedule, job.Command, boolInt(enabled))
	if err != nil {
		return CronJob{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *Service) Update(ctx context.Context, db DBTX, tenantID, jobID string, req UpdateRequest) (CronJob, error) {
	cur, err := s.get(ctx, db, tenantID, jobID)
	if err != nil {
		return CronJob{}, err
	}
	if req.Name != nil {
		cur.Name = *req.Name
	}
	if req.Schedule != nil {
		cur.Schedule = *req.Schedule
	}
	if req.Command != nil {
		cur.Command = *req.Command
	}
	if req.Enabled != nil {
		cur.Enabled = *req.Enabled
	}
	_, err = db.ExecContext(ctx,
		`UPDATE cron_jobs SET name = ?, schedule = ?, command = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND tenant_id = ?`,
		cur.Name, cur.Schedule, cur.Command, boolInt(cur.Enabled), jobID, tenantID)
	if err != nil {
		return CronJob{}, fmt.Errorf("update job: %w", err)
	}
	return cur, nil
}

func (s *Service) Delete(ctx context.Context, db DBTX, tenantID, jobID string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM cron_jobs WHERE id = ? AND tenant_id = ?`, jobID, tenantID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) get(ctx context.Context, db DBTX, tenantID, jobID string) (CronJob, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, schedule, command, enabled FROM cron_jobs WHERE id = ? AND tenant_id = ?`,
		jobID, tenantID)
	var j CronJob
	var enabled int64
	if err := row.Scan(&j.ID, &j.TenantID, &j.Name, &j.Schedule, &j.Command, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CronJob{}, ErrNotFound
		}
		return CronJob{}, fmt.Errorf("get job: %w", err)
	}
	j.Enabled = enabled != 0
	return j, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
