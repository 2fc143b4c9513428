package storage

import (
	"context"
	"fmt"

	"github.com/samims/notifier/internal/model"
)

func (s *SQLStorage) RecordJobRun(ctx context.Context, r *model.JobRun) error {
	_, err := s.exec(ctx, `INSERT INTO job_runs
		(id, job, started_at, finished_at, processed, succeeded, failed, retried, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Job, r.StartedAt, r.FinishedAt, r.Processed, r.Succeeded, r.Failed, r.Retried, r.Skipped, r.Error)
	if err != nil {
		return fmt.Errorf("failed to save job run: %w", err)
	}
	return nil
}

// ListJobRuns returns the most recent runs, optionally for one job.
func (s *SQLStorage) ListJobRuns(ctx context.Context, job string, limit int) ([]model.JobRun, error) {
	query := `SELECT id, job, started_at, finished_at, processed, succeeded, failed, retried, skipped, error
		FROM job_runs`
	var args []any
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	var out []model.JobRun
	if err := s.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list job runs failed: %w", err)
	}
	return out, nil
}
