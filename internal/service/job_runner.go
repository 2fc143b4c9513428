package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
)

const defaultRunsLimit = 20

// JobFunc is one scheduled invocation. limit is an optional batch size.
type JobFunc func(ctx context.Context, limit int) (model.Summary, error)

// JobRunner runs named jobs, records each run and drives their schedules.
type JobRunner struct {
	store  storage.JobRunStorage
	jobs   map[string]JobFunc
	now    Clock
	logger *slog.Logger
}

func NewJobRunner(store storage.JobRunStorage, logger *slog.Logger) *JobRunner {
	return &JobRunner{
		store:  store,
		jobs:   make(map[string]JobFunc),
		now:    systemClock,
		logger: logger.With("layer", "service", "component", "job_runner"),
	}
}

func (r *JobRunner) Register(name string, fn JobFunc) {
	r.jobs[name] = fn
}

func (r *JobRunner) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes one job and records it in the run log. A failure to record
// the run is logged but does not change the result.
func (r *JobRunner) Run(ctx context.Context, name string, limit int) (model.Summary, error) {
	fn, ok := r.jobs[name]
	if !ok {
		return model.Summary{}, appErr.NewNotFound("job %q", name)
	}

	started := r.now()
	summary, err := fn(ctx, limit)

	run := &model.JobRun{
		ID:         uuid.NewString(),
		Job:        name,
		StartedAt:  started,
		FinishedAt: r.now(),
		Processed:  summary.Processed,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Retried:    summary.Retried,
		Skipped:    summary.Skipped,
	}
	result := "ok"
	if err != nil {
		msg := err.Error()
		run.Error = &msg
		result = "error"
		r.logger.ErrorContext(ctx, "job failed", "job", name, "error", err)
	}
	metrics.JobRuns.WithLabelValues(name, result).Inc()

	// record even when the caller's context is gone
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if recErr := r.store.RecordJobRun(recordCtx, run); recErr != nil {
		r.logger.ErrorContext(ctx, "failed to record job run", "job", name, "error", recErr)
	}
	return summary, err
}

func (r *JobRunner) Runs(ctx context.Context, job string, limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := r.store.ListJobRuns(ctx, job, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []model.JobRun{}
	}
	return runs, nil
}

// Start runs every scheduled job on its own ticker until ctx is cancelled.
// Runs of one job never overlap within the process.
func (r *JobRunner) Start(ctx context.Context, schedule map[string]time.Duration) error {
	eg, ctx := errgroup.WithContext(ctx)
	for name, interval := range schedule {
		if _, ok := r.jobs[name]; !ok || interval <= 0 {
			r.logger.Warn("skipping unscheduled job", "job", name, "interval", interval)
			continue
		}
		eg.Go(func() error {
			r.logger.InfoContext(ctx, "starting job schedule", "job", name, "interval", interval)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					r.logger.InfoContext(ctx, "job schedule stopped", "job", name)
					return nil
				case <-ticker.C:
					_, _ = r.Run(ctx, name, 0)
				}
			}
		})
	}
	return eg.Wait()
}

// Jobs bundles the components behind the standard job names.
type Jobs struct {
	Worker    DeliveryWorker
	Overdue   Scanner
	Recurring Scanner
	Pruner    *Pruner
}

// RegisterDefaults registers deliver, reap, overdue, recurring and prune.
// Scanners that are nil (no source configured) are left out.
func (r *JobRunner) RegisterDefaults(j Jobs) {
	if j.Worker != nil {
		r.Register(model.JobDeliver, j.Worker.RunOnce)
		r.Register(model.JobReap, j.Worker.Reap)
	}
	if j.Overdue != nil {
		r.Register(model.JobOverdue, ignoreLimit(j.Overdue.RunOnce))
	}
	if j.Recurring != nil {
		r.Register(model.JobRecurring, ignoreLimit(j.Recurring.RunOnce))
	}
	if j.Pruner != nil {
		r.Register(model.JobPrune, ignoreLimit(j.Pruner.RunOnce))
	}
}

func ignoreLimit(fn func(context.Context) (model.Summary, error)) JobFunc {
	return func(ctx context.Context, _ int) (model.Summary, error) {
		return fn(ctx)
	}
}
