package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
)

// Pruner applies the retention policy to inactive subscriptions and to the
// reminder log.
type Pruner struct {
	subscriptions SubscriptionService
	reminders     storage.ReminderStorage
	cfg           config.ScannerConfig
	now           Clock
	logger        *slog.Logger
}

func NewPruner(subscriptions SubscriptionService, reminders storage.ReminderStorage, cfg config.ScannerConfig, logger *slog.Logger) *Pruner {
	return &Pruner{
		subscriptions: subscriptions,
		reminders:     reminders,
		cfg:           cfg,
		now:           systemClock,
		logger:        logger.With("layer", "service", "component", "pruner"),
	}
}

func (p *Pruner) RunOnce(ctx context.Context) (model.Summary, error) {
	var summary model.Summary
	var errs []error

	subs, err := p.subscriptions.Prune(ctx, p.cfg.SubscriptionRetention)
	if err != nil {
		errs = append(errs, err)
		summary.Failed++
	}
	logs, err := p.reminders.PruneReminderLogs(ctx, p.now().Add(-p.cfg.ReminderRetention))
	if err != nil {
		errs = append(errs, err)
		summary.Failed++
	}

	summary.Processed = int(subs + logs)
	summary.Succeeded = summary.Processed
	p.logger.InfoContext(ctx, "retention pass finished", "subscriptions", subs, "reminder_logs", logs)
	return summary, errors.Join(errs...)
}
