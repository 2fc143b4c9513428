// Package app assembles the service graph shared by the server and the
// one-shot job binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/jmoiron/sqlx"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/directory"
	"github.com/samims/notifier/internal/handler"
	"github.com/samims/notifier/internal/kafka"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/push"
	"github.com/samims/notifier/internal/router"
	"github.com/samims/notifier/internal/service"
	"github.com/samims/notifier/internal/source"
	"github.com/samims/notifier/internal/storage"
)

const collaboratorTimeout = 10 * time.Second

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	DB            *sqlx.DB
	Store         *storage.SQLStorage
	Notifications service.NotificationService
	Subscriptions service.SubscriptionService
	Worker        service.DeliveryWorker
	Runner        *service.JobRunner
	Health        service.HealthService

	producer *kafka.DeliveryProducer
}

// New connects the store and wires every component. Kafka delivery events
// are produced only when brokers are configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, DB: db, Store: storage.NewSQLStorage(db)}

	dir, err := newDirectory(cfg.Collaborators, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var events service.EventPublisher = service.NoopPublisher()
	if cfg.Kafka.Enabled() {
		producer, err := newProducer(cfg.Kafka, cfg.App.ServiceName, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		producer.Start(ctx)
		a.producer = producer
		events = producer
	}

	queue := service.NewQueueBuilder(a.Store, cfg.Worker.MaxAttempts, logger)
	fanout := service.NewFanOutEngine(a.Store, queue, logger)
	a.Notifications = service.NewNotificationService(a.Store, service.NewRecipientResolver(dir, logger), fanout, logger)
	a.Subscriptions = service.NewSubscriptionService(a.Store, logger)
	a.Worker = service.NewDeliveryWorker(a.Store, newSender(cfg.Push, logger), events, cfg.Worker, logger)
	a.Health = service.NewHealthService(map[string]service.Pinger{"database": a.Store})

	jobs := service.Jobs{
		Worker: a.Worker,
		Pruner: service.NewPruner(a.Subscriptions, a.Store, cfg.Scanner, logger),
	}
	if cfg.Collaborators.TasksURL != "" {
		tasks := source.NewHTTPTaskSource(cfg.Collaborators.TasksURL, collaboratorTimeout)
		jobs.Overdue = service.NewOverdueScanner(tasks, a.Notifications, cfg.Scanner.ReminderRetention, logger)
	} else {
		logger.Warn("TASKS_URL not set, overdue scanner disabled")
	}
	if cfg.Collaborators.FinanceURL != "" {
		schedules := source.NewHTTPScheduleSource(cfg.Collaborators.FinanceURL, collaboratorTimeout)
		jobs.Recurring = service.NewRecurringScanner(schedules, a.Notifications, cfg.Scanner.RecurringWindowDays, logger)
	} else {
		logger.Warn("FINANCE_URL not set, recurring scanner disabled")
	}

	a.Runner = service.NewJobRunner(a.Store, logger)
	a.Runner.RegisterDefaults(jobs)
	return a, nil
}

// Schedule maps each job to its interval for JobRunner.Start.
func (a *App) Schedule() map[string]time.Duration {
	return map[string]time.Duration{
		model.JobDeliver:   a.cfg.Worker.Interval,
		model.JobReap:      a.cfg.Worker.ClaimTimeout,
		model.JobOverdue:   a.cfg.Scanner.OverdueInterval,
		model.JobRecurring: a.cfg.Scanner.RecurringInterval,
		model.JobPrune:     a.cfg.Scanner.PruneInterval,
	}
}

// Handlers builds the HTTP handlers over the app services.
func (a *App) Handlers() router.Handlers {
	return router.Handlers{
		Notifications: handler.NewNotificationHandler(a.Notifications, a.logger),
		Subscriptions: handler.NewSubscriptionHandler(a.Subscriptions, a.logger),
		Jobs:          handler.NewJobHandler(a.Runner, a.logger),
		Health:        handler.NewHealthHandler(a.Health, a.logger),
	}
}

// NewConsumer creates the publish-command consumer group.
func (a *App) NewConsumer() (*kafka.Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_1_0_0
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.ClientID = a.cfg.App.ServiceName + "-consumer"

	group, err := sarama.NewConsumerGroup(a.cfg.Kafka.Brokers, a.cfg.Kafka.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return kafka.NewConsumer(a.cfg.Kafka.PublishTopic, group, a.Notifications, a.logger), nil
}

// Close flushes the event producer and closes the database.
func (a *App) Close() error {
	if a.producer != nil {
		a.producer.Close()
	}
	return a.DB.Close()
}

func newDirectory(cfg config.CollaboratorConfig, logger *slog.Logger) (directory.Directory, error) {
	switch {
	case cfg.DirectoryFile != "":
		dir, err := directory.LoadStaticDirectory(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		logger.Info("using static directory", "file", cfg.DirectoryFile)
		return dir, nil
	case cfg.DirectoryURL != "":
		return directory.NewHTTPDirectory(cfg.DirectoryURL, collaboratorTimeout, logger), nil
	}
	return nil, errors.New("DIRECTORY_FILE or DIRECTORY_URL is required")
}

func newSender(cfg config.PushConfig, logger *slog.Logger) push.Sender {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		logger.Warn("VAPID keys not set, push messages are only logged")
		return push.NewLogSender(logger)
	}
	return push.NewWebPushSender(cfg, logger)
}

func newProducer(cfg config.KafkaConfig, clientID string, logger *slog.Logger) (*kafka.DeliveryProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.ClientID = clientID + "-producer"

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return kafka.NewDeliveryProducer(producer, cfg.DeliveryTopic, logger), nil
}
