package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/directory"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/push"
	"github.com/samims/notifier/internal/storage"
	"github.com/samims/notifier/internal/storage/storagetest"
	"github.com/samims/notifier/pkg/tracing"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const mockAny = mock.Anything

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DeliveryEvent
}

func (p *recordingPublisher) PublishDelivery(_ context.Context, ev model.DeliveryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) statuses() []model.QueueStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.QueueStatus, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

// fixture wires the pipeline against an in-memory database with a
// controllable clock and mocked collaborators.
type fixture struct {
	db     *sqlx.DB
	store  *storage.SQLStorage
	dir    *directory.MockDirectory
	sender *push.MockSender
	events *recordingPublisher

	mu  sync.Mutex
	now time.Time

	queue         *queueBuilder
	fanout        *fanOutEngine
	notifications *notificationService
	subs          *subscriptionService
	worker        *deliveryWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewDB(t)
	f := &fixture{
		db:     db,
		store:  storage.NewSQLStorage(db),
		dir:    directory.NewMockDirectory(t),
		sender: push.NewMockSender(t),
		events: &recordingPublisher{},
		now:    t0,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracing.NewTracer("test")

	f.queue = &queueBuilder{store: f.store, maxAttempts: 3, now: f.clock, tracer: tracer, logger: logger}
	f.fanout = &fanOutEngine{store: f.store, queue: f.queue, now: f.clock, tracer: tracer, logger: logger}
	f.notifications = &notificationService{
		store:    f.store,
		resolver: NewRecipientResolver(f.dir, logger),
		fanout:   f.fanout,
		now:      f.clock,
		tracer:   tracer,
		logger:   logger,
	}
	f.subs = &subscriptionService{store: f.store, now: f.clock, logger: logger}
	f.worker = &deliveryWorker{
		store:  f.store,
		sender: f.sender,
		events: f.events,
		cfg: config.WorkerConfig{
			BatchSize:      50,
			Limit:          4,
			MaxAttempts:    3,
			RetryBaseDelay: time.Minute,
			RetryMaxDelay:  time.Hour,
			ClaimTimeout:   5 * time.Minute,
		},
		now:    f.clock,
		tracer: tracer,
		logger: logger,
	}
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) register(t *testing.T, userID, deviceID string) *model.Subscription {
	t.Helper()
	sub, err := f.subs.Register(context.Background(), userID, RegisterRequest{
		DeviceID:   deviceID,
		DeviceType: model.DeviceMobile,
		Endpoint:   "https://push.example/" + userID + "/" + deviceID,
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) publishTo(t *testing.T, users ...string) *model.Notification {
	t.Helper()
	n, err := f.notifications.Publish(context.Background(), &model.Notification{
		Title:     "Shift change",
		Body:      "Report to the loading dock",
		CreatedBy: "admin",
		Target:    model.TargetSpec{Kind: model.TargetUsers, Values: users},
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) queueEntries(t *testing.T, notificationID string) []model.QueueEntry {
	t.Helper()
	entries, err := f.store.ListQueueEntries(context.Background(), notificationID)
	require.NoError(t, err)
	return entries
}
