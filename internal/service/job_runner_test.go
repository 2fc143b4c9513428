package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/config"
	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

func TestJobRunner_RecordsRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	runner := NewJobRunner(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	runner.now = f.clock

	runner.Register("ok", func(_ context.Context, limit int) (model.Summary, error) {
		return model.Summary{Processed: limit, Succeeded: limit}, nil
	})
	runner.Register("broken", func(context.Context, int) (model.Summary, error) {
		return model.Summary{Processed: 1, Failed: 1}, errors.New("source unavailable")
	})
	assert.Equal(t, []string{"broken", "ok"}, runner.Names())

	summary, err := runner.Run(ctx, "ok", 7)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 7, Succeeded: 7}, summary)

	_, err = runner.Run(ctx, "broken", 0)
	require.Error(t, err)

	_, err = runner.Run(ctx, "missing", 0)
	assert.True(t, appErr.IsNotFound(err))

	runs, err := runner.Runs(ctx, "ok", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 7, runs[0].Processed)
	assert.Nil(t, runs[0].Error)

	runs, err = runner.Runs(ctx, "broken", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, "source unavailable", *runs[0].Error)

	runs, err = runner.Runs(ctx, "never-ran", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestJobRunner_RegisterDefaults(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewJobRunner(f.store, logger)

	runner.RegisterDefaults(Jobs{
		Worker: f.worker,
		Pruner: NewPruner(f.subs, f.store, config.ScannerConfig{}, logger),
	})
	assert.Equal(t, []string{model.JobDeliver, model.JobPrune, model.JobReap}, runner.Names())

	summary, err := runner.Run(context.Background(), model.JobDeliver, 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestJobRunner_StartStopsWithContext(t *testing.T) {
	f := newFixture(t)
	runner := NewJobRunner(f.store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ran := make(chan struct{}, 1)
	runner.Register("tick", func(context.Context, int) (model.Summary, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return model.Summary{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Start(ctx, map[string]time.Duration{"tick": 5 * time.Millisecond, "unknown": time.Second})
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPruner_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	old := f.register(t, "u1", "old-phone")
	require.NoError(t, f.subs.Deactivate(ctx, old.ID, ""))
	f.register(t, "u1", "phone")
	_, err := f.store.InsertReminderLog(ctx, &model.ReminderLog{EventKey: "k1", Kind: model.ReminderOverdueTask, FiredAt: t0})
	require.NoError(t, err)

	f.advance(100 * 24 * time.Hour)
	pruner := NewPruner(f.subs, f.store, config.ScannerConfig{
		SubscriptionRetention: 30 * 24 * time.Hour,
		ReminderRetention:     90 * 24 * time.Hour,
	}, logger)
	pruner.now = f.clock

	summary, err := pruner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)

	active, err := f.subs.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	_, err = f.store.GetReminderLog(ctx, "k1")
	assert.True(t, appErr.IsNotFound(err))
}
