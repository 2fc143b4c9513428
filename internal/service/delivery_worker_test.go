package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/push"
)

func TestDeliveryWorker_Outcomes(t *testing.T) {
	tests := []struct {
		name            string
		sendErr         error
		deactivateFirst bool
		wantSummary     model.Summary
		wantStatus      model.QueueStatus
		wantAttempts    int
		wantSubActive   bool
		wantRecipient   model.RecipientStatus
		wantEvent       model.QueueStatus
	}{
		{
			name:          "sent",
			wantSummary:   model.Summary{Processed: 1, Succeeded: 1},
			wantStatus:    model.QueueSent,
			wantAttempts:  1,
			wantSubActive: true,
			wantRecipient: model.RecipientDelivered,
			wantEvent:     model.QueueSent,
		},
		{
			name:          "endpoint gone deactivates without using budget",
			sendErr:       fmt.Errorf("status 410: %w", push.ErrEndpointGone),
			wantSummary:   model.Summary{Processed: 1, Failed: 1},
			wantStatus:    model.QueueFailed,
			wantAttempts:  0,
			wantSubActive: false,
			wantRecipient: model.RecipientPending,
			wantEvent:     model.QueueFailed,
		},
		{
			name:          "payload rejected fails immediately",
			sendErr:       fmt.Errorf("status 413: %w", push.ErrPayloadRejected),
			wantSummary:   model.Summary{Processed: 1, Failed: 1},
			wantStatus:    model.QueueFailed,
			wantAttempts:  1,
			wantSubActive: true,
			wantRecipient: model.RecipientPending,
			wantEvent:     model.QueueFailed,
		},
		{
			name:          "transient error schedules a retry",
			sendErr:       errors.New("connection reset"),
			wantSummary:   model.Summary{Processed: 1, Retried: 1},
			wantStatus:    model.QueuePending,
			wantAttempts:  1,
			wantSubActive: true,
			wantRecipient: model.RecipientPending,
			wantEvent:     model.QueueRetrying,
		},
		{
			name:            "inactive subscription is never sent",
			deactivateFirst: true,
			wantSummary:     model.Summary{Processed: 1, Failed: 1},
			wantStatus:      model.QueueFailed,
			wantAttempts:    0,
			wantSubActive:   false,
			wantRecipient:   model.RecipientPending,
			wantEvent:       model.QueueFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			sub := f.register(t, "u1", "phone")
			n := f.publishTo(t, "u1")

			if tt.deactivateFirst {
				require.NoError(t, f.subs.Deactivate(ctx, sub.ID, ""))
			} else {
				f.sender.On("Send", mockAny, mock.MatchedBy(func(s model.Subscription) bool {
					return s.ID == sub.ID
				}), mock.MatchedBy(func(p push.Payload) bool {
					return p.NotificationID == n.ID && p.Title == n.Title
				})).Return(tt.sendErr).Once()
			}

			summary, err := f.worker.RunOnce(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSummary, summary)

			entries := f.queueEntries(t, n.ID)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantStatus, entries[0].Status)
			assert.Equal(t, tt.wantAttempts, entries[0].Attempts)

			stored, err := f.store.GetSubscription(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubActive, stored.Active)

			r, err := f.store.GetRecipient(ctx, n.ID, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRecipient, r.Status)

			assert.Equal(t, []model.QueueStatus{tt.wantEvent}, f.events.statuses())
		})
	}
}

func TestDeliveryWorker_TransientFailuresExhaustBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u1", "phone")
	n := f.publishTo(t, "u1")

	f.sender.On("Send", mockAny, mockAny, mockAny).Return(errors.New("503 service unavailable")).Times(3)

	for attempt := 1; attempt <= 3; attempt++ {
		summary, err := f.worker.RunOnce(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed, "attempt %d", attempt)

		// nothing is due until the backoff elapses
		summary, err = f.worker.RunOnce(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)

		f.advance(time.Hour)
	}

	entries := f.queueEntries(t, n.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.QueueFailed, entries[0].Status)
	assert.Equal(t, 3, entries[0].Attempts)
	require.NotNil(t, entries[0].LastError)
	assert.Contains(t, *entries[0].LastError, "503")

	// failed is terminal
	f.advance(24 * time.Hour)
	summary, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)

	assert.Equal(t,
		[]model.QueueStatus{model.QueueRetrying, model.QueueRetrying, model.QueueFailed},
		f.events.statuses())
}

func TestDeliveryWorker_RetryWaitsForBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u1", "phone")
	n := f.publishTo(t, "u1")

	f.sender.On("Send", mockAny, mockAny, mockAny).Return(errors.New("timeout")).Once()
	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	entry := f.queueEntries(t, n.ID)[0]
	require.NotNil(t, entry.NextRetryAt)
	assert.True(t, entry.NextRetryAt.Equal(t0.Add(time.Minute)))
	assert.Nil(t, entry.ClaimToken)

	f.advance(59 * time.Second)
	summary, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)

	f.sender.On("Send", mockAny, mockAny, mockAny).Return(nil).Once()
	f.advance(time.Second)
	summary, err = f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 1, Succeeded: 1}, summary)

	entry = f.queueEntries(t, n.ID)[0]
	assert.Equal(t, model.QueueSent, entry.Status)
	assert.Equal(t, 2, entry.Attempts)
	require.NotNil(t, entry.SentAt)
}

func TestDeliveryWorker_DeliversBatchConcurrently(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, user := range []string{"u1", "u2", "u3"} {
		f.register(t, user, "phone")
		f.register(t, user, "laptop")
	}
	n := f.publishTo(t, "u1", "u2", "u3")

	f.sender.On("Send", mockAny, mockAny, mockAny).Return(nil).Times(6)

	summary, err := f.worker.RunOnce(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 4, Succeeded: 4}, summary)

	summary, err = f.worker.RunOnce(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 2, Succeeded: 2}, summary)

	for _, e := range f.queueEntries(t, n.ID) {
		assert.Equal(t, model.QueueSent, e.Status)
	}
}

func TestDeliveryWorker_RebindsToReregisteredDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.register(t, "u1", "phone")
	n := f.publishTo(t, "u1")

	// the phone unsubscribes and subscribes again before the worker runs
	require.NoError(t, f.subs.Deactivate(ctx, old.ID, ""))
	fresh := f.register(t, "u1", "phone")
	require.NotEqual(t, old.ID, fresh.ID)

	f.sender.On("Send", mockAny, mock.MatchedBy(func(s model.Subscription) bool {
		return s.ID == fresh.ID
	}), mockAny).Return(nil).Once()

	summary, err := f.worker.RunOnce(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 1, Succeeded: 1}, summary)

	entries := f.queueEntries(t, n.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.QueueSent, entries[0].Status)
	assert.Equal(t, fresh.ID, entries[0].SubscriptionID)
}

func TestDeliveryWorker_OverlappingCyclesSendOncePerEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const users = 8
	for i := range users {
		f.register(t, fmt.Sprintf("u%d", i), "phone")
		f.register(t, fmt.Sprintf("u%d", i), "laptop")
	}
	var ids []string
	for i := range users {
		ids = append(ids, fmt.Sprintf("u%d", i))
	}
	n := f.publishTo(t, ids...)

	var (
		mu    sync.Mutex
		sends = map[string]int{}
	)
	f.sender.On("Send", mockAny, mockAny, mockAny).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		sends[args.Get(1).(model.Subscription).ID]++
	}).Return(nil)

	var (
		wg        sync.WaitGroup
		summaries = make([]model.Summary, 2)
		errs      = make([]error, 2)
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				summary, err := f.worker.RunOnce(ctx, 3)
				if err != nil {
					errs[i] = err
					return
				}
				if summary.Processed == 0 {
					return
				}
				summaries[i].Processed += summary.Processed
				summaries[i].Succeeded += summary.Succeeded
			}
		}()
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	assert.Equal(t, 2*users, summaries[0].Processed+summaries[1].Processed)
	assert.Equal(t, 2*users, summaries[0].Succeeded+summaries[1].Succeeded)
	assert.Len(t, sends, 2*users)
	for sub, times := range sends {
		assert.Equal(t, 1, times, "subscription %s sent more than once", sub)
	}
	for _, e := range f.queueEntries(t, n.ID) {
		assert.Equal(t, model.QueueSent, e.Status)
	}
}

func TestDeliveryWorker_Reap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "u1", "phone")
	n := f.publishTo(t, "u1")

	// a worker claimed the entry and died before finishing
	claimed, err := f.store.ClaimPending(ctx, f.clock(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	staleToken := *claimed[0].ClaimToken

	summary, err := f.worker.Reap(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed, "claim is still fresh")

	f.advance(6 * time.Minute)
	summary, err = f.worker.Reap(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Summary{Processed: 1, Retried: 1}, summary)

	entry := f.queueEntries(t, n.ID)[0]
	assert.Equal(t, model.QueuePending, entry.Status)
	assert.Equal(t, 1, entry.Attempts)

	// the dead worker's late transition is fenced off
	ok, err := f.store.MarkSent(ctx, entry.ID, staleToken, f.clock())
	require.NoError(t, err)
	assert.False(t, ok)

	// reaping at the last attempt fails the entry
	for range 2 {
		f.advance(2 * time.Hour)
		_, err := f.store.ClaimPending(ctx, f.clock(), 10)
		require.NoError(t, err)
		f.advance(6 * time.Minute)
		_, err = f.worker.Reap(ctx, 10)
		require.NoError(t, err)
	}
	entry = f.queueEntries(t, n.ID)[0]
	assert.Equal(t, model.QueueFailed, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
	require.NotNil(t, entry.LastError)
	assert.Equal(t, reasonReaped, *entry.LastError)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: time.Minute},
		{attempts: 1, want: time.Minute},
		{attempts: 2, want: 2 * time.Minute},
		{attempts: 3, want: 4 * time.Minute},
		{attempts: 6, want: 32 * time.Minute},
		{attempts: 7, want: time.Hour},
		{attempts: 60, want: time.Hour},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempts), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.attempts, time.Minute, time.Hour))
		})
	}
}
