package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/messaging"
)

type publishCall struct {
	Subject string
	MsgID   string
	Data    []byte
	Header  map[string]string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, subject, msgID string, data []byte, header map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{Subject: subject, MsgID: msgID, Data: data, Header: header})
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) Calls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

func newTestDispatcher(repo Repository, pub messaging.Publisher) *Dispatcher {
	log := logging.New(slog.LevelError, "json")
	return NewDispatcher(repo, pub, DispatcherConfig{PollInterval: time.Second, BatchSize: 10}, log)
}

func TestDispatcherPublishesPendingEntry(t *testing.T) {
	repo := NewMemoryRepository()
	pub := &fakePublisher{}
	d := newTestDispatcher(repo, pub)
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	d.drainBatch(ctx)

	calls := pub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "events.inventory.goods.received", calls[0].Subject)
	assert.Equal(t, entry.ID, calls[0].MsgID)
	assert.Equal(t, entry.Envelope, calls[0].Data)
	assert.Equal(t, entry.TenantID, calls[0].Header[messaging.HeaderTenantID])
	assert.Equal(t, entry.EventType, calls[0].Header[messaging.HeaderEventType])
	assert.Equal(t, "0", calls[0].Header[messaging.HeaderRetryCount])

	got, ok := repo.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPublished, got.Status)
}

func TestDispatcherSchedulesRetryOnPublishError(t *testing.T) {
	repo := NewMemoryRepository()
	pub := &fakePublisher{err: errors.New("connection refused")}
	d := newTestDispatcher(repo, pub)
	ctx := context.Background()

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	d.drainBatch(ctx)

	got, ok := repo.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "connection refused", got.LastError)
	assert.True(t, got.ScheduledAt.After(time.Now().UTC()), "retry must be deferred")
}

func TestDispatcherExhaustsRetryBudget(t *testing.T) {
	repo := NewMemoryRepository()
	pub := &fakePublisher{err: errors.New("connection refused")}
	d := newTestDispatcher(repo, pub)
	ctx := context.Background()
	// Start the fake clock strictly after the entry's real enqueue time so the
	// first claim finds it due; a hard-coded date would rot once it passes.
	base := time.Now().UTC().Add(time.Hour)

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	for i := 0; i < DefaultMaxRetries; i++ {
		// Advance the clock past every accumulated backoff so the entry is
		// always due again.
		tick := base.Add(time.Duration(i) * time.Hour)
		repo.SetClock(func() time.Time { return tick })
		d.drainBatch(ctx)
	}

	got, ok := repo.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, DefaultMaxRetries, got.RetryCount)
	assert.Len(t, pub.Calls(), DefaultMaxRetries)

	// A FAILED entry is never claimed again.
	repo.SetClock(func() time.Time { return base.Add(100 * time.Hour) })
	d.drainBatch(ctx)
	assert.Len(t, pub.Calls(), DefaultMaxRetries)
}

func TestDispatcherStartStop(t *testing.T) {
	repo := NewMemoryRepository()
	pub := &fakePublisher{}
	log := logging.New(slog.LevelError, "json")
	d := NewDispatcher(repo, pub, DispatcherConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10}, log)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	assert.ErrorIs(t, d.Start(ctx), ErrAlreadyRunning)

	entry, err := NewEntry(testEnvelope(t))
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, entry))

	require.Eventually(t, func() bool {
		got, ok := repo.Get(entry.ID)
		return ok && got.Status == StatusPublished
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop() // idempotent
}
