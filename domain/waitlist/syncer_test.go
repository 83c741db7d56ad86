package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/marketing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeMarketing records upserts. When gate is set each call blocks until the
// gate is closed or its context ends.
type fakeMarketing struct {
	mu      sync.Mutex
	emails  []string
	started chan string
	gate    chan struct{}
	result  marketing.SyncResult
}

func newFakeMarketing() *fakeMarketing {
	return &fakeMarketing{
		started: make(chan string, 16),
		result:  marketing.SyncResult{Success: true, StatusCode: 201},
	}
}

func (f *fakeMarketing) IsConfigured() bool { return true }

func (f *fakeMarketing) UpsertContact(ctx context.Context, email, _ string) marketing.SyncResult {
	f.started <- email
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return marketing.SyncResult{Success: false, Error: ctx.Err().Error()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
	return f.result
}

func (f *fakeMarketing) synced() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emails...)
}

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestSyncer_DispatchDeliversAndCloseDrains(t *testing.T) {
	client := newFakeMarketing()
	metrics := newTestMetrics()
	syncer := NewSyncer(client, log.NewDiscardLogger(), metrics, SyncerConfig{Workers: 2, QueueSize: 8})

	syncer.Dispatch("a@example.com", "hero")
	syncer.Dispatch("b@example.com", "hero")
	syncer.Dispatch("c@example.com", "hero")

	require.NoError(t, syncer.Close(context.Background()))
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, client.synced())
	assert.Equal(t, 3.0, counterValue(t, metrics.syncs, syncSuccess))
}

func TestSyncer_DropsWhenQueueIsFull(t *testing.T) {
	client := newFakeMarketing()
	client.gate = make(chan struct{})
	metrics := newTestMetrics()
	syncer := NewSyncer(client, log.NewDiscardLogger(), metrics, SyncerConfig{Workers: 1, QueueSize: 1})

	syncer.Dispatch("busy@example.com", "")
	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first job")
	}

	syncer.Dispatch("queued@example.com", "")
	syncer.Dispatch("dropped@example.com", "")
	assert.Equal(t, 1.0, counterValue(t, metrics.syncs, syncDropped))

	close(client.gate)
	require.NoError(t, syncer.Close(context.Background()))
	assert.Equal(t, []string{"busy@example.com", "queued@example.com"}, client.synced())
}

func TestSyncer_DispatchAfterCloseIsDropped(t *testing.T) {
	client := newFakeMarketing()
	metrics := newTestMetrics()
	syncer := NewSyncer(client, log.NewDiscardLogger(), metrics, SyncerConfig{})

	require.NoError(t, syncer.Close(context.Background()))
	require.NoError(t, syncer.Close(context.Background()), "second close is a no-op")

	syncer.Dispatch("late@example.com", "")
	assert.Empty(t, client.synced())
	assert.Equal(t, 1.0, counterValue(t, metrics.syncs, syncDropped))
}

func TestSyncer_CloseDeadlineAbortsInFlightCalls(t *testing.T) {
	client := newFakeMarketing()
	client.gate = make(chan struct{})
	syncer := NewSyncer(client, log.NewDiscardLogger(), nil, SyncerConfig{Workers: 1, Timeout: time.Minute})

	syncer.Dispatch("slow@example.com", "")
	<-client.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := syncer.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, client.synced(), "the blocked call was cancelled, not completed")
}

func TestSyncer_SyncAppliesTimeoutAndReportsFailure(t *testing.T) {
	client := newFakeMarketing()
	client.gate = make(chan struct{})
	metrics := newTestMetrics()
	syncer := NewSyncer(client, log.NewDiscardLogger(), metrics, SyncerConfig{Timeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = syncer.Close(context.Background()) })

	result := syncer.Sync(context.Background(), "ada@example.com", "hero")

	assert.False(t, result.Success)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Error)
	assert.Equal(t, 1.0, counterValue(t, metrics.syncs, syncFailure))
}

func TestSyncer_UnconfiguredClientSkips(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := marketing.NewMockClient(ctrl)
	client.EXPECT().IsConfigured().Return(false).AnyTimes()

	for name, c := range map[string]marketing.Client{"nil": nil, "unconfigured": client} {
		t.Run(name, func(t *testing.T) {
			metrics := newTestMetrics()
			syncer := NewSyncer(c, log.NewDiscardLogger(), metrics, SyncerConfig{})

			syncer.Dispatch("ada@example.com", "hero")
			result := syncer.Sync(context.Background(), "ada@example.com", "hero")

			assert.False(t, result.Success)
			assert.Equal(t, marketing.NotConfiguredMessage, result.Error)
			assert.Equal(t, 2.0, counterValue(t, metrics.syncs, syncSkipped))
			require.NoError(t, syncer.Close(context.Background()))
		})
	}
}
