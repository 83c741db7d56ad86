package waitlist

import (
	"context"
	"sync"
	"time"

	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/marketing"
)

const (
	DefaultSyncWorkers   = 2
	DefaultSyncQueueSize = 256
	DefaultSyncTimeout   = 10 * time.Second
)

type SyncerConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type syncJob struct {
	email  string
	source string
}

// Syncer pushes new contacts to the marketing provider off the request path.
// Jobs go through a bounded queue; when it is full the job is dropped.
type Syncer struct {
	client  marketing.Client
	logger  *log.Logger
	metrics *Metrics
	timeout time.Duration

	jobs    chan syncJob
	workers sync.WaitGroup

	// baseCtx is cancelled when Close gives up waiting, aborting in-flight calls.
	baseCtx context.Context
	abort   context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewSyncer starts the worker pool. A nil or unconfigured client yields a
// syncer that logs and skips every dispatch.
func NewSyncer(client marketing.Client, logger *log.Logger, metrics *Metrics, cfg SyncerConfig) *Syncer {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultSyncWorkers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultSyncQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}

	baseCtx, abort := context.WithCancel(context.Background())
	s := &Syncer{
		client:  client,
		logger:  logger,
		metrics: metrics,
		timeout: cfg.Timeout,
		jobs:    make(chan syncJob, cfg.QueueSize),
		baseCtx: baseCtx,
		abort:   abort,
	}

	if s.enabled() {
		for i := 0; i < cfg.Workers; i++ {
			s.workers.Add(1)
			go s.work()
		}
	}

	return s
}

func (s *Syncer) enabled() bool {
	return s.client != nil && s.client.IsConfigured()
}

// Dispatch queues a contact for syncing and returns immediately.
func (s *Syncer) Dispatch(email, source string) {
	redacted := log.RedactEmail(email)

	if !s.enabled() {
		s.logger.Info("Marketing sync skipped", "email", redacted, "reason", marketing.NotConfiguredMessage)
		s.metrics.observeSync(syncSkipped)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("Marketing sync dropped, syncer is closed", "email", redacted)
		s.metrics.observeSync(syncDropped)
		return
	}

	select {
	case s.jobs <- syncJob{email: email, source: source}:
	default:
		s.logger.Warn("Marketing sync dropped, queue is full", "email", redacted, "capacity", cap(s.jobs))
		s.metrics.observeSync(syncDropped)
	}
}

// Sync upserts one contact synchronously under the syncer's deadline.
func (s *Syncer) Sync(ctx context.Context, email, source string) marketing.SyncResult {
	redacted := log.RedactEmail(email)

	if !s.enabled() {
		s.logger.Info("Marketing sync skipped", "email", redacted, "reason", marketing.NotConfiguredMessage)
		s.metrics.observeSync(syncSkipped)
		return marketing.SyncResult{Success: false, Error: marketing.NotConfiguredMessage}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result := s.client.UpsertContact(ctx, email, source)
	elapsed := time.Since(start).Milliseconds()

	if result.Success {
		s.logger.Info("Marketing sync succeeded", "email", redacted, "status", result.StatusCode, "latency_ms", elapsed)
		s.metrics.observeSync(syncSuccess)
	} else {
		s.logger.Warn("Marketing sync failed", "email", redacted, "status", result.StatusCode, "error", result.Error, "latency_ms", elapsed)
		s.metrics.observeSync(syncFailure)
	}

	return result
}

func (s *Syncer) work() {
	defer s.workers.Done()

	for job := range s.jobs {
		if s.baseCtx.Err() != nil {
			s.logger.Warn("Marketing sync dropped during shutdown", "email", log.RedactEmail(job.email))
			s.metrics.observeSync(syncDropped)
			continue
		}
		s.Sync(s.baseCtx, job.email, job.source)
	}
}

// Close stops accepting jobs and waits for queued ones until ctx is done,
// then aborts whatever is still running.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.abort()
		return nil
	case <-ctx.Done():
		s.abort()
		<-done
		return ctx.Err()
	}
}
