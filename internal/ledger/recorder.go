package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const appendTimeout = 5 * time.Second

// Recorder writes ledger entries from a background worker pool. Record
// never blocks and never fails the caller: a full buffer drops the entry
// with a warning, and store errors stay inside the workers.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	entries chan *Entry
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRecorder(store Store, logger *zap.Logger, bufferSize, workers int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		entries: make(chan *Entry, bufferSize),
		workers: workers,
	}
}

func (r *Recorder) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.store.Append(ctx, entry); err != nil {
			r.logger.Warn("failed to append routing log",
				zap.String("caller_id", entry.CallerID),
				zap.String("provider", entry.Provider),
				zap.Error(err))
		}
		cancel()
	}
}

// Record enqueues an entry for background persistence.
func (r *Recorder) Record(entry *Entry) {
	select {
	case r.entries <- entry:
	default:
		r.logger.Warn("routing log buffer full, dropping entry",
			zap.String("caller_id", entry.CallerID))
	}
}

// Stop closes the queue and waits up to timeout for the workers to drain it.
func (r *Recorder) Stop(timeout time.Duration) {
	r.stopOnce.Do(func() {
		close(r.entries)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.logger.Warn("recorder stopped before draining all entries",
			zap.Int("pending", len(r.entries)))
	}
}
