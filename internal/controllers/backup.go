package controllers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kinolog/kinolog/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Uploader is the external collaborator that snapshots the store
// off-box. The trigger only decides when it runs.
type Uploader interface {
	Upload(ctx context.Context) error
}

// BackupTrigger coalesces backup requests from the ingestion path and
// serializes the actual uploads: at most one pending request, at most
// one upload in flight.
type BackupTrigger struct {
	uploader Uploader
	timeout  time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex // held for the duration of an upload
	pending atomic.Bool
	wg      sync.WaitGroup
}

// NewBackupTrigger creates a backup trigger. timeout bounds a single
// upload.
func NewBackupTrigger(uploader Uploader, timeout time.Duration, logger *logrus.Logger) *BackupTrigger {
	return &BackupTrigger{
		uploader: uploader,
		timeout:  timeout,
		logger:   logger,
	}
}

// Schedule requests a backup. Non-blocking; a call while a request is
// already pending is a no-op.
func (t *BackupTrigger) Schedule() {
	if t.uploader == nil {
		return
	}
	if !t.pending.CompareAndSwap(false, true) {
		t.logger.Debug("Backup already pending, coalescing request")
		return
	}

	metrics.BackupsScheduled.Inc()
	t.wg.Add(1)
	go t.run()
}

func (t *BackupTrigger) run() {
	defer t.wg.Done()

	t.mu.Lock()
	defer t.mu.Unlock()

	// A batch finishing during this upload may schedule the next one
	t.pending.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	t.logger.Info("Starting store backup")
	if err := t.uploader.Upload(ctx); err != nil {
		t.logger.WithError(err).Error("Store backup failed")
		return
	}
	t.logger.Info("Store backup completed")
}

// Flush waits for in-flight uploads, used on shutdown
func (t *BackupTrigger) Flush() {
	t.wg.Wait()
}
