package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/tablestore/internal/tabular"
)

// ReconcileJob asks for the exact row count of one streamed file.
type ReconcileJob struct {
	FileID     string
	StoredName string
}

// Reconciler recounts rows of streamed uploads in the background. Jobs are
// best effort: failures are logged and counted, never returned, and only
// the row count of the record is ever written.
type Reconciler struct {
	files     FileRepository
	artifacts ArtifactStore
	workers   int
	jobs      chan ReconcileJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler with a bounded queue. Call Start to
// begin processing.
func NewReconciler(files FileRepository, artifacts ArtifactStore, workers, queueSize int) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Reconciler{
		files:     files,
		artifacts: artifacts,
		workers:   workers,
		jobs:      make(chan ReconcileJob, queueSize),
	}
}

// Start launches the workers. In-flight jobs observe ctx.
func (r *Reconciler) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.jobs {
				reconcileQueueDepth.Dec()
				r.reconcile(ctx, job)
			}
		}()
	}
}

// Submit queues job without blocking. It reports false when the queue is
// full or shut down; the record then keeps an inexact count until a sweep.
func (r *Reconciler) Submit(job ReconcileJob) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		reconcileJobsTotal.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case r.jobs <- job:
		reconcileQueueDepth.Inc()
		return true
	default:
		reconcileJobsTotal.WithLabelValues("dropped").Inc()
		slog.Warn("reconcile queue full, job deferred to sweep",
			"file_id", job.FileID,
			"stored_name", job.StoredName,
		)
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) reconcile(ctx context.Context, job ReconcileJob) {
	start := time.Now()
	logger := slog.With("file_id", job.FileID, "stored_name", job.StoredName)

	count, err := r.count(ctx, job.StoredName)
	if err == nil {
		err = r.files.UpdateRowCount(ctx, job.FileID, count)
	}
	reconcileDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		reconcileJobsTotal.WithLabelValues("reconciled").Inc()
		logger.Info("row count reconciled",
			"row_count", count,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, ErrNotFound):
		// Deleted while queued.
		reconcileJobsTotal.WithLabelValues("gone").Inc()
		logger.Debug("reconcile skipped, file deleted")
	default:
		reconcileJobsTotal.WithLabelValues("failed").Inc()
		logger.Warn("row count reconciliation failed", "error", err)
	}
}

func (r *Reconciler) count(ctx context.Context, storedName string) (int, error) {
	rc, err := r.artifacts.Open(ctx, storedName)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := tabular.CountRows(ctx, rc)
	if err != nil {
		return 0, fmt.Errorf("recount %s: %w", storedName, err)
	}
	return n, nil
}
