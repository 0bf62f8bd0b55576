package core

// scheduler.go runs periodic maintenance in the background:
//
//   - audit archiving moves old entries from audit_log to audit_log_archive
//     and purges archives past the retention period;
//   - the reconcile sweep re-queues streamed files whose row count never
//     got reconciled, e.g. because the queue was full or the process
//     restarted mid-job.
//
// Jobs run once immediately and then on every tick. Failures are logged and
// the job tries again on the next tick.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/tablestore/internal/config"
)

// runEvery calls job now and then every interval until ctx is done.
func runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	slog.Info("scheduler started", "job", name, "interval", interval)

	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "job", name)
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// StartArchiveScheduler archives and purges audit entries until ctx is done.
// It blocks; run it in its own goroutine.
func (s *Service) StartArchiveScheduler(ctx context.Context, cfg config.ArchiveConfig) {
	if s.audits == nil {
		return
	}
	runEvery(ctx, "audit_archive", cfg.CheckInterval, func(ctx context.Context) {
		s.runArchiveJob(ctx, cfg, time.Now())
	})
}

func (s *Service) runArchiveJob(ctx context.Context, cfg config.ArchiveConfig, now time.Time) {
	start := time.Now()

	hotCutoff := now.AddDate(0, 0, -cfg.HotRetentionDays)
	archived, err := s.audits.ArchiveAudit(ctx, hotCutoff, cfg.BatchSize)
	if err != nil {
		slog.Error("archive failed", "error", err)
	} else {
		slog.Info("archived audit log entries", "entries_archived", archived)
	}

	purgeCutoff := now.AddDate(-cfg.ArchiveRetentionYears, 0, 0)
	purged, err := s.audits.PurgeArchivedAudit(ctx, purgeCutoff)
	if err != nil {
		slog.Error("purge failed", "error", err)
	} else {
		slog.Info("purged old archive entries", "entries_purged", purged)
	}

	slog.Info("archive job completed", "duration_ms", time.Since(start).Milliseconds())
}

// StartReconcileSweeper re-queues files with inexact row counts until ctx is
// done. It blocks; run it in its own goroutine.
func (s *Service) StartReconcileSweeper(ctx context.Context, cfg config.ReconcileConfig) {
	runEvery(ctx, "reconcile_sweep", cfg.SweepInterval, func(ctx context.Context) {
		s.sweepInexact(ctx, time.Now().Add(-cfg.SweepInterval), cfg.SweepBatch)
	})
}

// sweepInexact submits reconciliation for streamed files created before
// olderThan whose row count is still a preview count.
func (s *Service) sweepInexact(ctx context.Context, olderThan time.Time, limit int) int {
	files, err := s.files.ListInexactFiles(ctx, olderThan, limit)
	if err != nil {
		slog.Error("reconcile sweep failed", "error", err)
		return 0
	}

	queued := 0
	for _, f := range files {
		if s.reconciler.Submit(ReconcileJob{FileID: f.ID, StoredName: f.StoredName}) {
			queued++
		}
	}
	if len(files) > 0 {
		slog.Info("reconcile sweep", "candidates", len(files), "queued", queued)
	}
	return queued
}
