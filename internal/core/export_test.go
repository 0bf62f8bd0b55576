package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/tablestore/internal/config"
)

// Hooks for the external test package.

func (s *Service) SweepInexact(ctx context.Context, olderThan time.Time, limit int) int {
	return s.sweepInexact(ctx, olderThan, limit)
}

func (s *Service) RunArchiveJob(ctx context.Context, cfg config.ArchiveConfig, now time.Time) {
	s.runArchiveJob(ctx, cfg, now)
}
