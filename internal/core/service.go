package core

import (
	"context"
	"errors"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/JonMunkholm/tablestore/internal/config"
)

// Deps are the collaborators a Service is built from. Audits may be nil to
// disable the audit trail.
type Deps struct {
	Files     FileRepository
	Users     UserRepository
	Audits    AuditRepository
	Artifacts ArtifactStore
	Hasher    PasswordHasher
}

// Service provides the business logic for file ingestion and account
// administration. Every operation that touches a file or user record takes
// the acting Actor and authorizes through AccessPolicy first.
type Service struct {
	files     FileRepository
	users     UserRepository
	audits    AuditRepository
	artifacts ArtifactStore
	hasher    PasswordHasher

	policy     AccessPolicy
	limiter    *UploadLimiter
	reconciler *Reconciler
	actors     *actorCache
	names      *bluemonday.Policy

	previewRows       int
	allowedExtensions []string
	uploadTimeout     time.Duration
}

// NewService wires a Service. Background work does not run until
// StartBackground is called.
func NewService(deps Deps, cfg *config.Config) (*Service, error) {
	if deps.Files == nil || deps.Users == nil || deps.Artifacts == nil || deps.Hasher == nil {
		return nil, errors.New("core: files, users, artifacts and hasher are required")
	}

	return &Service{
		files:     deps.Files,
		users:     deps.Users,
		audits:    deps.Audits,
		artifacts: deps.Artifacts,
		hasher:    deps.Hasher,

		limiter:    NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		reconciler: NewReconciler(deps.Files, deps.Artifacts, cfg.Reconcile.Workers, cfg.Reconcile.QueueSize),
		actors:     newActorCache(cfg.Cache.ActorSize, cfg.Cache.ActorTTL),
		names:      bluemonday.StrictPolicy(),

		previewRows:       cfg.Upload.PreviewRows,
		allowedExtensions: cfg.Upload.AllowedExtensions,
		uploadTimeout:     cfg.Upload.Timeout,
	}, nil
}

// StartBackground starts reconciliation workers and the periodic jobs.
// They stop when ctx is cancelled; use Shutdown to drain.
func (s *Service) StartBackground(ctx context.Context, cfg *config.Config) {
	s.reconciler.Start(ctx)
	go s.StartReconcileSweeper(ctx, cfg.Reconcile)
	go s.StartArchiveScheduler(ctx, cfg.Archive)
}

// Shutdown waits for active uploads and queued reconciliation jobs.
func (s *Service) Shutdown(ctx context.Context) error {
	uploadsErr := s.limiter.WaitForDrain(ctx)
	return errors.Join(uploadsErr, s.reconciler.Shutdown(ctx))
}

// UploadLimiter exposes the limiter for health reporting.
func (s *Service) UploadLimiter() *UploadLimiter {
	return s.limiter
}

// Reconciler exposes the background recount queue.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}
