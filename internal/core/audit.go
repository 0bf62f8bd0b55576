package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/tablestore/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionUserRegister      AuditAction = "user_register"
	ActionFileUpload        AuditAction = "file_upload"
	ActionFileColumnsUpdate AuditAction = "file_columns_update"
	ActionFileDelete        AuditAction = "file_delete"
	ActionUserUpdate        AuditAction = "user_update"
	ActionUserPermissions   AuditAction = "user_permissions_update"
	ActionUserDelete        AuditAction = "user_delete"
)

const (
	auditResourceFile = "file"
	auditResourceUser = "user"

	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string         `json:"id"`
	Action       AuditAction    `json:"action"`
	Severity     AuditSeverity  `json:"severity"`
	ActorID      string         `json:"actorId,omitempty"`
	ActorEmail   string         `json:"actorEmail,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditFilter contains filtering options for querying audit logs.
type AuditFilter struct {
	Action     AuditAction
	ResourceID string
	Since      time.Time
	Limit      int
	Offset     int
}

func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionUserDelete, ActionUserPermissions:
		return SeverityHigh
	case ActionFileDelete:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// audit records a mutation. Failures are logged and never fail the caller.
func (s *Service) audit(ctx context.Context, actor Actor, action AuditAction, resourceType, resourceID string, detail map[string]any) {
	if s.audits == nil {
		return
	}
	entry := &AuditEntry{
		Action:       action,
		Severity:     determineSeverity(action),
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		IPAddress:    ipAddressFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
	}
	if err := s.audits.InsertAudit(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("audit write failed",
			"action", action,
			"resource_id", resourceID,
			"error", err,
		)
	}
}

// ListAudit returns audit entries, newest first. Requires manage_users.
func (s *Service) ListAudit(ctx context.Context, actor Actor, filter AuditFilter) ([]AuditEntry, error) {
	if err := s.policy.AuthorizeUserAdmin(actor); err != nil {
		return nil, err
	}
	if s.audits == nil {
		return []AuditEntry{}, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.audits.ListAudit(ctx, filter)
}
