package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/tablestore/internal/core"
)

const auditColumns = `id, action, severity, COALESCE(actor_id::text, ''), actor_email, ip_address,
	user_agent, resource_type, resource_id, detail, created_at`

// Audits implements core.AuditRepository.
type Audits struct {
	db DBTX
}

func NewAudits(db DBTX) *Audits {
	return &Audits{db: db}
}

func (r *Audits) InsertAudit(ctx context.Context, e *core.AuditEntry) error {
	var actorID any
	if e.ActorID != "" {
		actorID = e.ActorID
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO audit_log (action, severity, actor_id, actor_email, ip_address,
			user_agent, resource_type, resource_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		string(e.Action), string(e.Severity), actorID, e.ActorEmail, e.IPAddress,
		e.UserAgent, e.ResourceType, e.ResourceID, e.Detail,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *Audits) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, error) {
	var w whereBuilder
	if filter.Action != "" {
		w.add("action = $%d", string(filter.Action))
	}
	if filter.ResourceID != "" {
		w.add("resource_id = $%d", filter.ResourceID)
	}
	if !filter.Since.IsZero() {
		w.add("created_at >= $%d", filter.Since)
	}
	query := `SELECT ` + auditColumns + ` FROM audit_log` + w.clause() +
		` ORDER BY created_at DESC LIMIT ` + w.next(filter.Limit) + ` OFFSET ` + w.next(filter.Offset)

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			e                core.AuditEntry
			action, severity string
		)
		if err := rows.Scan(&e.ID, &action, &severity, &e.ActorID, &e.ActorEmail, &e.IPAddress,
			&e.UserAgent, &e.ResourceType, &e.ResourceID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		e.Severity = core.AuditSeverity(severity)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ArchiveAudit moves up to batchSize entries older than olderThan into
// audit_log_archive in a single statement.
func (r *Audits) ArchiveAudit(ctx context.Context, olderThan time.Time, batchSize int) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		WITH moved AS (
			DELETE FROM audit_log
			WHERE id IN (
				SELECT id FROM audit_log
				WHERE created_at < $1
				ORDER BY created_at
				LIMIT $2
			)
			RETURNING id, action, severity, actor_id, actor_email, ip_address,
				user_agent, resource_type, resource_id, detail, created_at
		)
		INSERT INTO audit_log_archive (id, action, severity, actor_id, actor_email, ip_address,
			user_agent, resource_type, resource_id, detail, created_at)
		SELECT * FROM moved`, olderThan, batchSize)
	if err != nil {
		return 0, fmt.Errorf("archive audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Audits) PurgeArchivedAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_log_archive WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge audit archive: %w", err)
	}
	return tag.RowsAffected(), nil
}
