package service

import (
	"context"
	"time"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

const defaultAuditLimit = 200

func (s *Service) ListAuditLogs(ctx context.Context, filter store.AuditFilter) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, invalidInput("unknown audit action %s", filter.Action)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	return s.repo.ListAuditLogs(ctx, filter)
}

func (s *Service) GetAuditLog(ctx context.Context, id string) (domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.AuditLog{}, err
	}
	entry, err := s.repo.GetAuditLog(ctx, id)
	if err != nil {
		return domain.AuditLog{}, notFound("audit log not found", err)
	}
	return *entry, nil
}

func (s *Service) AuditStats(ctx context.Context, from, to *time.Time) (domain.AuditStats, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.AuditStats{}, err
	}
	entries, err := s.repo.ListAuditLogs(ctx, store.AuditFilter{From: from, To: to})
	if err != nil {
		return domain.AuditStats{}, err
	}

	stats := domain.AuditStats{
		ByAction: map[domain.AuditAction]int{},
		ByTable:  map[string]int{},
		ByUser:   map[string]int{},
	}
	for _, entry := range entries {
		stats.Total++
		stats.ByAction[entry.Action]++
		stats.ByTable[entry.Table]++
		stats.ByUser[entry.UserID]++
	}
	return stats, nil
}

// PurgeAuditLogs removes entries older than KeepDays and reports how many
// were dropped.
func (s *Service) PurgeAuditLogs(ctx context.Context, req domain.AuditPurgeRequest) (int, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return 0, err
	}
	if err := validate(req.Validate()); err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -req.KeepDays)
	removed, err := s.repo.DeleteAuditLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logAudit(ctx, "audit_logs", domain.AuditDelete, map[string]any{"before": cutoff, "removed": removed})
	return removed, nil
}
