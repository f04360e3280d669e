package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

func (s *Service) ListClients(ctx context.Context, filter store.ClientFilter) ([]domain.Client, error) {
	return s.repo.ListClients(ctx, filter)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Client{}, notFound("client not found", err)
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Client{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Client{}, err
	}

	code, err := s.nextCode(ctx, sequence.ScopeClient, sequence.NotFoundMeansFree(func(ctx context.Context, code string) (*domain.Client, error) {
		return s.repo.GetClientByCode(ctx, code, store.ViewAll)
	}))
	if err != nil {
		return domain.Client{}, err
	}

	now := s.now()
	created, err := s.repo.CreateClient(ctx, domain.Client{
		ID:        xid.New(),
		Code:      code,
		LastName:  strings.TrimSpace(req.LastName),
		FirstName: strings.TrimSpace(req.FirstName),
		Phone:     req.Phone,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Address:   strings.TrimSpace(req.Address),
		Lifecycle: domain.LifecycleActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "clients", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Client{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Client{}, err
	}

	existing, err := s.repo.GetClient(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Client{}, notFound("client not found", err)
	}

	updated := *existing
	if req.LastName != nil {
		updated.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.FirstName != nil {
		updated.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.Phone != nil {
		updated.Phone = *req.Phone
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateClient(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "clients", domain.AuditUpdate, map[string]any{"before": existing, "after": saved})
	return *saved, nil
}

func (s *Service) DeleteClient(ctx context.Context, id string) (domain.Client, error) {
	return s.setClientLifecycle(ctx, id, store.ViewActive, domain.LifecycleDeleted, domain.AuditDelete)
}

func (s *Service) RestoreClient(ctx context.Context, id string) (domain.Client, error) {
	return s.setClientLifecycle(ctx, id, store.ViewDeleted, domain.LifecycleActive, domain.AuditRestore)
}

func (s *Service) setClientLifecycle(ctx context.Context, id string, from store.View, to domain.Lifecycle, action domain.AuditAction) (domain.Client, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}

	existing, err := s.repo.GetClient(ctx, id, from)
	if err != nil {
		return domain.Client{}, notFound("client not found", err)
	}

	existing.Lifecycle = to
	existing.UpdatedAt = s.now()
	saved, err := s.repo.UpdateClient(ctx, *existing)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "clients", action, map[string]string{"id": saved.ID, "code": saved.Code})
	return *saved, nil
}

// ClientHistory lists the client's sales, newest first.
func (s *Service) ClientHistory(ctx context.Context, id string) ([]domain.Sale, error) {
	if _, err := s.repo.GetClient(ctx, id, store.ViewAll); err != nil {
		return nil, notFound("client not found", err)
	}
	return s.repo.ListSales(ctx, store.SaleFilter{ClientID: id})
}

func (s *Service) ClientStats(ctx context.Context, id string) (domain.ClientStats, error) {
	sales, err := s.ClientHistory(ctx, id)
	if err != nil {
		return domain.ClientStats{}, err
	}

	stats := domain.ClientStats{TotalSpent: decimal.Zero}
	for i, sale := range sales {
		if sale.Status == domain.SaleStatusCancelled {
			continue
		}
		stats.TotalSales++
		stats.TotalSpent = stats.TotalSpent.Add(sale.NetTotal)
		if stats.LastSale == nil {
			stats.LastSale = &sales[i]
		}
	}
	return stats, nil
}
