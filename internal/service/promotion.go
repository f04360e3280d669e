package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) ListPromotions(ctx context.Context, filter store.PromotionFilter) ([]domain.Promotion, error) {
	return s.repo.ListPromotions(ctx, filter)
}

// ListActivePromotions returns the promotions whose window contains now.
func (s *Service) ListActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.repo.ListPromotions(ctx, store.PromotionFilter{View: store.ViewActive, ActiveAt: timePtr(s.now())})
}

func (s *Service) GetPromotion(ctx context.Context, id string) (domain.Promotion, error) {
	promo, err := s.repo.GetPromotion(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Promotion{}, notFound("promotion not found", err)
	}
	return *promo, nil
}

func (s *Service) GetPromotionByCode(ctx context.Context, code string) (domain.Promotion, error) {
	promo, err := s.repo.GetPromotionByCode(ctx, normalizeCode(code), store.ViewActive)
	if err != nil {
		return domain.Promotion{}, notFound("promotion not found", err)
	}
	return *promo, nil
}

// ApplyPromotion prices amount with the promotion registered under code.
func (s *Service) ApplyPromotion(ctx context.Context, req domain.PromotionApplyRequest) (domain.PromotionResult, error) {
	if err := validate(req.Validate()); err != nil {
		return domain.PromotionResult{}, err
	}
	return s.promotions.Apply(ctx, normalizeCode(req.Code), req.Amount, s.now())
}

func (s *Service) CreatePromotion(ctx context.Context, req domain.PromotionCreateRequest) (domain.Promotion, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Promotion{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Promotion{}, err
	}

	promo := domain.Promotion{
		ID:          xid.New(),
		Name:        strings.TrimSpace(req.Name),
		Code:        normalizeCode(req.Code),
		Description: strings.TrimSpace(req.Description),
		Type:        req.Type,
		Value:       req.Value,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		ProductID:   nonEmpty(req.ProductID),
		CategoryID:  nonEmpty(req.CategoryID),
		Lifecycle:   domain.LifecycleActive,
	}
	if err := s.checkPromotion(ctx, promo); err != nil {
		return domain.Promotion{}, err
	}

	if promo.Code == "" {
		code, err := s.nextCode(ctx, sequence.ScopePromotion, sequence.NotFoundMeansFree(func(ctx context.Context, code string) (*domain.Promotion, error) {
			return s.repo.GetPromotionByCode(ctx, code, store.ViewAll)
		}))
		if err != nil {
			return domain.Promotion{}, err
		}
		promo.Code = code
	}

	now := s.now()
	promo.CreatedAt = now
	promo.UpdatedAt = now
	created, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.promotions.Invalidate(ctx, created.Code)
	s.logAudit(ctx, "promotions", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdatePromotion(ctx context.Context, id string, req domain.PromotionUpdateRequest) (domain.Promotion, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Promotion{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Promotion{}, err
	}

	existing, err := s.repo.GetPromotion(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Promotion{}, notFound("promotion not found", err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Type != nil {
		updated.Type = *req.Type
	}
	if req.Value != nil {
		updated.Value = *req.Value
	}
	if req.StartsAt != nil {
		updated.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		updated.EndsAt = req.EndsAt.UTC()
	}
	if req.ProductID != nil {
		updated.ProductID = nonEmpty(req.ProductID)
	}
	if req.CategoryID != nil {
		updated.CategoryID = nonEmpty(req.CategoryID)
	}
	if err := s.checkPromotion(ctx, updated); err != nil {
		return domain.Promotion{}, err
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdatePromotion(ctx, updated)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.promotions.Invalidate(ctx, saved.Code)
	s.logAudit(ctx, "promotions", domain.AuditUpdate, map[string]any{"before": existing, "after": saved})
	return *saved, nil
}

func (s *Service) DeletePromotion(ctx context.Context, id string) (domain.Promotion, error) {
	return s.setPromotionLifecycle(ctx, id, store.ViewActive, domain.LifecycleDeleted, domain.AuditDelete)
}

func (s *Service) RestorePromotion(ctx context.Context, id string) (domain.Promotion, error) {
	return s.setPromotionLifecycle(ctx, id, store.ViewDeleted, domain.LifecycleActive, domain.AuditRestore)
}

func (s *Service) setPromotionLifecycle(ctx context.Context, id string, from store.View, to domain.Lifecycle, action domain.AuditAction) (domain.Promotion, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Promotion{}, err
	}

	existing, err := s.repo.GetPromotion(ctx, id, from)
	if err != nil {
		return domain.Promotion{}, notFound("promotion not found", err)
	}

	existing.Lifecycle = to
	existing.UpdatedAt = s.now()
	saved, err := s.repo.UpdatePromotion(ctx, *existing)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.promotions.Invalidate(ctx, saved.Code)
	s.logAudit(ctx, "promotions", action, map[string]string{"id": saved.ID, "code": saved.Code})
	return *saved, nil
}

// checkPromotion enforces the rules spanning several fields or other rows.
func (s *Service) checkPromotion(ctx context.Context, promo domain.Promotion) error {
	if !promo.Value.IsPositive() {
		return invalidInput("promotion value must be positive")
	}
	if promo.Type == domain.DiscountPercentage && promo.Value.GreaterThan(hundred) {
		return invalidInput("percentage must not exceed 100")
	}
	if !promo.StartsAt.Before(promo.EndsAt) {
		return invalidInput("start date must be before end date")
	}
	if promo.ProductID != nil {
		if _, err := s.repo.GetProduct(ctx, *promo.ProductID, store.ViewActive); err != nil {
			return notFound("product not found", err)
		}
	}
	if promo.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, *promo.CategoryID, store.ViewActive); err != nil {
			return notFound("category not found", err)
		}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func timePtr(t time.Time) *time.Time {
	return &t
}
