package service

import (
	"context"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

const defaultStockMin = 5

var catalogWriters = []domain.Role{domain.RoleAdmin, domain.RoleStockOwner}

func (s *Service) ListCategories(ctx context.Context, view store.View) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx, view)
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	category, err := s.repo.GetCategory(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Category{}, notFound("category not found", err)
	}
	return *category, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Category{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Category{}, err
	}

	now := s.now()
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:          xid.New(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Lifecycle:   domain.LifecycleActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "categories", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Category{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Category{}, err
	}

	existing, err := s.repo.GetCategory(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Category{}, notFound("category not found", err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "categories", domain.AuditUpdate, map[string]any{"before": existing, "after": saved})
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) (domain.Category, error) {
	return s.setCategoryLifecycle(ctx, id, domain.LifecycleActive, domain.LifecycleDeleted, domain.AuditDelete)
}

func (s *Service) RestoreCategory(ctx context.Context, id string) (domain.Category, error) {
	return s.setCategoryLifecycle(ctx, id, domain.LifecycleDeleted, domain.LifecycleActive, domain.AuditRestore)
}

func (s *Service) setCategoryLifecycle(ctx context.Context, id string, from, to domain.Lifecycle, action domain.AuditAction) (domain.Category, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Category{}, err
	}

	view := store.ViewActive
	if from == domain.LifecycleDeleted {
		view = store.ViewDeleted
	}
	existing, err := s.repo.GetCategory(ctx, id, view)
	if err != nil {
		return domain.Category{}, notFound("category not found", err)
	}

	existing.Lifecycle = to
	existing.UpdatedAt = s.now()
	saved, err := s.repo.UpdateCategory(ctx, *existing)
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "categories", action, map[string]string{"id": saved.ID, "name": saved.Name})
	return *saved, nil
}

func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, invalidInput("min_price must not exceed max_price")
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Product{}, notFound("product not found", err)
	}
	return *product, nil
}

func (s *Service) GetProductByCode(ctx context.Context, code string) (domain.Product, error) {
	product, err := s.repo.GetProductByCode(ctx, strings.TrimSpace(code), store.ViewActive)
	if err != nil {
		return domain.Product{}, notFound("product not found", err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Product{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.repo.GetCategory(ctx, req.CategoryID, store.ViewActive); err != nil {
		return domain.Product{}, notFound("category not found", err)
	}

	code, err := s.nextCode(ctx, sequence.ScopeProduct, sequence.NotFoundMeansFree(func(ctx context.Context, code string) (*domain.Product, error) {
		return s.repo.GetProductByCode(ctx, code, store.ViewAll)
	}))
	if err != nil {
		return domain.Product{}, err
	}

	stockMin := defaultStockMin
	if req.StockMin != nil {
		stockMin = *req.StockMin
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.now()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New(),
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		UnitPrice:   req.UnitPrice.Round(2),
		Photo:       strings.TrimSpace(req.Photo),
		Stock:       req.Stock,
		StockMin:    stockMin,
		CategoryID:  req.CategoryID,
		Active:      active,
		Lifecycle:   domain.LifecycleActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "products", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Product{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id, store.ViewActive)
	if err != nil {
		return domain.Product{}, notFound("product not found", err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.UnitPrice != nil {
		updated.UnitPrice = req.UnitPrice.Round(2)
	}
	if req.Photo != nil {
		updated.Photo = strings.TrimSpace(*req.Photo)
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.StockMin != nil {
		updated.StockMin = *req.StockMin
	}
	if req.CategoryID != nil && *req.CategoryID != existing.CategoryID {
		if _, err := s.repo.GetCategory(ctx, *req.CategoryID, store.ViewActive); err != nil {
			return domain.Product{}, notFound("category not found", err)
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	details := map[string]any{"id": saved.ID, "code": saved.Code}
	if !existing.UnitPrice.Equal(saved.UnitPrice) {
		details["old_price"] = existing.UnitPrice
		details["new_price"] = saved.UnitPrice
	}
	s.logAudit(ctx, "products", domain.AuditUpdate, details)
	return *saved, nil
}

// UpdateStock sets an absolute stock level outside any sale.
func (s *Service) UpdateStock(ctx context.Context, id string, req domain.StockUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Product{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Product{}, err
	}

	var saved domain.Product
	var before int
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		product, err := repo.GetProductForUpdate(ctx, id)
		if err != nil {
			return notFound("product not found", err)
		}
		if product.Lifecycle != domain.LifecycleActive {
			return notFound("product not found", store.ErrNotFound)
		}
		before = product.Stock
		if err := repo.SetProductStock(ctx, id, req.Stock); err != nil {
			return err
		}
		product.Stock = req.Stock
		saved = *product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "products", domain.AuditUpdate, map[string]any{"id": id, "old_stock": before, "new_stock": req.Stock})
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.setProductLifecycle(ctx, id, domain.LifecycleActive, domain.LifecycleDeleted, domain.AuditDelete)
}

func (s *Service) RestoreProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.setProductLifecycle(ctx, id, domain.LifecycleDeleted, domain.LifecycleActive, domain.AuditRestore)
}

func (s *Service) setProductLifecycle(ctx context.Context, id string, from, to domain.Lifecycle, action domain.AuditAction) (domain.Product, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Product{}, err
	}

	view := store.ViewActive
	if from == domain.LifecycleDeleted {
		view = store.ViewDeleted
	}
	existing, err := s.repo.GetProduct(ctx, id, view)
	if err != nil {
		return domain.Product{}, notFound("product not found", err)
	}

	existing.Lifecycle = to
	existing.UpdatedAt = s.now()
	saved, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "products", action, map[string]string{"id": saved.ID, "code": saved.Code})
	return *saved, nil
}

func (s *Service) ProductStockStats(ctx context.Context) (domain.ProductStockStats, error) {
	products, err := s.repo.ListProducts(ctx, store.ProductFilter{View: store.ViewActive})
	if err != nil {
		return domain.ProductStockStats{}, err
	}

	var stats domain.ProductStockStats
	for _, p := range products {
		stats.TotalProducts++
		stats.TotalStock += p.Stock
		if p.Stock == 0 {
			stats.OutOfStock++
		}
		if p.Stock <= p.StockMin {
			stats.LowStock++
		}
	}
	return stats, nil
}
