package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/promotion"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

var saleWriters = []domain.Role{domain.RoleAdmin, domain.RoleCashier}

func (s *Service) ListAllSaleLines(ctx context.Context) ([]domain.SaleLine, error) {
	return s.repo.ListSaleLines(ctx, "")
}

func (s *Service) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, notFound("sale not found", err)
	}
	return s.repo.ListSaleLines(ctx, saleID)
}

func (s *Service) GetSaleLine(ctx context.Context, id string) (domain.SaleLine, error) {
	line, err := s.repo.GetSaleLine(ctx, id)
	if err != nil {
		return domain.SaleLine{}, notFound("sale line not found", err)
	}
	return *line, nil
}

// SaleLineSubtotal returns the stored subtotal of a line.
func (s *Service) SaleLineSubtotal(ctx context.Context, id string) (decimal.Decimal, error) {
	line, err := s.GetSaleLine(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return line.Subtotal, nil
}

// AddSaleLine puts a product on a sale and takes the quantity out of stock
// in the same unit of work.
func (s *Service) AddSaleLine(ctx context.Context, saleID string, req domain.SaleLineCreateRequest) (domain.SaleLine, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.SaleLine{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.SaleLine{}, err
	}

	var created *domain.SaleLine
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if err := lineEditable(sale); err != nil {
			return err
		}

		product, err := repo.GetProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return notFound("product not found", err)
		}
		if !product.Sellable() {
			return invalidState("product %s is inactive or deleted and cannot be sold", product.Code)
		}

		unitPrice := product.UnitPrice
		if req.UnitPrice != nil {
			unitPrice = *req.UnitPrice
		}
		discountValue := decimal.Zero
		if req.DiscountValue != nil {
			discountValue = *req.DiscountValue
		}
		subtotal, err := lineSubtotal(unitPrice, req.Quantity, req.DiscountType, discountValue)
		if err != nil {
			return err
		}

		if product.Stock < req.Quantity {
			return fmt.Errorf("%w: available %d, requested %d", store.ErrInsufficientStock, product.Stock, req.Quantity)
		}
		if err := repo.SetProductStock(ctx, product.ID, product.Stock-req.Quantity); err != nil {
			return err
		}

		now := s.now()
		created, err = repo.CreateSaleLine(ctx, domain.SaleLine{
			ID:            xid.New(),
			SaleID:        sale.ID,
			ProductID:     product.ID,
			Quantity:      req.Quantity,
			UnitPrice:     unitPrice,
			DiscountType:  req.DiscountType,
			DiscountValue: discountValue,
			Subtotal:      subtotal,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return err
	})
	if err != nil {
		return domain.SaleLine{}, err
	}

	s.logAudit(ctx, "sale_lines", domain.AuditCreate, created)
	return *created, nil
}

// UpdateSaleLine applies the quantity delta to stock and recomputes the
// subtotal.
func (s *Service) UpdateSaleLine(ctx context.Context, id string, req domain.SaleLineUpdateRequest) (domain.SaleLine, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.SaleLine{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.SaleLine{}, err
	}

	var before domain.SaleLine
	var saved *domain.SaleLine
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		line, err := repo.GetSaleLine(ctx, id)
		if err != nil {
			return notFound("sale line not found", err)
		}
		before = *line

		sale, err := repo.GetSaleForUpdate(ctx, line.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if err := lineEditable(sale); err != nil {
			return err
		}

		updated := *line
		if req.Quantity != nil {
			updated.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			updated.UnitPrice = *req.UnitPrice
		}
		if req.DiscountType != nil {
			updated.DiscountType = req.DiscountType
		}
		if req.DiscountValue != nil {
			updated.DiscountValue = *req.DiscountValue
		}
		if updated.DiscountType != nil && *updated.DiscountType == domain.DiscountPercentage && updated.DiscountValue.GreaterThan(hundred) {
			return invalidInput("percentage must not exceed 100")
		}
		subtotal, err := lineSubtotal(updated.UnitPrice, updated.Quantity, updated.DiscountType, updated.DiscountValue)
		if err != nil {
			return err
		}
		updated.Subtotal = subtotal

		if delta := updated.Quantity - line.Quantity; delta != 0 {
			product, err := repo.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return notFound("product not found", err)
			}
			if delta > 0 {
				if !product.Sellable() {
					return invalidState("product %s is inactive or deleted and cannot be sold", product.Code)
				}
				if product.Stock < delta {
					return fmt.Errorf("%w: available %d, additional %d needed", store.ErrInsufficientStock, product.Stock, delta)
				}
			}
			if err := repo.SetProductStock(ctx, product.ID, product.Stock-delta); err != nil {
				return err
			}
		}

		updated.UpdatedAt = s.now()
		saved, err = repo.UpdateSaleLine(ctx, updated)
		return err
	})
	if err != nil {
		return domain.SaleLine{}, err
	}

	s.logAudit(ctx, "sale_lines", domain.AuditUpdate, map[string]any{"before": before, "after": saved})
	return *saved, nil
}

// DeleteSaleLine puts the quantity back in stock and removes the line.
func (s *Service) DeleteSaleLine(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return err
	}

	var removed domain.SaleLine
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		line, err := repo.GetSaleLine(ctx, id)
		if err != nil {
			return notFound("sale line not found", err)
		}
		removed = *line

		sale, err := repo.GetSaleForUpdate(ctx, line.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if err := lineEditable(sale); err != nil {
			return err
		}

		product, err := repo.GetProductForUpdate(ctx, line.ProductID)
		if err != nil {
			return notFound("product not found", err)
		}
		if err := repo.SetProductStock(ctx, product.ID, product.Stock+line.Quantity); err != nil {
			return err
		}
		return repo.DeleteSaleLine(ctx, line.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "sale_lines", domain.AuditDelete, removed)
	return nil
}

// ApplyLineDiscount replaces the discount of a line.
func (s *Service) ApplyLineDiscount(ctx context.Context, id string, req domain.DiscountRequest) (domain.SaleLine, error) {
	if err := validate(req.Validate()); err != nil {
		return domain.SaleLine{}, err
	}
	kind := req.Type
	value := req.Value
	return s.UpdateSaleLine(ctx, id, domain.SaleLineUpdateRequest{DiscountType: &kind, DiscountValue: &value})
}

func lineEditable(sale *domain.Sale) error {
	switch sale.Status {
	case domain.SaleStatusPaid:
		return invalidState("sale %s is already paid", sale.Number)
	case domain.SaleStatusCancelled:
		return invalidState("sale %s is cancelled", sale.Number)
	case domain.SaleStatusRefunded:
		return invalidState("sale %s is refunded", sale.Number)
	}
	return nil
}

// lineSubtotal is unitPrice x quantity minus the line discount; it must stay
// strictly positive.
func lineSubtotal(unitPrice decimal.Decimal, quantity int, kind *domain.DiscountType, value decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, invalidInput("quantity must be greater than zero")
	}
	if value.IsNegative() {
		return decimal.Zero, invalidInput("discount must not be negative")
	}

	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	discount := decimal.Zero
	if kind != nil && value.IsPositive() {
		discount = promotion.ComputeDiscount(gross, *kind, value)
	}

	subtotal := gross.Sub(discount)
	if !subtotal.IsPositive() {
		return decimal.Zero, invalidInput("subtotal must be positive after discount")
	}
	return subtotal, nil
}
