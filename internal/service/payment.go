package service

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

const overpaymentMessage = "le montant dépasse le restant dû"

func (s *Service) ListPayments(ctx context.Context, filter store.PaymentFilter) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, filter)
}

func (s *Service) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, notFound("payment not found", err)
	}
	return *payment, nil
}

// CreatePayment records a VALID payment against a sale and moves the sale
// to EN_COURS or PAYEE depending on the cumulative valid amount.
func (s *Service) CreatePayment(ctx context.Context, saleID string, req domain.PaymentCreateRequest) (domain.Payment, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Payment{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Payment{}, err
	}
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return domain.Payment{}, notFound("sale not found", err)
	}

	number, err := s.nextCode(ctx, sequence.ScopePayment, sequence.NotFoundMeansFree(s.repo.GetPaymentByNumber))
	if err != nil {
		return domain.Payment{}, err
	}

	var created *domain.Payment
	err = s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status.Terminal() {
			return invalidState("sale %s is %s and accepts no payment", sale.Number, sale.Status)
		}

		paid, err := repo.SumValidPayments(ctx, sale.ID, "")
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(sale.NetTotal.Sub(paid)) {
			return invalidInput(overpaymentMessage)
		}

		date := req.Date.UTC()
		if req.Date.IsZero() {
			date = s.now()
		}
		now := s.now()
		created, err = repo.CreatePayment(ctx, domain.Payment{
			ID:        xid.New(),
			Number:    number,
			SaleID:    sale.ID,
			Date:      date,
			Amount:    req.Amount,
			Mode:      req.Mode,
			Status:    domain.PaymentStatusValid,
			Reference: strings.TrimSpace(req.Reference),
			Comment:   strings.TrimSpace(req.Comment),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		return s.settleSale(ctx, repo, sale, paid.Add(req.Amount))
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "payments", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdatePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (domain.Payment, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Payment{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Payment{}, err
	}

	var before domain.Payment
	var saved *domain.Payment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		payment, err := repo.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return notFound("payment not found", err)
		}
		before = *payment
		if payment.Status == domain.PaymentStatusRefused {
			return invalidState("payment %s was refused and cannot be modified", payment.Number)
		}

		sale, err := repo.GetSaleForUpdate(ctx, payment.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status == domain.SaleStatusCancelled {
			return invalidState("sale %s is cancelled", sale.Number)
		}

		updated := *payment
		if req.Date != nil {
			updated.Date = req.Date.UTC()
		}
		if req.Mode != nil {
			updated.Mode = *req.Mode
		}
		if req.Reference != nil {
			updated.Reference = strings.TrimSpace(*req.Reference)
		}
		if req.Comment != nil {
			updated.Comment = strings.TrimSpace(*req.Comment)
		}

		amountChanged := req.Amount != nil && !req.Amount.Equal(payment.Amount)
		var others decimal.Decimal
		if amountChanged {
			updated.Amount = *req.Amount
			if payment.Status == domain.PaymentStatusValid {
				others, err = repo.SumValidPayments(ctx, sale.ID, payment.ID)
				if err != nil {
					return err
				}
				if updated.Amount.GreaterThan(sale.NetTotal.Sub(others)) {
					return invalidInput(overpaymentMessage)
				}
			}
		}

		updated.UpdatedAt = s.now()
		saved, err = repo.UpdatePayment(ctx, updated)
		if err != nil {
			return err
		}
		if amountChanged && payment.Status == domain.PaymentStatusValid {
			return s.settleSale(ctx, repo, sale, others.Add(updated.Amount))
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.logAudit(ctx, "payments", domain.AuditUpdate, map[string]any{"before": before, "after": saved})
	return *saved, nil
}

// ChangePaymentStatus flips a payment between VALID, PENDING and REFUSED,
// keeping the cumulative valid amount within the sale net and the sale
// status in line with it.
func (s *Service) ChangePaymentStatus(ctx context.Context, id string, req domain.PaymentStatusRequest) (domain.Payment, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Payment{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Payment{}, err
	}

	var previous domain.PaymentStatus
	var saved *domain.Payment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		payment, err := repo.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return notFound("payment not found", err)
		}
		previous = payment.Status
		if payment.Status == req.Status {
			saved = payment
			return nil
		}

		sale, err := repo.GetSaleForUpdate(ctx, payment.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status.Terminal() {
			return invalidState("sale %s is %s", sale.Number, sale.Status)
		}

		others, err := repo.SumValidPayments(ctx, sale.ID, payment.ID)
		if err != nil {
			return err
		}
		total := others
		if req.Status == domain.PaymentStatusValid {
			if payment.Amount.GreaterThan(sale.NetTotal.Sub(others)) {
				return invalidInput(overpaymentMessage)
			}
			total = others.Add(payment.Amount)
		}

		payment.Status = req.Status
		payment.UpdatedAt = s.now()
		saved, err = repo.UpdatePayment(ctx, *payment)
		if err != nil {
			return err
		}
		return s.settleSale(ctx, repo, sale, total)
	})
	if err != nil {
		return domain.Payment{}, err
	}

	if previous != saved.Status {
		s.logAudit(ctx, "payments", domain.AuditUpdate, map[string]any{
			"id":         saved.ID,
			"number":     saved.Number,
			"old_status": previous,
			"new_status": saved.Status,
		})
	}
	return *saved, nil
}

func (s *Service) ValidatePayment(ctx context.Context, id string) (domain.Payment, error) {
	return s.ChangePaymentStatus(ctx, id, domain.PaymentStatusRequest{Status: domain.PaymentStatusValid})
}

func (s *Service) RefusePayment(ctx context.Context, id string) (domain.Payment, error) {
	return s.ChangePaymentStatus(ctx, id, domain.PaymentStatusRequest{Status: domain.PaymentStatusRefused})
}

func (s *Service) DeletePayment(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return err
	}

	var removed domain.Payment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		payment, err := repo.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return notFound("payment not found", err)
		}
		removed = *payment

		sale, err := repo.GetSaleForUpdate(ctx, payment.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status == domain.SaleStatusPaid {
			return invalidState("payments of paid sale %s cannot be deleted", sale.Number)
		}
		if err := repo.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}

		remaining, err := repo.SumValidPayments(ctx, sale.ID, "")
		if err != nil {
			return err
		}
		return s.settleSale(ctx, repo, sale, remaining)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "payments", domain.AuditDelete, removed)
	return nil
}

// PaymentStats aggregates VALID payments only.
func (s *Service) PaymentStats(ctx context.Context) (domain.PaymentStats, error) {
	payments, err := s.repo.ListPayments(ctx, store.PaymentFilter{Status: domain.PaymentStatusValid})
	if err != nil {
		return domain.PaymentStats{}, err
	}

	stats := domain.PaymentStats{Total: decimal.Zero, ByMode: []domain.PaymentModeTotal{}}
	byMode := map[domain.PaymentMode]*domain.PaymentModeTotal{}
	for _, p := range payments {
		stats.Count++
		stats.Total = stats.Total.Add(p.Amount)
		entry, ok := byMode[p.Mode]
		if !ok {
			entry = &domain.PaymentModeTotal{Mode: p.Mode, Total: decimal.Zero}
			byMode[p.Mode] = entry
		}
		entry.Count++
		entry.Total = entry.Total.Add(p.Amount)
	}
	for _, entry := range byMode {
		stats.ByMode = append(stats.ByMode, *entry)
	}
	slices.SortFunc(stats.ByMode, func(a, b domain.PaymentModeTotal) int {
		return strings.Compare(string(a.Mode), string(b.Mode))
	})
	return stats, nil
}

// settleSale aligns a non-terminal sale with its cumulative valid amount:
// PAYEE once the net is covered, EN_COURS while partially paid, and back to
// COMMANDE when no valid payment remains.
func (s *Service) settleSale(ctx context.Context, repo store.Repository, sale *domain.Sale, validTotal decimal.Decimal) error {
	if sale.Status.Terminal() {
		return nil
	}

	next := sale.Status
	switch {
	case validTotal.IsPositive() && validTotal.GreaterThanOrEqual(sale.NetTotal):
		next = domain.SaleStatusPaid
	case validTotal.IsPositive():
		if sale.Status == domain.SaleStatusOrdered || sale.Status == domain.SaleStatusPaid {
			next = domain.SaleStatusInProgress
		}
	default:
		next = domain.SaleStatusOrdered
	}
	if next == sale.Status {
		return nil
	}

	sale.Status = next
	sale.UpdatedAt = s.now()
	_, err := repo.UpdateSale(ctx, *sale)
	return err
}
