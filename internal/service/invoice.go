package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

func artifactRef(number string) string {
	return fmt.Sprintf("factures/%s.pdf", number)
}

func (s *Service) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, notFound("invoice not found", err)
	}
	return *invoice, nil
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return domain.Invoice{}, notFound("invoice not found", err)
	}
	return *invoice, nil
}

func (s *Service) GetInvoiceBySale(ctx context.Context, saleID string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoiceBySale(ctx, saleID)
	if err != nil {
		return domain.Invoice{}, notFound("no invoice for this sale", err)
	}
	return *invoice, nil
}

// CreateInvoice issues the single invoice of a sale, snapshotting its net.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Invoice{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Invoice{}, err
	}
	if _, err := s.repo.GetSale(ctx, req.SaleID); err != nil {
		return domain.Invoice{}, notFound("sale not found", err)
	}

	number, err := s.nextCode(ctx, sequence.ScopeInvoice, sequence.NotFoundMeansFree(s.repo.GetInvoiceByNumber))
	if err != nil {
		return domain.Invoice{}, err
	}

	var created *domain.Invoice
	err = s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSaleForUpdate(ctx, req.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}

		if _, err := repo.GetInvoiceBySale(ctx, sale.ID); err == nil {
			return invalidState("an invoice already exists for sale %s", sale.Number)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		lines, err := repo.CountSaleLines(ctx, sale.ID)
		if err != nil {
			return err
		}
		if lines == 0 {
			return invalidState("vente sans lignes")
		}
		if sale.Status == domain.SaleStatusCancelled {
			return invalidState("sale %s is cancelled", sale.Number)
		}

		now := s.now()
		created, err = repo.CreateInvoice(ctx, domain.Invoice{
			ID:          xid.New(),
			Number:      number,
			SaleID:      sale.ID,
			IssuedAt:    now,
			Amount:      sale.NetTotal,
			Status:      domain.InvoiceStatusIssued,
			ArtifactRef: artifactRef(number),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoices", domain.AuditCreate, created)
	return *created, nil
}

func (s *Service) UpdateInvoice(ctx context.Context, id string, req domain.InvoiceUpdateRequest) (domain.Invoice, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Invoice{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Invoice{}, err
	}

	existing, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, notFound("invoice not found", err)
	}
	if existing.Status == domain.InvoiceStatusCancelled {
		return domain.Invoice{}, invalidState("invoice %s is cancelled", existing.Number)
	}

	updated := *existing
	if req.IssuedAt != nil {
		updated.IssuedAt = req.IssuedAt.UTC()
	}
	if req.Amount != nil {
		// The amount is a snapshot of the sale net; it may only be resynced.
		sale, err := s.repo.GetSale(ctx, existing.SaleID)
		if err != nil {
			return domain.Invoice{}, notFound("sale not found", err)
		}
		if !req.Amount.Equal(sale.NetTotal) {
			return domain.Invoice{}, invalidInput("invoice amount must equal the sale net total %s", sale.NetTotal.StringFixed(2))
		}
		updated.Amount = sale.NetTotal
	}
	if req.ArtifactRef != nil {
		updated.ArtifactRef = *req.ArtifactRef
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateInvoice(ctx, updated)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoices", domain.AuditUpdate, map[string]any{"before": existing, "after": saved})
	return *saved, nil
}

func (s *Service) CancelInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Invoice{}, err
	}

	var saved *domain.Invoice
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		invoice, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return notFound("invoice not found", err)
		}
		if invoice.Status == domain.InvoiceStatusCancelled {
			return invalidState("invoice %s is already cancelled", invoice.Number)
		}
		sale, err := repo.GetSaleForUpdate(ctx, invoice.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status == domain.SaleStatusPaid {
			return invalidState("invoice of paid sale %s cannot be cancelled", sale.Number)
		}

		invoice.Status = domain.InvoiceStatusCancelled
		invoice.UpdatedAt = s.now()
		saved, err = repo.UpdateInvoice(ctx, *invoice)
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoices", domain.AuditUpdate, map[string]any{"id": saved.ID, "number": saved.Number, "status": saved.Status})
	return *saved, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return err
	}

	var removed domain.Invoice
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		invoice, err := repo.GetInvoice(ctx, id)
		if err != nil {
			return notFound("invoice not found", err)
		}
		removed = *invoice
		sale, err := repo.GetSaleForUpdate(ctx, invoice.SaleID)
		if err != nil {
			return notFound("sale not found", err)
		}
		if sale.Status == domain.SaleStatusPaid {
			return invalidState("invoice of paid sale %s cannot be deleted", sale.Number)
		}
		return repo.DeleteInvoice(ctx, invoice.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "invoices", domain.AuditDelete, removed)
	return nil
}

// RegenerateInvoiceArtifact points the invoice at a fresh document reference.
func (s *Service) RegenerateInvoiceArtifact(ctx context.Context, id string) (domain.Invoice, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Invoice{}, err
	}

	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, notFound("invoice not found", err)
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return domain.Invoice{}, invalidState("invoice %s is cancelled", invoice.Number)
	}

	now := s.now()
	previous := invoice.ArtifactRef
	invoice.ArtifactRef = fmt.Sprintf("factures/%s_%d.pdf", invoice.Number, now.Unix())
	invoice.UpdatedAt = now
	saved, err := s.repo.UpdateInvoice(ctx, *invoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoices", domain.AuditUpdate, map[string]string{"id": saved.ID, "old_artifact": previous, "new_artifact": saved.ArtifactRef})
	return *saved, nil
}

func (s *Service) InvoiceStats(ctx context.Context) (domain.InvoiceStats, error) {
	invoices, err := s.repo.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return domain.InvoiceStats{}, err
	}

	stats := domain.InvoiceStats{
		IssuedTotal: decimal.Zero,
		ByStatus: map[domain.InvoiceStatus]int{
			domain.InvoiceStatusIssued:    0,
			domain.InvoiceStatusCancelled: 0,
		},
	}
	for _, inv := range invoices {
		stats.Count++
		stats.ByStatus[inv.Status]++
		if inv.Status == domain.InvoiceStatusIssued {
			stats.IssuedTotal = stats.IssuedTotal.Add(inv.Amount)
		}
	}
	return stats, nil
}
