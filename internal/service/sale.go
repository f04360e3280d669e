package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

// saleTransitions lists the statuses each status may move to through an
// explicit status change. Payment bookkeeping moves sales on its own.
var saleTransitions = map[domain.SaleStatus][]domain.SaleStatus{
	domain.SaleStatusOrdered:    {domain.SaleStatusInProgress, domain.SaleStatusPaid, domain.SaleStatusCancelled, domain.SaleStatusRefunded},
	domain.SaleStatusInProgress: {domain.SaleStatusPaid, domain.SaleStatusCancelled, domain.SaleStatusRefunded},
	domain.SaleStatusPaid:       {domain.SaleStatusRefunded},
}

func canTransition(from, to domain.SaleStatus) bool {
	return slices.Contains(saleTransitions[from], to)
}

func (s *Service) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, invalidInput("period start must not be after its end")
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, notFound("sale not found", err)
	}
	return *sale, nil
}

func (s *Service) GetSaleByNumber(ctx context.Context, number string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return domain.Sale{}, notFound("sale not found", err)
	}
	return *sale, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := requireRole(ctx, saleWriters...)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Sale{}, err
	}

	net, err := netTotal(req.GrossTotal, req.DiscountTotal)
	if err != nil {
		return domain.Sale{}, err
	}

	status := domain.SaleStatusOrdered
	if req.Status != "" {
		if req.Status != domain.SaleStatusOrdered && req.Status != domain.SaleStatusInProgress {
			return domain.Sale{}, invalidInput("a new sale must be %s or %s", domain.SaleStatusOrdered, domain.SaleStatusInProgress)
		}
		status = req.Status
	}

	cashierID := strings.TrimSpace(req.CashierID)
	if cashierID == "" {
		cashierID = actor.UserID
	}
	if _, err := s.repo.GetUser(ctx, cashierID); err != nil {
		return domain.Sale{}, notFound("cashier not found", err)
	}

	clientID := nonEmpty(req.ClientID)
	if clientID != nil {
		if _, err := s.repo.GetClient(ctx, *clientID, store.ViewActive); err != nil {
			return domain.Sale{}, notFound("client not found", err)
		}
	}

	number, err := s.nextCode(ctx, sequence.ScopeSale, sequence.NotFoundMeansFree(s.repo.GetSaleByNumber))
	if err != nil {
		return domain.Sale{}, err
	}

	now := s.now()
	date := req.Date.UTC()
	if req.Date.IsZero() {
		date = now
	}
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ID:            xid.New(),
		Number:        number,
		Date:          date,
		CashierID:     cashierID,
		ClientID:      clientID,
		GrossTotal:    req.GrossTotal,
		DiscountTotal: req.DiscountTotal,
		NetTotal:      net,
		Status:        status,
		Comment:       strings.TrimSpace(req.Comment),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sales", domain.AuditCreate, created)
	return *created, nil
}

// UpdateSale edits the header of a live sale. A totals change must keep the
// net above what was already validly paid.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Sale{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Sale{}, err
	}

	clientID := nonEmpty(req.ClientID)
	if clientID != nil {
		if _, err := s.repo.GetClient(ctx, *clientID, store.ViewActive); err != nil {
			return domain.Sale{}, notFound("client not found", err)
		}
	}

	var before domain.Sale
	var saved *domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSaleForUpdate(ctx, id)
		if err != nil {
			return notFound("sale not found", err)
		}
		before = *sale
		if sale.Status.Terminal() {
			return invalidState("sale %s is %s", sale.Number, sale.Status)
		}

		updated := *sale
		if req.Date != nil {
			updated.Date = req.Date.UTC()
		}
		if req.ClientID != nil {
			updated.ClientID = clientID
		}
		if req.Comment != nil {
			updated.Comment = strings.TrimSpace(*req.Comment)
		}
		if req.GrossTotal != nil {
			updated.GrossTotal = *req.GrossTotal
		}
		if req.DiscountTotal != nil {
			updated.DiscountTotal = *req.DiscountTotal
		}
		updated.NetTotal, err = netTotal(updated.GrossTotal, updated.DiscountTotal)
		if err != nil {
			return err
		}

		paid, err := repo.SumValidPayments(ctx, sale.ID, "")
		if err != nil {
			return err
		}
		if paid.GreaterThan(updated.NetTotal) {
			return invalidInput("net total %s is below the %s already paid", updated.NetTotal.StringFixed(2), paid.StringFixed(2))
		}

		updated.UpdatedAt = s.now()
		saved, err = repo.UpdateSale(ctx, updated)
		if err != nil {
			return err
		}
		if !updated.NetTotal.Equal(sale.NetTotal) {
			return s.settleSale(ctx, repo, saved, paid)
		}
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sales", domain.AuditUpdate, map[string]any{"before": before, "after": saved})
	return *saved, nil
}

// ChangeSaleStatus moves a sale along the transition table. Writing the
// current status back is a no-op.
func (s *Service) ChangeSaleStatus(ctx context.Context, id string, req domain.SaleStatusRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Sale{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Sale{}, err
	}
	return s.transitionSale(ctx, id, req.Status, nil)
}

func (s *Service) RefundSale(ctx context.Context, id string, req domain.SaleRefundRequest) (domain.Sale, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Sale{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.Sale{}, err
	}
	return s.transitionSale(ctx, id, domain.SaleStatusRefunded, &req)
}

func (s *Service) CancelSale(ctx context.Context, id string) (domain.Sale, error) {
	if _, err := requireRole(ctx, saleWriters...); err != nil {
		return domain.Sale{}, err
	}
	return s.transitionSale(ctx, id, domain.SaleStatusCancelled, nil)
}

func (s *Service) transitionSale(ctx context.Context, id string, to domain.SaleStatus, refund *domain.SaleRefundRequest) (domain.Sale, error) {
	var from domain.SaleStatus
	var saved *domain.Sale
	err := s.repo.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.GetSaleForUpdate(ctx, id)
		if err != nil {
			return notFound("sale not found", err)
		}
		from = sale.Status
		if sale.Status == to {
			saved = sale
			return nil
		}
		if !canTransition(sale.Status, to) {
			return invalidState("sale %s cannot go from %s to %s", sale.Number, sale.Status, to)
		}

		if to == domain.SaleStatusRefunded {
			paid, err := repo.SumValidPayments(ctx, sale.ID, "")
			if err != nil {
				return err
			}
			switch {
			case refund != nil && refund.Amount.GreaterThan(paid):
				return invalidInput("refund of %s exceeds the %s validly paid", refund.Amount.StringFixed(2), paid.StringFixed(2))
			case !paid.IsPositive():
				return invalidState("sale %s has no valid payment to refund", sale.Number)
			}
			if refund != nil {
				if comment := strings.TrimSpace(refund.Comment); comment != "" {
					sale.Comment = comment
				}
			}
		}

		sale.Status = to
		sale.UpdatedAt = s.now()
		saved, err = repo.UpdateSale(ctx, *sale)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if from != to {
		details := map[string]any{"id": saved.ID, "number": saved.Number, "old_status": from, "new_status": to}
		if refund != nil {
			details["refund_amount"] = refund.Amount
		}
		s.logAudit(ctx, "sales", domain.AuditUpdate, details)
	}
	return *saved, nil
}

// UpdateSaleLineOf updates a line after checking it belongs to saleID.
func (s *Service) UpdateSaleLineOf(ctx context.Context, saleID, lineID string, req domain.SaleLineUpdateRequest) (domain.SaleLine, error) {
	if err := s.lineBelongsTo(ctx, saleID, lineID); err != nil {
		return domain.SaleLine{}, err
	}
	return s.UpdateSaleLine(ctx, lineID, req)
}

func (s *Service) RemoveSaleLineOf(ctx context.Context, saleID, lineID string) error {
	if err := s.lineBelongsTo(ctx, saleID, lineID); err != nil {
		return err
	}
	return s.DeleteSaleLine(ctx, lineID)
}

func (s *Service) lineBelongsTo(ctx context.Context, saleID, lineID string) error {
	line, err := s.repo.GetSaleLine(ctx, lineID)
	if err != nil {
		return notFound("sale line not found", err)
	}
	if line.SaleID != saleID {
		return fmt.Errorf("%w: line %s does not belong to sale %s", store.ErrNotFound, lineID, saleID)
	}
	return nil
}

func (s *Service) AddSalePayment(ctx context.Context, saleID string, req domain.PaymentCreateRequest) (domain.Payment, error) {
	return s.CreatePayment(ctx, saleID, req)
}

func (s *Service) GenerateSaleInvoice(ctx context.Context, saleID string) (domain.Invoice, error) {
	return s.CreateInvoice(ctx, domain.InvoiceCreateRequest{SaleID: saleID})
}

// ExportSales returns every sale with its lines, payments and invoice.
func (s *Service) ExportSales(ctx context.Context) ([]domain.SaleExport, error) {
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{})
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListSaleLines(ctx, "")
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, store.PaymentFilter{})
	if err != nil {
		return nil, err
	}
	invoices, err := s.repo.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return nil, err
	}

	linesBySale := make(map[string][]domain.SaleLine)
	for _, line := range lines {
		linesBySale[line.SaleID] = append(linesBySale[line.SaleID], line)
	}
	paymentsBySale := make(map[string][]domain.Payment)
	for _, p := range payments {
		paymentsBySale[p.SaleID] = append(paymentsBySale[p.SaleID], p)
	}
	invoiceBySale := make(map[string]domain.Invoice, len(invoices))
	for _, inv := range invoices {
		invoiceBySale[inv.SaleID] = inv
	}

	export := make([]domain.SaleExport, 0, len(sales))
	for _, sale := range sales {
		item := domain.SaleExport{
			Sale:     sale,
			Lines:    linesBySale[sale.ID],
			Payments: paymentsBySale[sale.ID],
		}
		if item.Lines == nil {
			item.Lines = []domain.SaleLine{}
		}
		if item.Payments == nil {
			item.Payments = []domain.Payment{}
		}
		if inv, ok := invoiceBySale[sale.ID]; ok {
			item.Invoice = &inv
		}
		export = append(export, item)
	}
	return export, nil
}

func (s *Service) SaleStats(ctx context.Context) (domain.SaleStats, error) {
	sales, err := s.repo.ListSales(ctx, store.SaleFilter{})
	if err != nil {
		return domain.SaleStats{}, err
	}

	stats := domain.SaleStats{NetTotal: decimal.Zero}
	for _, sale := range sales {
		stats.Count++
		stats.NetTotal = stats.NetTotal.Add(sale.NetTotal)
	}
	return stats, nil
}

func netTotal(gross, discount decimal.Decimal) (decimal.Decimal, error) {
	if gross.IsNegative() || discount.IsNegative() {
		return decimal.Zero, invalidInput("amounts must not be negative")
	}
	net := gross.Sub(discount)
	if net.IsNegative() {
		return decimal.Zero, invalidInput("discount %s exceeds gross total %s", discount.StringFixed(2), gross.StringFixed(2))
	}
	return net, nil
}
