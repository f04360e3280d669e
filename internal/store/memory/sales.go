package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	defer s.lock()()

	for _, existing := range s.st.sales {
		if existing.Number == sale.Number {
			return nil, fmt.Errorf("%w: sale number %s already exists", store.ErrConflict, sale.Number)
		}
	}
	s.st.sales[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	defer s.rlock()()

	sale, ok := s.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error) {
	return s.GetSale(ctx, id)
}

func (s *Store) GetSaleByNumber(_ context.Context, number string) (*domain.Sale, error) {
	defer s.rlock()()

	for _, sale := range s.st.sales {
		if sale.Number == number {
			found := sale
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	defer s.rlock()()

	sales := make([]domain.Sale, 0, len(s.st.sales))
	for _, sale := range s.st.sales {
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.CashierID != "" && sale.CashierID != filter.CashierID {
			continue
		}
		if filter.ClientID != "" && (sale.ClientID == nil || *sale.ClientID != filter.ClientID) {
			continue
		}
		if !inPeriod(sale.Date, filter.From, filter.To) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
	return sales, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	defer s.lock()()

	if _, ok := s.st.sales[sale.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.st.sales[sale.ID] = sale
	updated := sale
	return &updated, nil
}

func (s *Store) CreateSaleLine(_ context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	defer s.lock()()

	if _, ok := s.st.sales[line.SaleID]; !ok {
		return nil, fmt.Errorf("%w: sale not found", store.ErrNotFound)
	}
	s.st.lines[line.ID] = line
	created := line
	return &created, nil
}

func (s *Store) GetSaleLine(_ context.Context, id string) (*domain.SaleLine, error) {
	defer s.rlock()()

	line, ok := s.st.lines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &line, nil
}

func (s *Store) ListSaleLines(_ context.Context, saleID string) ([]domain.SaleLine, error) {
	defer s.rlock()()

	lines := make([]domain.SaleLine, 0)
	for _, line := range s.st.lines {
		if saleID == "" || line.SaleID == saleID {
			lines = append(lines, line)
		}
	}
	slices.SortFunc(lines, func(a, b domain.SaleLine) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return lines, nil
}

func (s *Store) UpdateSaleLine(_ context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	defer s.lock()()

	if _, ok := s.st.lines[line.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.st.lines[line.ID] = line
	updated := line
	return &updated, nil
}

func (s *Store) DeleteSaleLine(_ context.Context, id string) error {
	defer s.lock()()

	if _, ok := s.st.lines[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.lines, id)
	return nil
}

func (s *Store) CountSaleLines(_ context.Context, saleID string) (int, error) {
	defer s.rlock()()

	count := 0
	for _, line := range s.st.lines {
		if line.SaleID == saleID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	defer s.lock()()

	if _, ok := s.st.sales[payment.SaleID]; !ok {
		return nil, fmt.Errorf("%w: sale not found", store.ErrNotFound)
	}
	for _, existing := range s.st.payments {
		if existing.Number == payment.Number {
			return nil, fmt.Errorf("%w: payment number %s already exists", store.ErrConflict, payment.Number)
		}
	}
	s.st.payments[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	defer s.rlock()()

	payment, ok := s.st.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &payment, nil
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *Store) GetPaymentByNumber(_ context.Context, number string) (*domain.Payment, error) {
	defer s.rlock()()

	for _, payment := range s.st.payments {
		if payment.Number == number {
			found := payment
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPayments(_ context.Context, filter store.PaymentFilter) ([]domain.Payment, error) {
	defer s.rlock()()

	payments := make([]domain.Payment, 0)
	for _, p := range s.st.payments {
		if filter.SaleID != "" && p.SaleID != filter.SaleID {
			continue
		}
		if filter.Mode != "" && p.Mode != filter.Mode {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if !inPeriod(p.Date, filter.From, filter.To) {
			continue
		}
		payments = append(payments, p)
	}
	slices.SortFunc(payments, func(a, b domain.Payment) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
	return payments, nil
}

func (s *Store) UpdatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	defer s.lock()()

	if _, ok := s.st.payments[payment.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.st.payments[payment.ID] = payment
	updated := payment
	return &updated, nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	defer s.lock()()

	if _, ok := s.st.payments[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.payments, id)
	return nil
}

func (s *Store) SumValidPayments(_ context.Context, saleID string, excludeID string) (decimal.Decimal, error) {
	defer s.rlock()()

	total := decimal.Zero
	for _, p := range s.st.payments {
		if p.SaleID != saleID || p.Status != domain.PaymentStatusValid {
			continue
		}
		if excludeID != "" && p.ID == excludeID {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total, nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	defer s.lock()()

	if _, ok := s.st.sales[invoice.SaleID]; !ok {
		return nil, fmt.Errorf("%w: sale not found", store.ErrNotFound)
	}
	for _, existing := range s.st.invoices {
		if existing.SaleID == invoice.SaleID {
			return nil, fmt.Errorf("%w: an invoice already exists for this sale", store.ErrConflict)
		}
		if existing.Number == invoice.Number {
			return nil, fmt.Errorf("%w: invoice number %s already exists", store.ErrConflict, invoice.Number)
		}
	}
	s.st.invoices[invoice.ID] = invoice
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	defer s.rlock()()

	invoice, ok := s.st.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &invoice, nil
}

func (s *Store) GetInvoiceByNumber(_ context.Context, number string) (*domain.Invoice, error) {
	defer s.rlock()()

	for _, invoice := range s.st.invoices {
		if invoice.Number == number {
			found := invoice
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetInvoiceBySale(_ context.Context, saleID string) (*domain.Invoice, error) {
	defer s.rlock()()

	for _, invoice := range s.st.invoices {
		if invoice.SaleID == saleID {
			found := invoice
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListInvoices(_ context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	defer s.rlock()()

	invoices := make([]domain.Invoice, 0, len(s.st.invoices))
	for _, inv := range s.st.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if !inPeriod(inv.IssuedAt, filter.From, filter.To) {
			continue
		}
		invoices = append(invoices, inv)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int { return b.IssuedAt.Compare(a.IssuedAt) })
	return invoices, nil
}

func (s *Store) UpdateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	defer s.lock()()

	if _, ok := s.st.invoices[invoice.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.st.invoices[invoice.ID] = invoice
	updated := invoice
	return &updated, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	defer s.lock()()

	if _, ok := s.st.invoices[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.invoices, id)
	return nil
}
