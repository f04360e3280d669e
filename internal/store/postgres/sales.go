package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

const saleColumns = `id, number, sale_date, cashier_id, client_id, gross_total, discount_total, net_total, status, comment, created_at, updated_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var s domain.Sale
	var clientID sql.NullString
	if err := row.Scan(&s.ID, &s.Number, &s.Date, &s.CashierID, &clientID, &s.GrossTotal, &s.DiscountTotal, &s.NetTotal,
		&s.Status, &s.Comment, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	s.ClientID = stringPtr(clientID)
	s.Date = s.Date.UTC()
	return &s, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.Number, sale.Date, sale.CashierID, nullString(sale.ClientID), sale.GrossTotal, sale.DiscountTotal, sale.NetTotal,
		sale.Status, sale.Comment, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, "sale number "+sale.Number+" already exists")
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return scanSale(s.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (s *Store) GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error) {
	return scanSale(s.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) GetSaleByNumber(ctx context.Context, number string) (*domain.Sale, error) {
	return scanSale(s.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE number = $1`, number))
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	var w where
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.CashierID != "" {
		w.add("cashier_id = $%d", filter.CashierID)
	}
	if filter.ClientID != "" {
		w.add("client_id = $%d", filter.ClientID)
	}
	w.period("sale_date", filter.From, filter.To)

	rows, err := s.q.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+w.clause()+` ORDER BY sale_date DESC, number DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSale)
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sales
		SET sale_date = $2, client_id = $3, gross_total = $4, discount_total = $5, net_total = $6,
			status = $7, comment = $8, updated_at = $9
		WHERE id = $1
	`, sale.ID, sale.Date, nullString(sale.ClientID), sale.GrossTotal, sale.DiscountTotal, sale.NetTotal, sale.Status, sale.Comment, sale.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := sale
	return &updated, nil
}

const lineColumns = `id, sale_id, product_id, quantity, unit_price, discount_type, discount_value, subtotal, created_at, updated_at`

func scanLine(row rowScanner) (*domain.SaleLine, error) {
	var l domain.SaleLine
	var discountType sql.NullString
	if err := row.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &l.UnitPrice, &discountType, &l.DiscountValue, &l.Subtotal,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if discountType.Valid {
		t := domain.DiscountType(discountType.String)
		l.DiscountType = &t
	}
	return &l, nil
}

func discountTypeArg(t *domain.DiscountType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func (s *Store) CreateSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sale_lines (`+lineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, line.ID, line.SaleID, line.ProductID, line.Quantity, line.UnitPrice, discountTypeArg(line.DiscountType), line.DiscountValue,
		line.Subtotal, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := line
	return &created, nil
}

func (s *Store) GetSaleLine(ctx context.Context, id string) (*domain.SaleLine, error) {
	return scanLine(s.q.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM sale_lines WHERE id = $1`, id))
}

func (s *Store) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	var w where
	if saleID != "" {
		w.add("sale_id = $%d", saleID)
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+lineColumns+` FROM sale_lines`+w.clause()+` ORDER BY created_at`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLine)
}

func (s *Store) UpdateSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sale_lines
		SET quantity = $2, unit_price = $3, discount_type = $4, discount_value = $5, subtotal = $6, updated_at = $7
		WHERE id = $1
	`, line.ID, line.Quantity, line.UnitPrice, discountTypeArg(line.DiscountType), line.DiscountValue, line.Subtotal, line.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := line
	return &updated, nil
}

func (s *Store) DeleteSaleLine(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sale_lines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CountSaleLines(ctx context.Context, saleID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT count(*) FROM sale_lines WHERE sale_id = $1`, saleID).Scan(&count)
	return count, err
}

const paymentColumns = `id, number, sale_id, payment_date, amount, mode, status, reference, comment, created_at, updated_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.Number, &p.SaleID, &p.Date, &p.Amount, &p.Mode, &p.Status, &p.Reference, &p.Comment,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	p.Date = p.Date.UTC()
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, payment.ID, payment.Number, payment.SaleID, payment.Date, payment.Amount, payment.Mode, payment.Status, payment.Reference,
		payment.Comment, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err, "payment number "+payment.Number+" already exists")
	}
	created := payment
	return &created, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error) {
	return scanPayment(s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) GetPaymentByNumber(ctx context.Context, number string) (*domain.Payment, error) {
	return scanPayment(s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE number = $1`, number))
}

func (s *Store) ListPayments(ctx context.Context, filter store.PaymentFilter) ([]domain.Payment, error) {
	var w where
	if filter.SaleID != "" {
		w.add("sale_id = $%d", filter.SaleID)
	}
	if filter.Mode != "" {
		w.add("mode = $%d", filter.Mode)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	w.period("payment_date", filter.From, filter.To)

	rows, err := s.q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments`+w.clause()+` ORDER BY payment_date DESC, number DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

func (s *Store) UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payments
		SET payment_date = $2, amount = $3, mode = $4, status = $5, reference = $6, comment = $7, updated_at = $8
		WHERE id = $1
	`, payment.ID, payment.Date, payment.Amount, payment.Mode, payment.Status, payment.Reference, payment.Comment, payment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := payment
	return &updated, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SumValidPayments(ctx context.Context, saleID string, excludeID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE sale_id = $1 AND status = 'VALID' AND ($2::text = '' OR id::text <> $2::text)
	`, saleID, excludeID).Scan(&total)
	return total, err
}

const invoiceColumns = `id, number, sale_id, issued_at, amount, status, artifact_ref, created_at, updated_at`

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := row.Scan(&inv.ID, &inv.Number, &inv.SaleID, &inv.IssuedAt, &inv.Amount, &inv.Status, &inv.ArtifactRef,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	inv.IssuedAt = inv.IssuedAt.UTC()
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.Number, invoice.SaleID, invoice.IssuedAt, invoice.Amount, invoice.Status, invoice.ArtifactRef,
		invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err, "an invoice already exists for this sale or number")
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return scanInvoice(s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

func (s *Store) GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return scanInvoice(s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1`, number))
}

func (s *Store) GetInvoiceBySale(ctx context.Context, saleID string) (*domain.Invoice, error) {
	return scanInvoice(s.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE sale_id = $1`, saleID))
}

func (s *Store) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	var w where
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	w.period("issued_at", filter.From, filter.To)

	rows, err := s.q.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices`+w.clause()+` ORDER BY issued_at DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoice)
}

func (s *Store) UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE invoices
		SET issued_at = $2, amount = $3, status = $4, artifact_ref = $5, updated_at = $6
		WHERE id = $1
	`, invoice.ID, invoice.IssuedAt, invoice.Amount, invoice.Status, invoice.ArtifactRef, invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := invoice
	return &updated, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
