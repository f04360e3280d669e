package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/store/memory"
)

const (
	adminEmail   = "admin@caissepro.local"
	stockEmail   = "stock@caissepro.local"
	cashierEmail = "caisse@caissepro.local"
	adminPwd     = "Admin#2024"
	cashierPwd   = "Caisse#2024"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	t.Setenv("SEED_ADMIN_EMAIL", adminEmail)
	t.Setenv("SEED_ADMIN_PASSWORD", adminPwd)
	t.Setenv("SEED_CASHIER_PASSWORD", cashierPwd)

	repo := memory.NewSeeded()
	return New(repo, nil, nil), repo
}

func actorCtx(t *testing.T, repo store.Repository, email string) context.Context {
	t.Helper()
	user, err := repo.GetUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("seeded user %s: %v", email, err)
	}
	return WithActor(context.Background(), domain.Actor{UserID: user.ID, Email: user.Email, Role: user.Role})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newProduct(t *testing.T, svc *Service, ctx context.Context, price string, stock int) domain.Product {
	t.Helper()
	categories, err := svc.ListCategories(ctx, store.ViewActive)
	if err != nil || len(categories) == 0 {
		t.Fatalf("list categories: %v", err)
	}
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:       "Test product",
		UnitPrice:  dec(price),
		Stock:      stock,
		CategoryID: categories[0].ID,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func newSale(t *testing.T, svc *Service, ctx context.Context, gross string) domain.Sale {
	t.Helper()
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec(gross)})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return sale
}

func pay(svc *Service, ctx context.Context, saleID, amount string) (domain.Payment, error) {
	return svc.CreatePayment(ctx, saleID, domain.PaymentCreateRequest{Amount: dec(amount), Mode: domain.PaymentModeCash})
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	product, err := svc.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.Stock
}

func saleStatus(t *testing.T, svc *Service, id string) domain.SaleStatus {
	t.Helper()
	sale, err := svc.GetSale(context.Background(), id)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	return sale.Status
}

func TestCreateSaleComputesNetTotal(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("100.00"), DiscountTotal: dec("15.50")})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.NetTotal.Equal(dec("84.50")) {
		t.Fatalf("expected net 84.50, got %s", sale.NetTotal)
	}
	if sale.Status != domain.SaleStatusOrdered {
		t.Fatalf("expected COMMANDE, got %s", sale.Status)
	}
	actor, _ := ActorFromContext(ctx)
	if sale.CashierID != actor.UserID {
		t.Fatalf("expected cashier to default to the caller")
	}
	if !sequence.Valid(sequence.ScopeSale, sale.Number) {
		t.Fatalf("unexpected sale number %s", sale.Number)
	}

	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("10"), DiscountTotal: dec("20")})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative net, got %v", err)
	}

	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("10"), Status: domain.SaleStatusPaid})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for initial PAYEE status, got %v", err)
	}

	missing := "missing-client"
	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("10"), ClientID: &missing})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestPaymentsPromoteSaleStatus(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "100.00")

	if _, err := pay(svc, ctx, sale.ID, "60.00"); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusInProgress {
		t.Fatalf("expected EN_COURS after partial payment, got %s", got)
	}

	payment, err := pay(svc, ctx, sale.ID, "40.00")
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusValid || !sequence.Valid(sequence.ScopePayment, payment.Number) {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusPaid {
		t.Fatalf("expected PAYEE once the net is covered, got %s", got)
	}

	if _, err := pay(svc, ctx, sale.ID, "0.01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected overpayment to fail with invalid input, got %v", err)
	}
}

func TestOverpaymentLeavesNothingBehind(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "50.00")

	_, err := pay(svc, ctx, sale.ID, "60.00")
	if !errors.Is(err, store.ErrInvalidInput) || err.Error() != "invalid input: "+overpaymentMessage {
		t.Fatalf("expected remaining-balance error, got %v", err)
	}
	payments, err := svc.ListPayments(ctx, store.PaymentFilter{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("expected no payment, got %d", len(payments))
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusOrdered {
		t.Fatalf("expected sale to stay COMMANDE, got %s", got)
	}
}

func TestCancelledSaleRefusesPayment(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "20.00")

	if _, err := svc.CancelSale(ctx, sale.ID); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if _, err := pay(svc, ctx, sale.ID, "5.00"); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestAddSaleLineChecksStock(t *testing.T) {
	svc, repo := newTestService(t)
	stockCtx := actorCtx(t, repo, stockEmail)
	ctx := actorCtx(t, repo, cashierEmail)
	product := newProduct(t, svc, stockCtx, "4.00", 3)
	sale := newSale(t, svc, ctx, "12.00")

	_, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 5})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, svc, product.ID); got != 3 {
		t.Fatalf("expected stock untouched at 3, got %d", got)
	}

	line, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if !line.UnitPrice.Equal(dec("4.00")) || !line.Subtotal.Equal(dec("12.00")) {
		t.Fatalf("unexpected line pricing %+v", line)
	}
	if got := stockOf(t, svc, product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestConcurrentSaleLinesNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)
	stockCtx := actorCtx(t, repo, stockEmail)
	ctx := actorCtx(t, repo, cashierEmail)
	product := newProduct(t, svc, stockCtx, "2.00", 10)
	sale := newSale(t, svc, ctx, "80.00")

	const attempts = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 lines, got %d", succeeded)
	}
	for _, err := range failures {
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
	}
	if got := stockOf(t, svc, product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
	lines, err := svc.ListSaleLines(ctx, sale.ID)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 10 {
		t.Fatalf("expected 10 stored lines, got %d", len(lines))
	}
}

func TestDeleteSaleLineRestoresStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "2.00", 10)
	sale := newSale(t, svc, ctx, "10.00")

	line, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 5})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if got := stockOf(t, svc, product.ID); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}

	if err := svc.DeleteSaleLine(ctx, line.ID); err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if got := stockOf(t, svc, product.ID); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
	if _, err := svc.GetSaleLine(ctx, line.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected line to be gone, got %v", err)
	}
}

func TestUpdateSaleLineAppliesQuantityDelta(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "3.00", 10)
	sale := newSale(t, svc, ctx, "30.00")

	line, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}

	for _, tc := range []struct {
		qty       int
		wantStock int
	}{
		{qty: 5, wantStock: 5},
		{qty: 1, wantStock: 9},
	} {
		qty := tc.qty
		updated, err := svc.UpdateSaleLineOf(ctx, sale.ID, line.ID, domain.SaleLineUpdateRequest{Quantity: &qty})
		if err != nil {
			t.Fatalf("update to %d: %v", qty, err)
		}
		if !updated.Subtotal.Equal(dec("3.00").Mul(decimal.NewFromInt(int64(qty)))) {
			t.Fatalf("unexpected subtotal %s for qty %d", updated.Subtotal, qty)
		}
		if got := stockOf(t, svc, product.ID); got != tc.wantStock {
			t.Fatalf("qty %d: expected stock %d, got %d", qty, tc.wantStock, got)
		}
	}

	tooMany := 20
	if _, err := svc.UpdateSaleLine(ctx, line.ID, domain.SaleLineUpdateRequest{Quantity: &tooMany}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, svc, product.ID); got != 9 {
		t.Fatalf("expected stock to stay 9, got %d", got)
	}

	other := newSale(t, svc, ctx, "1.00")
	if err := svc.RemoveSaleLineOf(ctx, other.ID, line.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected line of another sale to be not found, got %v", err)
	}
}

func TestSaleLineSubtotalMustStayPositive(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "10.00", 50)
	sale := newSale(t, svc, ctx, "100.00")

	pct := domain.DiscountPercentage
	line, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{
		ProductID:     product.ID,
		Quantity:      2,
		DiscountType:  &pct,
		DiscountValue: func() *decimal.Decimal { d := dec("10"); return &d }(),
	})
	if err != nil {
		t.Fatalf("add discounted line: %v", err)
	}
	if !line.Subtotal.Equal(dec("18.00")) {
		t.Fatalf("expected subtotal 18.00, got %s", line.Subtotal)
	}
	subtotal, err := svc.SaleLineSubtotal(ctx, line.ID)
	if err != nil || !subtotal.Equal(dec("18.00")) {
		t.Fatalf("subtotal read: %s, %v", subtotal, err)
	}

	amount := domain.DiscountAmount
	twenty := dec("20")
	_, err = svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 2, DiscountType: &amount, DiscountValue: &twenty})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero subtotal, got %v", err)
	}

	tooMuch := dec("150")
	_, err = svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 1, DiscountType: &pct, DiscountValue: &tooMuch})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for percentage above 100, got %v", err)
	}

	if _, err := svc.ApplyLineDiscount(ctx, line.ID, domain.DiscountRequest{Type: domain.DiscountAmount, Value: dec("20")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected discount wiping the subtotal to fail, got %v", err)
	}
	discounted, err := svc.ApplyLineDiscount(ctx, line.ID, domain.DiscountRequest{Type: domain.DiscountAmount, Value: dec("5")})
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if !discounted.Subtotal.Equal(dec("15.00")) {
		t.Fatalf("expected subtotal 15.00, got %s", discounted.Subtotal)
	}

	if got := stockOf(t, svc, product.ID); got != 48 {
		t.Fatalf("failed additions must not touch stock, got %d", got)
	}
}

func TestLinesRefusedOnClosedSales(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "10.00", 5)

	paid := newSale(t, svc, ctx, "10.00")
	if _, err := pay(svc, ctx, paid.ID, "10.00"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	cancelled := newSale(t, svc, ctx, "10.00")
	if _, err := svc.CancelSale(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, id := range []string{paid.ID, cancelled.ID} {
		_, err := svc.AddSaleLine(ctx, id, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 1})
		if !errors.Is(err, store.ErrInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	}

	inactive := false
	if _, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Active: &inactive}); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}
	open := newSale(t, svc, ctx, "10.00")
	if _, err := svc.AddSaleLine(ctx, open.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 1}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected inactive product to be refused, got %v", err)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	product := newProduct(t, svc, actorCtx(t, repo, adminEmail), "25.00", 10)
	sale := newSale(t, svc, ctx, "50.00")

	if _, err := svc.GenerateSaleInvoice(ctx, sale.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invoice on a sale without lines to fail, got %v", err)
	}

	if _, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	invoice, err := svc.GenerateSaleInvoice(ctx, sale.ID)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusIssued || !invoice.Amount.Equal(dec("50.00")) {
		t.Fatalf("unexpected invoice %+v", invoice)
	}
	if !sequence.Valid(sequence.ScopeInvoice, invoice.Number) || invoice.ArtifactRef != "factures/"+invoice.Number+".pdf" {
		t.Fatalf("unexpected invoice identity %s / %s", invoice.Number, invoice.ArtifactRef)
	}

	if _, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected second invoice to fail, got %v", err)
	}

	inflated := dec("75.00")
	if _, err := svc.UpdateInvoice(ctx, invoice.ID, domain.InvoiceUpdateRequest{Amount: &inflated}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected amount diverging from the sale net to fail, got %v", err)
	}
	newNet := dec("45.00")
	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{GrossTotal: &newNet}); err != nil {
		t.Fatalf("update sale: %v", err)
	}
	resynced, err := svc.UpdateInvoice(ctx, invoice.ID, domain.InvoiceUpdateRequest{Amount: &newNet})
	if err != nil {
		t.Fatalf("resync invoice amount: %v", err)
	}
	if !resynced.Amount.Equal(newNet) {
		t.Fatalf("expected amount 45.00, got %s", resynced.Amount)
	}

	regenerated, err := svc.RegenerateInvoiceArtifact(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if regenerated.ArtifactRef == invoice.ArtifactRef || regenerated.ID != invoice.ID {
		t.Fatalf("expected a new reference on the same invoice, got %+v", regenerated)
	}

	if _, err := svc.CancelInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	if _, err := svc.CancelInvoice(ctx, invoice.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}
	if _, err := svc.RegenerateInvoiceArtifact(ctx, invoice.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected regenerate of a cancelled invoice to fail, got %v", err)
	}

	stats, err := svc.InvoiceStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 || stats.ByStatus[domain.InvoiceStatusCancelled] != 1 || !stats.IssuedTotal.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestInvoiceOfPaidSaleIsLocked(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "10.00", 5)
	sale := newSale(t, svc, ctx, "10.00")
	if _, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	invoice, err := svc.GenerateSaleInvoice(ctx, sale.ID)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if _, err := pay(svc, ctx, sale.ID, "10.00"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := svc.CancelInvoice(ctx, invoice.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected cancel to fail on a paid sale, got %v", err)
	}
	if err := svc.DeleteInvoice(ctx, invoice.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected delete to fail on a paid sale, got %v", err)
	}
}

func TestSaleStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		paid    string
		path    []domain.SaleStatus
		wantErr error
	}{
		{name: "ordered to in progress", path: []domain.SaleStatus{domain.SaleStatusInProgress}},
		{name: "ordered straight to paid", path: []domain.SaleStatus{domain.SaleStatusPaid}},
		{name: "same status is a no-op", path: []domain.SaleStatus{domain.SaleStatusOrdered}},
		{name: "paid back to in progress", path: []domain.SaleStatus{domain.SaleStatusPaid, domain.SaleStatusInProgress}, wantErr: store.ErrInvalidState},
		{name: "paid cannot be cancelled", path: []domain.SaleStatus{domain.SaleStatusPaid, domain.SaleStatusCancelled}, wantErr: store.ErrInvalidState},
		{name: "cancelled is terminal", path: []domain.SaleStatus{domain.SaleStatusCancelled, domain.SaleStatusOrdered}, wantErr: store.ErrInvalidState},
		{name: "paid sale can be refunded", paid: "10.00", path: []domain.SaleStatus{domain.SaleStatusRefunded}},
		{name: "refunded is terminal", paid: "4.00", path: []domain.SaleStatus{domain.SaleStatusRefunded, domain.SaleStatusPaid}, wantErr: store.ErrInvalidState},
		{name: "refund needs a valid payment", path: []domain.SaleStatus{domain.SaleStatusRefunded}, wantErr: store.ErrInvalidState},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService(t)
			ctx := actorCtx(t, repo, cashierEmail)
			sale := newSale(t, svc, ctx, "10.00")
			if tc.paid != "" {
				if _, err := pay(svc, ctx, sale.ID, tc.paid); err != nil {
					t.Fatalf("pay: %v", err)
				}
			}

			var err error
			for _, status := range tc.path {
				_, err = svc.ChangeSaleStatus(ctx, sale.ID, domain.SaleStatusRequest{Status: status})
				if err != nil {
					break
				}
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRefundBoundedByValidPayments(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "100.00")

	if _, err := svc.RefundSale(ctx, sale.ID, domain.SaleRefundRequest{Amount: dec("1.00")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected refund of an unpaid sale to fail, got %v", err)
	}
	if _, err := svc.ChangeSaleStatus(ctx, sale.ID, domain.SaleStatusRequest{Status: domain.SaleStatusRefunded}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected status change to REMBOURSEE without payment to fail, got %v", err)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusOrdered {
		t.Fatalf("expected sale to stay COMMANDE, got %s", got)
	}

	if _, err := pay(svc, ctx, sale.ID, "60.00"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := svc.RefundSale(ctx, sale.ID, domain.SaleRefundRequest{Amount: dec("70.00")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected refund above paid amount to fail, got %v", err)
	}
	refunded, err := svc.RefundSale(ctx, sale.ID, domain.SaleRefundRequest{Amount: dec("60.00"), Comment: "client insatisfait"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.SaleStatusRefunded || refunded.Comment != "client insatisfait" {
		t.Fatalf("unexpected refunded sale %+v", refunded)
	}
	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Comment: func() *string { s := "x"; return &s }()}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected refunded sale to be read-only, got %v", err)
	}
}

func TestPaymentStatusFlipsKeepSaleConsistent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "100.00")

	first, err := pay(svc, ctx, sale.ID, "100.00")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusPaid {
		t.Fatalf("expected PAYEE, got %s", got)
	}

	if _, err := svc.RefusePayment(ctx, first.ID); err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusOrdered {
		t.Fatalf("expected sale back to COMMANDE, got %s", got)
	}

	if _, err := pay(svc, ctx, sale.ID, "100.00"); err != nil {
		t.Fatalf("second full payment: %v", err)
	}
	if _, err := svc.ValidatePayment(ctx, first.ID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected re-validation to exceed the net, got %v", err)
	}

	if _, err := svc.UpdatePayment(ctx, first.ID, domain.PaymentUpdateRequest{Comment: func() *string { s := "x"; return &s }()}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected refused payment to be read-only, got %v", err)
	}

	stats, err := svc.PaymentStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 || !stats.Total.Equal(dec("100.00")) || len(stats.ByMode) != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	partial := newSale(t, svc, ctx, "100.00")
	deposit, err := pay(svc, ctx, partial.ID, "60.00")
	if err != nil {
		t.Fatalf("pay deposit: %v", err)
	}
	if _, err := svc.RefusePayment(ctx, deposit.ID); err != nil {
		t.Fatalf("refuse deposit: %v", err)
	}
	if got := saleStatus(t, svc, partial.ID); got != domain.SaleStatusOrdered {
		t.Fatalf("expected partially paid sale back to COMMANDE once refused, got %s", got)
	}

	deleted := newSale(t, svc, ctx, "100.00")
	only, err := pay(svc, ctx, deleted.ID, "60.00")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if got := saleStatus(t, svc, deleted.ID); got != domain.SaleStatusInProgress {
		t.Fatalf("expected EN_COURS, got %s", got)
	}
	if err := svc.DeletePayment(ctx, only.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	if got := saleStatus(t, svc, deleted.ID); got != domain.SaleStatusOrdered {
		t.Fatalf("expected sale back to COMMANDE after deleting its only payment, got %s", got)
	}
}

func TestUpdatePaymentAmountRechecksBalance(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)
	sale := newSale(t, svc, ctx, "100.00")

	payment, err := pay(svc, ctx, sale.ID, "40.00")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	tooMuch := dec("100.01")
	if _, err := svc.UpdatePayment(ctx, payment.ID, domain.PaymentUpdateRequest{Amount: &tooMuch}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	full := dec("100.00")
	if _, err := svc.UpdatePayment(ctx, payment.ID, domain.PaymentUpdateRequest{Amount: &full}); err != nil {
		t.Fatalf("update amount: %v", err)
	}
	if got := saleStatus(t, svc, sale.ID); got != domain.SaleStatusPaid {
		t.Fatalf("expected PAYEE, got %s", got)
	}
	if err := svc.DeletePayment(ctx, payment.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected delete on a paid sale to fail, got %v", err)
	}
}

func TestPromotionApplyHonoursWindow(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)

	promo, err := svc.CreatePromotion(ctx, domain.PromotionCreateRequest{
		Name:     "Soldes d'hiver",
		Code:     "PROMO-123",
		Type:     domain.DiscountPercentage,
		Value:    dec("10"),
		StartsAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create promotion: %v", err)
	}

	svc.SetClock(func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) })
	result, err := svc.ApplyPromotion(ctx, domain.PromotionApplyRequest{Code: "promo-123", Amount: dec("200.00")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Discount.Equal(dec("20.00")) || !result.FinalAmount.Equal(dec("180.00")) {
		t.Fatalf("unexpected result %+v", result)
	}

	svc.SetClock(func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) })
	if _, err := svc.ApplyPromotion(ctx, domain.PromotionApplyRequest{Code: "PROMO-123", Amount: dec("200.00")}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected expired promotion to fail, got %v", err)
	}

	if _, err := svc.DeletePromotion(ctx, promo.ID); err != nil {
		t.Fatalf("delete promotion: %v", err)
	}
	svc.SetClock(func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) })
	if _, err := svc.ApplyPromotion(ctx, domain.PromotionApplyRequest{Code: "PROMO-123", Amount: dec("200.00")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted promotion to be unknown, got %v", err)
	}
}

func TestPromotionRules(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreatePromotion(ctx, domain.PromotionCreateRequest{
		Name: "Inversee", Type: domain.DiscountAmount, Value: dec("5"), StartsAt: start, EndsAt: start.Add(-time.Hour),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected start after end to fail, got %v", err)
	}

	_, err = svc.CreatePromotion(ctx, domain.PromotionCreateRequest{
		Name: "Trop", Type: domain.DiscountPercentage, Value: dec("150"), StartsAt: start, EndsAt: start.AddDate(0, 1, 0),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected percentage above 100 to fail, got %v", err)
	}

	promo, err := svc.CreatePromotion(ctx, domain.PromotionCreateRequest{
		Name: "Printemps", Type: domain.DiscountAmount, Value: dec("5"), StartsAt: start, EndsAt: start.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sequence.Valid(sequence.ScopePromotion, promo.Code) {
		t.Fatalf("expected a generated code, got %s", promo.Code)
	}

	cashier := actorCtx(t, repo, cashierEmail)
	if _, err := svc.DeletePromotion(cashier, promo.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden, got %v", err)
	}
}

func TestRolesAreEnforced(t *testing.T) {
	svc, repo := newTestService(t)
	categories, err := svc.ListCategories(context.Background(), store.ViewActive)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}

	req := domain.ProductCreateRequest{Name: "Interdit", UnitPrice: dec("1"), CategoryID: categories[0].ID}
	if _, err := svc.CreateProduct(context.Background(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous caller to be forbidden, got %v", err)
	}
	if _, err := svc.CreateProduct(actorCtx(t, repo, cashierEmail), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden, got %v", err)
	}
	if _, err := svc.CreateSale(actorCtx(t, repo, stockEmail), domain.SaleCreateRequest{GrossTotal: dec("1")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected stock manager to be forbidden, got %v", err)
	}
	if _, err := svc.ListUsers(actorCtx(t, repo, cashierEmail), ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden from users, got %v", err)
	}
}

func TestCatalogSoftDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, stockEmail)

	category, err := svc.CreateCategory(ctx, domain.CategoryCreateRequest{Name: "Surgeles"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := svc.CreateCategory(ctx, domain.CategoryCreateRequest{Name: " surgeles "}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}

	if _, err := svc.DeleteCategory(ctx, category.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetCategory(ctx, category.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted category to be hidden, got %v", err)
	}
	deleted, err := svc.ListCategories(ctx, store.ViewDeleted)
	if err != nil || len(deleted) != 1 {
		t.Fatalf("expected one deleted category, got %d (%v)", len(deleted), err)
	}

	restored, err := svc.RestoreCategory(ctx, category.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Lifecycle != domain.LifecycleActive {
		t.Fatalf("expected active category, got %s", restored.Lifecycle)
	}
	if _, err := svc.RestoreCategory(ctx, category.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected restoring an active category to fail, got %v", err)
	}

	product := newProduct(t, svc, ctx, "1.00", 1)
	if _, err := svc.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := svc.GetProductByCode(ctx, product.Code); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted product to be hidden, got %v", err)
	}
	if _, err := svc.RestoreProduct(ctx, product.ID); err != nil {
		t.Fatalf("restore product: %v", err)
	}
}

func TestStockReports(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, stockEmail)
	product := newProduct(t, svc, ctx, "1.00", 8)

	if _, err := svc.UpdateStock(ctx, product.ID, domain.StockUpdateRequest{Stock: 0}); err != nil {
		t.Fatalf("update stock: %v", err)
	}
	if _, err := svc.UpdateStock(ctx, product.ID, domain.StockUpdateRequest{Stock: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative stock to be invalid, got %v", err)
	}

	out, err := svc.ListProducts(ctx, store.ProductFilter{OutOfStock: true})
	if err != nil || len(out) != 1 || out[0].ID != product.ID {
		t.Fatalf("expected only the emptied product out of stock, got %v (%v)", out, err)
	}

	stats, err := svc.ProductStockStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProducts != 6 || stats.OutOfStock != 1 || stats.LowStock != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	lo, hi := dec("5"), dec("1")
	if _, err := svc.ListProducts(ctx, store.ProductFilter{MinPrice: &lo, MaxPrice: &hi}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inverted price range to fail, got %v", err)
	}
}

func TestClientsAndHistory(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, cashierEmail)

	client, err := svc.CreateClient(ctx, domain.ClientCreateRequest{LastName: "Martin", Phone: "+33612345678", Email: "Martin@example.com"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if client.Email != "martin@example.com" || !sequence.Valid(sequence.ScopeClient, client.Code) {
		t.Fatalf("unexpected client %+v", client)
	}
	if _, err := svc.CreateClient(ctx, domain.ClientCreateRequest{LastName: "Durand", Phone: "+33612345678"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate phone conflict, got %v", err)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("85.00"), ClientID: &client.ID}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	cancelled, err := svc.CreateSale(ctx, domain.SaleCreateRequest{GrossTotal: dec("10.00"), ClientID: &client.ID})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if _, err := svc.CancelSale(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := svc.ClientStats(ctx, client.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSales != 1 || !stats.TotalSpent.Equal(dec("85.00")) || stats.LastSale == nil {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if _, err := svc.DeleteClient(ctx, client.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier delete to be forbidden, got %v", err)
	}
	if _, err := svc.DeleteClient(actorCtx(t, repo, adminEmail), client.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestLoginAndAccountStatus(t *testing.T) {
	svc, repo := newTestService(t)
	admin := actorCtx(t, repo, adminEmail)

	user, err := svc.Login(context.Background(), domain.LoginRequest{Email: cashierEmail, Password: cashierPwd})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login to be stamped")
	}
	if _, err := svc.Login(context.Background(), domain.LoginRequest{Email: cashierEmail, Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if _, err := svc.ChangeUserStatus(admin, user.ID, domain.UserStatusRequest{Status: domain.UserStatusBlocked}); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := svc.Login(context.Background(), domain.LoginRequest{Email: cashierEmail, Password: cashierPwd}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected blocked account to be refused, got %v", err)
	}
}

func TestCreateUserReturnsUsableTemporaryPassword(t *testing.T) {
	svc, repo := newTestService(t)
	admin := actorCtx(t, repo, adminEmail)

	resp, err := svc.CreateUser(admin, domain.UserCreateRequest{Username: "nouveau", Email: "Nouveau@caissepro.local"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if resp.User.Role != domain.RoleCashier || resp.User.PasswordHash == resp.TemporaryPassword {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if msg := domain.PasswordPolicyViolation(resp.TemporaryPassword); msg != "" {
		t.Fatalf("temporary password violates policy: %s", msg)
	}
	if _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "nouveau@caissepro.local", Password: resp.TemporaryPassword}); err != nil {
		t.Fatalf("login with temporary password: %v", err)
	}

	self := WithActor(context.Background(), domain.Actor{UserID: resp.User.ID, Role: resp.User.Role})
	err = svc.ChangePassword(self, domain.PasswordChangeRequest{OldPassword: "bad", NewPassword: "Nouveau#2025"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected wrong old password to fail, got %v", err)
	}
	if err := svc.ChangePassword(self, domain.PasswordChangeRequest{OldPassword: resp.TemporaryPassword, NewPassword: "Nouveau#2025"}); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.CreateUser(admin, domain.UserCreateRequest{Username: "doublon", Email: "nouveau@caissepro.local"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
}

func TestAuditTrailAndPurge(t *testing.T) {
	svc, repo := newTestService(t)
	admin := actorCtx(t, repo, adminEmail)
	actor, _ := ActorFromContext(admin)

	if _, err := svc.CreateCategory(admin, domain.CategoryCreateRequest{Name: "Boulangerie"}); err != nil {
		t.Fatalf("create category: %v", err)
	}

	entries, err := svc.ListAuditLogs(admin, store.AuditFilter{Table: "categories"})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.AuditCreate || entries[0].UserID != actor.UserID {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	stats, err := svc.AuditStats(admin, nil, nil)
	if err != nil || stats.ByTable["categories"] != 1 {
		t.Fatalf("unexpected audit stats %+v (%v)", stats, err)
	}

	svc.SetClock(func() time.Time { return time.Now().UTC().AddDate(0, 0, 10) })
	removed, err := svc.PurgeAuditLogs(admin, domain.AuditPurgeRequest{KeepDays: 1})
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one purged entry, got %d", removed)
	}

	if _, err := svc.ListAuditLogs(actorCtx(t, repo, cashierEmail), store.AuditFilter{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden, got %v", err)
	}
}

func TestExportSalesNestsChildren(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := actorCtx(t, repo, adminEmail)
	product := newProduct(t, svc, ctx, "5.00", 10)

	sale := newSale(t, svc, ctx, "10.00")
	if _, err := svc.AddSaleLine(ctx, sale.ID, domain.SaleLineCreateRequest{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	if _, err := pay(svc, ctx, sale.ID, "4.00"); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := svc.GenerateSaleInvoice(ctx, sale.ID); err != nil {
		t.Fatalf("invoice: %v", err)
	}
	empty := newSale(t, svc, ctx, "1.00")

	export, err := svc.ExportSales(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(export) != 2 {
		t.Fatalf("expected two sales, got %d", len(export))
	}
	for _, item := range export {
		switch item.ID {
		case sale.ID:
			if len(item.Lines) != 1 || len(item.Payments) != 1 || item.Invoice == nil {
				t.Fatalf("unexpected export of the full sale %+v", item)
			}
		case empty.ID:
			if len(item.Lines) != 0 || item.Payments == nil || item.Invoice != nil {
				t.Fatalf("unexpected export of the empty sale %+v", item)
			}
		}
	}

	stats, err := svc.SaleStats(ctx)
	if err != nil || stats.Count != 2 || !stats.NetTotal.Equal(dec("11.00")) {
		t.Fatalf("unexpected sale stats %+v (%v)", stats, err)
	}
}
