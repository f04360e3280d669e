package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

func firstProduct(t *testing.T, s *Store) domain.Product {
	t.Helper()
	products, err := s.ListProducts(context.Background(), store.ProductFilter{})
	if err != nil || len(products) == 0 {
		t.Fatalf("expected seeded products: %v", err)
	}
	return products[0]
}

func TestWithinTxRestoresStateOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	product := firstProduct(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if err := repo.SetProductStock(ctx, product.ID, 0); err != nil {
			return err
		}
		if _, err := repo.NextSequence(ctx, "VENT"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := s.GetProduct(ctx, product.ID, store.ViewActive)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != product.Stock {
		t.Fatalf("expected stock %d restored, got %d", product.Stock, got.Stock)
	}
	if n, _ := s.NextSequence(ctx, "VENT"); n != 1 {
		t.Fatalf("expected sequence rolled back, got %d", n)
	}
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	product := firstProduct(t, s)

	err := s.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return repo.SetProductStock(ctx, product.ID, product.Stock-1)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, _ := s.GetProduct(ctx, product.ID, store.ViewActive)
	if got.Stock != product.Stock-1 {
		t.Fatalf("expected committed stock %d, got %d", product.Stock-1, got.Stock)
	}
}

func TestViewsHideDeletedCatalogRows(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	product := firstProduct(t, s)

	product.Lifecycle = domain.LifecycleDeleted
	if _, err := s.UpdateProduct(ctx, product); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := s.GetProduct(ctx, product.ID, store.ViewActive); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted product hidden from active view, got %v", err)
	}
	if _, err := s.GetProduct(ctx, product.ID, store.ViewDeleted); err != nil {
		t.Fatalf("expected deleted product in deleted view: %v", err)
	}
	deleted, _ := s.ListProducts(ctx, store.ProductFilter{View: store.ViewDeleted})
	if len(deleted) != 1 {
		t.Fatalf("expected one deleted product, got %d", len(deleted))
	}
}

func TestActiveNameUniqueness(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	categories, _ := s.ListCategories(ctx, store.ViewActive)
	now := time.Now().UTC()

	dup := domain.Category{ID: xid.New(), Name: " " + categories[0].Name + " ", Lifecycle: domain.LifecycleActive, CreatedAt: now, UpdatedAt: now}
	if _, err := s.CreateCategory(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	dup.Lifecycle = domain.LifecycleDeleted
	if _, err := s.CreateCategory(ctx, dup); err != nil {
		t.Fatalf("deleted rows do not take part in uniqueness: %v", err)
	}
}

func TestLowStockFilterUsesThreshold(t *testing.T) {
	s := NewSeeded()
	low, err := s.ListProducts(context.Background(), store.ProductFilter{LowStock: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(low) != 1 || low[0].Stock != 4 {
		t.Fatalf("expected the single seeded product under its threshold, got %+v", low)
	}
}

func TestSumValidPaymentsSkipsExcludedAndInvalid(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()
	users, _ := s.ListUsers(ctx, domain.RoleCashier)

	sale := domain.Sale{ID: xid.New(), Number: "VENT-000001-8", Date: now, CashierID: users[0].ID, NetTotal: decimal.NewFromInt(100), Status: domain.SaleStatusOrdered}
	if _, err := s.CreateSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	amounts := []struct {
		amount string
		status domain.PaymentStatus
	}{{"30", domain.PaymentStatusValid}, {"25.50", domain.PaymentStatusValid}, {"40", domain.PaymentStatusPending}}
	ids := make([]string, 0, len(amounts))
	for i, a := range amounts {
		p := domain.Payment{ID: xid.New(), Number: "PAY-" + string(rune('A'+i)), SaleID: sale.ID, Date: now, Amount: decimal.RequireFromString(a.amount), Mode: domain.PaymentModeCash, Status: a.status}
		if _, err := s.CreatePayment(ctx, p); err != nil {
			t.Fatalf("create payment: %v", err)
		}
		ids = append(ids, p.ID)
	}

	total, _ := s.SumValidPayments(ctx, sale.ID, "")
	if !total.Equal(decimal.RequireFromString("55.50")) {
		t.Fatalf("expected 55.50, got %s", total)
	}
	total, _ = s.SumValidPayments(ctx, sale.ID, ids[0])
	if !total.Equal(decimal.RequireFromString("25.50")) {
		t.Fatalf("expected 25.50, got %s", total)
	}
}

func TestDeleteUserWithSalesConflicts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	users, _ := s.ListUsers(ctx, domain.RoleCashier)
	sale := domain.Sale{ID: xid.New(), Number: "VENT-000002-6", Date: time.Now().UTC(), CashierID: users[0].ID, Status: domain.SaleStatusOrdered}
	if _, err := s.CreateSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := s.DeleteUser(ctx, users[0].ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSequenceReportsWithoutDrawing(t *testing.T) {
	s := NewSeeded()
	if got := s.Sequence("PROD"); got != 5 {
		t.Fatalf("expected seeded product sequence 5, got %d", got)
	}
	if got := s.Sequence("PROD"); got != 5 {
		t.Fatalf("reading the sequence must not advance it, got %d", got)
	}
	if n, _ := s.NextSequence(context.Background(), "PROD"); n != 6 {
		t.Fatalf("expected next product sequence 6, got %d", n)
	}
}
