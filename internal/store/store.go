package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// View selects which lifecycle states a catalog query returns.
type View int

const (
	ViewActive View = iota
	ViewDeleted
	ViewAll
)

// Includes reports whether an entity with the given lifecycle belongs to the view.
func (v View) Includes(l domain.Lifecycle) bool {
	switch v {
	case ViewActive:
		return l == domain.LifecycleActive
	case ViewDeleted:
		return l == domain.LifecycleDeleted
	default:
		return true
	}
}

type ProductFilter struct {
	View       View
	CategoryID string
	Query      string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	OnlyActive bool
	OutOfStock bool
	LowStock   bool
}

type ClientFilter struct {
	View  View
	Name  string
	Phone string
}

type PromotionFilter struct {
	View       View
	ActiveAt   *time.Time
	ProductID  string
	CategoryID string
}

type SaleFilter struct {
	Status    domain.SaleStatus
	CashierID string
	ClientID  string
	From      *time.Time
	To        *time.Time
}

type PaymentFilter struct {
	SaleID string
	Mode   domain.PaymentMode
	Status domain.PaymentStatus
	From   *time.Time
	To     *time.Time
}

type InvoiceFilter struct {
	Status domain.InvoiceStatus
	From   *time.Time
	To     *time.Time
}

type AuditFilter struct {
	UserID string
	Table  string
	Action domain.AuditAction
	From   *time.Time
	To     *time.Time
	Limit  int
}

// TxFunc runs inside a unit of work; returning an error rolls it back.
type TxFunc func(ctx context.Context, repo Repository) error

type Repository interface {
	// WithinTx runs fn atomically. Reads made with the ForUpdate methods
	// inside fn hold their rows until fn returns.
	WithinTx(ctx context.Context, fn TxFunc) error

	// NextSequence returns the next value of a monotonic per-scope counter.
	NextSequence(ctx context.Context, scope string) (int64, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string, view View) (*domain.Category, error)
	ListCategories(ctx context.Context, view View) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string, view View) (*domain.Product, error)
	GetProductByCode(ctx context.Context, code string, view View) (*domain.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductStock(ctx context.Context, id string, stock int) error

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string, view View) (*domain.Client, error)
	GetClientByCode(ctx context.Context, code string, view View) (*domain.Client, error)
	ListClients(ctx context.Context, filter ClientFilter) ([]domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)

	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	GetPromotion(ctx context.Context, id string, view View) (*domain.Promotion, error)
	GetPromotionByCode(ctx context.Context, code string, view View) (*domain.Promotion, error)
	ListPromotions(ctx context.Context, filter PromotionFilter) ([]domain.Promotion, error)
	UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleForUpdate(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByNumber(ctx context.Context, number string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)

	CreateSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error)
	GetSaleLine(ctx context.Context, id string) (*domain.SaleLine, error)
	ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error)
	UpdateSaleLine(ctx context.Context, line domain.SaleLine) (*domain.SaleLine, error)
	DeleteSaleLine(ctx context.Context, id string) error
	CountSaleLines(ctx context.Context, saleID string) (int, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentByNumber(ctx context.Context, number string) (*domain.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]domain.Payment, error)
	UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	// SumValidPayments totals VALID payments of a sale, skipping excludeID when set.
	SumValidPayments(ctx context.Context, saleID string, excludeID string) (decimal.Decimal, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	GetInvoiceBySale(ctx context.Context, saleID string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]domain.Invoice, error)
	UpdateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	GetAuditLog(ctx context.Context, id string) (*domain.AuditLog, error)
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]domain.AuditLog, error)
	DeleteAuditLogsBefore(ctx context.Context, before time.Time) (int, error)
}
