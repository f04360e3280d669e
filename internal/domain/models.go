package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Lifecycle string

const (
	LifecycleActive  Lifecycle = "ACTIVE"
	LifecycleDeleted Lifecycle = "DELETED"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleStockOwner Role = "RESP_STOCK"
	RoleCashier    Role = "CAISSIER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStockOwner, RoleCashier:
		return true
	}
	return false
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIF"
	UserStatusInactive UserStatus = "INACTIF"
	UserStatusBlocked  UserStatus = "BLOQUE"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusBlocked:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusOrdered    SaleStatus = "COMMANDE"
	SaleStatusInProgress SaleStatus = "EN_COURS"
	SaleStatusPaid       SaleStatus = "PAYEE"
	SaleStatusRefunded   SaleStatus = "REMBOURSEE"
	SaleStatusCancelled  SaleStatus = "ANNULEE"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusOrdered, SaleStatusInProgress, SaleStatusPaid, SaleStatusRefunded, SaleStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave the status.
func (s SaleStatus) Terminal() bool {
	return s == SaleStatusRefunded || s == SaleStatusCancelled
}

type DiscountType string

const (
	DiscountAmount     DiscountType = "AMOUNT"
	DiscountPercentage DiscountType = "PERCENTAGE"
)

func (t DiscountType) Valid() bool {
	return t == DiscountAmount || t == DiscountPercentage
}

type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "CASH"
	PaymentModeCard        PaymentMode = "CARD"
	PaymentModeMobileMoney PaymentMode = "MOBILE_MONEY"
	PaymentModeCheque      PaymentMode = "CHEQUE"
	PaymentModeOther       PaymentMode = "OTHER"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeCard, PaymentModeMobileMoney, PaymentModeCheque, PaymentModeOther:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusValid   PaymentStatus = "VALID"
	PaymentStatusRefused PaymentStatus = "REFUSED"
	PaymentStatusPending PaymentStatus = "PENDING"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusValid, PaymentStatusRefused, PaymentStatusPending:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

type AuditAction string

const (
	AuditCreate  AuditAction = "CREATE"
	AuditUpdate  AuditAction = "UPDATE"
	AuditDelete  AuditAction = "DELETE"
	AuditRestore AuditAction = "RESTORE"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditUpdate, AuditDelete, AuditRestore:
		return true
	}
	return false
}

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IPAddress  string `json:"-"`
	DeviceInfo string `json:"-"`
}

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Lifecycle   Lifecycle `json:"lifecycle"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Photo       string          `json:"photo,omitempty"`
	Stock       int             `json:"stock"`
	StockMin    int             `json:"stock_min"`
	CategoryID  string          `json:"category_id"`
	Active      bool            `json:"active"`
	Lifecycle   Lifecycle       `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Sellable reports whether the product may be put on a sale line.
func (p Product) Sellable() bool {
	return p.Active && p.Lifecycle == LifecycleActive
}

type ProductStockStats struct {
	TotalProducts int `json:"total_products"`
	OutOfStock    int `json:"out_of_stock"`
	LowStock      int `json:"low_stock"`
	TotalStock    int `json:"total_stock"`
}

type Client struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	LastName  string    `json:"last_name"`
	FirstName string    `json:"first_name,omitempty"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Lifecycle Lifecycle `json:"lifecycle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ClientStats struct {
	TotalSales int             `json:"total_sales"`
	TotalSpent decimal.Decimal `json:"total_spent"`
	LastSale   *Sale           `json:"last_sale,omitempty"`
}

type Promotion struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Type        DiscountType    `json:"type"`
	Value       decimal.Decimal `json:"value"`
	StartsAt    time.Time       `json:"starts_at"`
	EndsAt      time.Time       `json:"ends_at"`
	ProductID   *string         `json:"product_id,omitempty"`
	CategoryID  *string         `json:"category_id,omitempty"`
	Lifecycle   Lifecycle       `json:"lifecycle"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ActiveAt reports whether t falls inside the promotion window, bounds included.
func (p Promotion) ActiveAt(t time.Time) bool {
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

type PromotionResult struct {
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

type Sale struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	CashierID     string          `json:"cashier_id"`
	ClientID      *string         `json:"client_id,omitempty"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	NetTotal      decimal.Decimal `json:"net_total"`
	Status        SaleStatus      `json:"status"`
	Comment       string          `json:"comment,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type SaleLine struct {
	ID            string          `json:"id"`
	SaleID        string          `json:"sale_id"`
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	DiscountType  *DiscountType   `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Payment struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	SaleID    string          `json:"sale_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Mode      PaymentMode     `json:"mode"`
	Status    PaymentStatus   `json:"status"`
	Reference string          `json:"reference,omitempty"`
	Comment   string          `json:"comment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type PaymentModeTotal struct {
	Mode  PaymentMode     `json:"mode"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type PaymentStats struct {
	Count  int                `json:"count"`
	Total  decimal.Decimal    `json:"total"`
	ByMode []PaymentModeTotal `json:"by_mode"`
}

type Invoice struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	SaleID      string          `json:"sale_id"`
	IssuedAt    time.Time       `json:"issued_at"`
	Amount      decimal.Decimal `json:"amount"`
	Status      InvoiceStatus   `json:"status"`
	ArtifactRef string          `json:"artifact_ref"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type InvoiceStats struct {
	Count       int                   `json:"count"`
	IssuedTotal decimal.Decimal       `json:"issued_total"`
	ByStatus    map[InvoiceStatus]int `json:"by_status"`
}

type SaleStats struct {
	Count    int             `json:"count"`
	NetTotal decimal.Decimal `json:"net_total"`
}

// SaleExport is a sale with everything it owns, used for reporting.
type SaleExport struct {
	Sale
	Lines    []SaleLine `json:"lines"`
	Payments []Payment  `json:"payments"`
	Invoice  *Invoice   `json:"invoice,omitempty"`
}

type AuditLog struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Table      string          `json:"table"`
	Action     AuditAction     `json:"action"`
	Details    json.RawMessage `json:"details,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	DeviceInfo string          `json:"device_info,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type AuditStats struct {
	Total    int                 `json:"total"`
	ByAction map[AuditAction]int `json:"by_action"`
	ByTable  map[string]int      `json:"by_table"`
	ByUser   map[string]int      `json:"by_user"`
}
