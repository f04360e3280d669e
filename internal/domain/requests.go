package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/validation"
)

const (
	roleChoices          = "ADMIN, RESP_STOCK, CAISSIER"
	userStatusChoices    = "ACTIF, INACTIF, BLOQUE"
	saleStatusChoices    = "COMMANDE, EN_COURS, PAYEE, REMBOURSEE, ANNULEE"
	discountTypeChoices  = "AMOUNT, PERCENTAGE"
	paymentModeChoices   = "CASH, CARD, MOBILE_MONEY, CHEQUE, OTHER"
	paymentStatusChoices = "VALID, REFUSED, PENDING"
	emptyUpdateField     = "body"
	emptyUpdateMessage   = "at least one field must be provided"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("email", r.Email, v)
	validation.Email("email", r.Email, v)
	validation.Required("password", r.Password, v)
	return v
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role,omitempty"`
}

func (r UserCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Length("username", r.Username, 3, 100, v)
	validation.Required("email", r.Email, v)
	validation.Email("email", r.Email, v)
	validation.MaxLength("email", r.Email, 150, v)
	if r.Role != "" {
		validation.OneOf("role", r.Role.Valid(), roleChoices, v)
	}
	return v
}

type UserCreateResponse struct {
	User              User   `json:"user"`
	TemporaryPassword string `json:"temporary_password"`
}

type UserUpdateRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

func (r UserUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Username == nil && r.Email == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Username != nil {
		validation.Length("username", *r.Username, 3, 100, v)
	}
	if r.Email != nil {
		validation.Required("email", *r.Email, v)
		validation.Email("email", *r.Email, v)
	}
	return v
}

type UserRoleRequest struct {
	Role Role `json:"role"`
}

func (r UserRoleRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.OneOf("role", r.Role.Valid(), roleChoices, v)
	return v
}

type UserStatusRequest struct {
	Status UserStatus `json:"status"`
}

func (r UserStatusRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.OneOf("status", r.Status.Valid(), userStatusChoices, v)
	return v
}

type PasswordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (r PasswordChangeRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("old_password", r.OldPassword, v)
	if msg := PasswordPolicyViolation(r.NewPassword); msg != "" {
		v["new_password"] = msg
	}
	return v
}

// PasswordPolicyViolation returns an empty string when password is acceptable.
func PasswordPolicyViolation(password string) string {
	if len(password) < 8 {
		return "must contain at least 8 characters"
	}
	if !strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return "must contain an uppercase letter"
	}
	if !strings.ContainsAny(password, "abcdefghijklmnopqrstuvwxyz") {
		return "must contain a lowercase letter"
	}
	if !strings.ContainsAny(password, "0123456789") {
		return "must contain a digit"
	}
	if !strings.ContainsAny(password, "!@#$%^&*") {
		return "must contain one of !@#$%^&*"
	}
	return ""
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r CategoryCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Length("name", r.Name, 2, 100, v)
	validation.MaxLength("description", r.Description, 500, v)
	return v
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r CategoryUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Name == nil && r.Description == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Name != nil {
		validation.Length("name", *r.Name, 2, 100, v)
	}
	if r.Description != nil {
		validation.MaxLength("description", *r.Description, 500, v)
	}
	return v
}

type ProductCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Photo       string          `json:"photo,omitempty"`
	Stock       int             `json:"stock"`
	StockMin    *int            `json:"stock_min,omitempty"`
	CategoryID  string          `json:"category_id"`
	Active      *bool           `json:"active,omitempty"`
}

func (r ProductCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Length("name", r.Name, 2, 150, v)
	validation.MaxLength("description", r.Description, 500, v)
	validation.PositiveDecimal("unit_price", r.UnitPrice, v)
	validation.NonNegativeInt("stock", r.Stock, v)
	if r.StockMin != nil {
		validation.NonNegativeInt("stock_min", *r.StockMin, v)
	}
	validation.Required("category_id", r.CategoryID, v)
	return v
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Photo       *string          `json:"photo,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	StockMin    *int             `json:"stock_min,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

func (r ProductUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Name == nil && r.Description == nil && r.UnitPrice == nil && r.Photo == nil &&
		r.Stock == nil && r.StockMin == nil && r.CategoryID == nil && r.Active == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Name != nil {
		validation.Length("name", *r.Name, 2, 150, v)
	}
	if r.Description != nil {
		validation.MaxLength("description", *r.Description, 500, v)
	}
	if r.UnitPrice != nil {
		validation.PositiveDecimal("unit_price", *r.UnitPrice, v)
	}
	if r.Stock != nil {
		validation.NonNegativeInt("stock", *r.Stock, v)
	}
	if r.StockMin != nil {
		validation.NonNegativeInt("stock_min", *r.StockMin, v)
	}
	if r.CategoryID != nil {
		validation.Required("category_id", *r.CategoryID, v)
	}
	return v
}

type StockUpdateRequest struct {
	Stock int `json:"stock"`
}

func (r StockUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.NonNegativeInt("stock", r.Stock, v)
	return v
}

type ClientCreateRequest struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name,omitempty"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

func (r ClientCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("last_name", r.LastName, v)
	validation.Required("phone", r.Phone, v)
	validation.Phone("phone", r.Phone, v)
	validation.Email("email", r.Email, v)
	return v
}

type ClientUpdateRequest struct {
	LastName  *string `json:"last_name,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	Address   *string `json:"address,omitempty"`
}

func (r ClientUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.LastName == nil && r.FirstName == nil && r.Phone == nil && r.Email == nil && r.Address == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.LastName != nil {
		validation.Required("last_name", *r.LastName, v)
	}
	if r.Phone != nil {
		validation.Phone("phone", *r.Phone, v)
	}
	if r.Email != nil {
		validation.Email("email", *r.Email, v)
	}
	return v
}

type PromotionCreateRequest struct {
	Name        string          `json:"name"`
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description,omitempty"`
	Type        DiscountType    `json:"type"`
	Value       decimal.Decimal `json:"value"`
	StartsAt    time.Time       `json:"starts_at"`
	EndsAt      time.Time       `json:"ends_at"`
	ProductID   *string         `json:"product_id,omitempty"`
	CategoryID  *string         `json:"category_id,omitempty"`
}

func (r PromotionCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Length("name", r.Name, 1, 150, v)
	if r.Code != "" {
		validation.Length("code", r.Code, 3, 20, v)
	}
	validation.OneOf("type", r.Type.Valid(), discountTypeChoices, v)
	validation.PositiveDecimal("value", r.Value, v)
	validation.Check("starts_at", !r.StartsAt.IsZero(), "required", v)
	validation.Check("ends_at", !r.EndsAt.IsZero(), "required", v)
	return v
}

type PromotionUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Type        *DiscountType    `json:"type,omitempty"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	StartsAt    *time.Time       `json:"starts_at,omitempty"`
	EndsAt      *time.Time       `json:"ends_at,omitempty"`
	ProductID   *string          `json:"product_id,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
}

func (r PromotionUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Name == nil && r.Description == nil && r.Type == nil && r.Value == nil &&
		r.StartsAt == nil && r.EndsAt == nil && r.ProductID == nil && r.CategoryID == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Name != nil {
		validation.Length("name", *r.Name, 1, 150, v)
	}
	if r.Type != nil {
		validation.OneOf("type", r.Type.Valid(), discountTypeChoices, v)
	}
	if r.Value != nil {
		validation.PositiveDecimal("value", *r.Value, v)
	}
	return v
}

type PromotionApplyRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

func (r PromotionApplyRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Length("code", r.Code, 3, 20, v)
	validation.PositiveDecimal("amount", r.Amount, v)
	return v
}

type SaleCreateRequest struct {
	Date          time.Time       `json:"date"`
	CashierID     string          `json:"cashier_id,omitempty"`
	ClientID      *string         `json:"client_id,omitempty"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	Status        SaleStatus      `json:"status,omitempty"`
	Comment       string          `json:"comment,omitempty"`
}

func (r SaleCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.NonNegativeDecimal("gross_total", r.GrossTotal, v)
	validation.NonNegativeDecimal("discount_total", r.DiscountTotal, v)
	if r.Status != "" {
		validation.OneOf("status", r.Status.Valid(), saleStatusChoices, v)
	}
	validation.MaxLength("comment", r.Comment, 500, v)
	return v
}

type SaleUpdateRequest struct {
	Date          *time.Time       `json:"date,omitempty"`
	ClientID      *string          `json:"client_id,omitempty"`
	GrossTotal    *decimal.Decimal `json:"gross_total,omitempty"`
	DiscountTotal *decimal.Decimal `json:"discount_total,omitempty"`
	Comment       *string          `json:"comment,omitempty"`
}

func (r SaleUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Date == nil && r.ClientID == nil && r.GrossTotal == nil && r.DiscountTotal == nil && r.Comment == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.GrossTotal != nil {
		validation.NonNegativeDecimal("gross_total", *r.GrossTotal, v)
	}
	if r.DiscountTotal != nil {
		validation.NonNegativeDecimal("discount_total", *r.DiscountTotal, v)
	}
	if r.Comment != nil {
		validation.MaxLength("comment", *r.Comment, 500, v)
	}
	return v
}

type SaleStatusRequest struct {
	Status SaleStatus `json:"status"`
}

func (r SaleStatusRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.OneOf("status", r.Status.Valid(), saleStatusChoices, v)
	return v
}

type SaleRefundRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment,omitempty"`
}

func (r SaleRefundRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.PositiveDecimal("amount", r.Amount, v)
	validation.MaxLength("comment", r.Comment, 500, v)
	return v
}

type SaleLineCreateRequest struct {
	SaleID        string           `json:"sale_id,omitempty"`
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountType  *DiscountType    `json:"discount_type,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
}

func (r SaleLineCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("product_id", r.ProductID, v)
	validation.PositiveInt("quantity", r.Quantity, v)
	if r.UnitPrice != nil {
		validation.PositiveDecimal("unit_price", *r.UnitPrice, v)
	}
	validateDiscount(r.DiscountType, r.DiscountValue, v)
	return v
}

type SaleLineUpdateRequest struct {
	Quantity      *int             `json:"quantity,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountType  *DiscountType    `json:"discount_type,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
}

func (r SaleLineUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Quantity == nil && r.UnitPrice == nil && r.DiscountType == nil && r.DiscountValue == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Quantity != nil {
		validation.PositiveInt("quantity", *r.Quantity, v)
	}
	if r.UnitPrice != nil {
		validation.PositiveDecimal("unit_price", *r.UnitPrice, v)
	}
	validateDiscount(r.DiscountType, r.DiscountValue, v)
	return v
}

type DiscountRequest struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (r DiscountRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.OneOf("type", r.Type.Valid(), discountTypeChoices, v)
	validation.NonNegativeDecimal("value", r.Value, v)
	if r.Type == DiscountPercentage && r.Value.GreaterThan(decimal.NewFromInt(100)) {
		v["value"] = "percentage must not exceed 100"
	}
	return v
}

func validateDiscount(kind *DiscountType, value *decimal.Decimal, v validation.Violations) {
	if kind != nil {
		validation.OneOf("discount_type", kind.Valid(), discountTypeChoices, v)
	}
	if value == nil {
		return
	}
	validation.NonNegativeDecimal("discount_value", *value, v)
	if kind != nil && *kind == DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		v["discount_value"] = "percentage must not exceed 100"
	}
}

type PaymentCreateRequest struct {
	SaleID    string          `json:"sale_id,omitempty"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Mode      PaymentMode     `json:"mode"`
	Reference string          `json:"reference,omitempty"`
	Comment   string          `json:"comment,omitempty"`
}

func (r PaymentCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.PositiveDecimal("amount", r.Amount, v)
	validation.OneOf("mode", r.Mode.Valid(), paymentModeChoices, v)
	validation.MaxLength("reference", r.Reference, 150, v)
	validation.MaxLength("comment", r.Comment, 500, v)
	return v
}

type PaymentUpdateRequest struct {
	Date      *time.Time       `json:"date,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Mode      *PaymentMode     `json:"mode,omitempty"`
	Reference *string          `json:"reference,omitempty"`
	Comment   *string          `json:"comment,omitempty"`
}

func (r PaymentUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.Date == nil && r.Amount == nil && r.Mode == nil && r.Reference == nil && r.Comment == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Amount != nil {
		validation.PositiveDecimal("amount", *r.Amount, v)
	}
	if r.Mode != nil {
		validation.OneOf("mode", r.Mode.Valid(), paymentModeChoices, v)
	}
	if r.Reference != nil {
		validation.MaxLength("reference", *r.Reference, 150, v)
	}
	if r.Comment != nil {
		validation.MaxLength("comment", *r.Comment, 500, v)
	}
	return v
}

type PaymentStatusRequest struct {
	Status PaymentStatus `json:"status"`
}

func (r PaymentStatusRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.OneOf("status", r.Status.Valid(), paymentStatusChoices, v)
	return v
}

type InvoiceCreateRequest struct {
	SaleID string `json:"sale_id"`
}

func (r InvoiceCreateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("sale_id", r.SaleID, v)
	return v
}

type InvoiceUpdateRequest struct {
	IssuedAt    *time.Time       `json:"issued_at,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	ArtifactRef *string          `json:"artifact_ref,omitempty"`
}

func (r InvoiceUpdateRequest) Validate() validation.Violations {
	v := validation.Violations{}
	if r.IssuedAt == nil && r.Amount == nil && r.ArtifactRef == nil {
		v[emptyUpdateField] = emptyUpdateMessage
	}
	if r.Amount != nil {
		validation.PositiveDecimal("amount", *r.Amount, v)
	}
	if r.ArtifactRef != nil {
		validation.MaxLength("artifact_ref", *r.ArtifactRef, 255, v)
	}
	return v
}

type AuditPurgeRequest struct {
	KeepDays int `json:"keep_days"`
}

func (r AuditPurgeRequest) Validate() validation.Violations {
	v := validation.Violations{}
	validation.PositiveInt("keep_days", r.KeepDays, v)
	return v
}
