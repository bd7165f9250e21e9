package sales

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineRequest is one requested sale line.
type LineRequest struct {
	ProductID    uuid.UUID       `json:"product_id" validate:"required"`
	Qty          int64           `json:"qty" validate:"required,gt=0"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

// CreateSaleRequest creates a draft sale.
type CreateSaleRequest struct {
	CustomerID    uuid.UUID       `json:"customer_id" validate:"required"`
	WarehouseID   uuid.UUID       `json:"warehouse_id" validate:"required"`
	PaymentType   PaymentType     `json:"payment_type" validate:"required,oneof=cash credit"`
	OrderDiscount decimal.Decimal `json:"order_discount"`
	Lines         []LineRequest   `json:"lines" validate:"required,min=1,dive"`
}

// UpdateSaleRequest replaces a draft sale's lines and discount.
type UpdateSaleRequest struct {
	OrderDiscount decimal.Decimal `json:"order_discount"`
	Lines         []LineRequest   `json:"lines" validate:"required,min=1,dive"`
}

// SettlementRequest settles part of the sale inside the confirm
// transaction.
type SettlementRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,oneof=cash card transfer"`
}

// ConfirmSaleRequest triggers the draft to confirmed transition.
type ConfirmSaleRequest struct {
	Settlement *SettlementRequest `json:"settlement,omitempty" validate:"omitempty"`
}

// VoidSaleRequest voids a sale with an audited reason.
type VoidSaleRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RecordPaymentRequest records a settlement against a sale.
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,oneof=cash card transfer"`
}

// ListSalesRequest filters and paginates the sale list.
type ListSalesRequest struct {
	State      State      `json:"state" validate:"omitempty,oneof=draft confirmed invoiced voided"`
	CustomerID *uuid.UUID `json:"customer_id"`
	Limit      int        `json:"limit" validate:"omitempty,min=1,max=200"`
	Offset     int        `json:"offset" validate:"omitempty,min=0"`
}
