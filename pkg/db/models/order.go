package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// Order represents a buyer's purchase. All money columns are integer minor units;
// total_cents must equal subtotal + tax + shipping - discount.
type Order struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference     string               `gorm:"column:reference;not null;unique"`
	BuyerID       uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null"`
	Currency      string               `gorm:"column:currency;not null;default:'COP'"`
	SubtotalCents int64                `gorm:"column:subtotal_cents;not null"`
	TaxCents      int64                `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents int64                `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents int64                `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int64                `gorm:"column:total_cents;not null"`
	Status        enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'pending'"`
	ConfirmedAt   *time.Time           `gorm:"column:confirmed_at"`
	CancelledAt   *time.Time           `gorm:"column:cancelled_at"`
	Items         []OrderLineItem      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transactions  []PaymentTransaction `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem is a single product line on an order.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64     `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
