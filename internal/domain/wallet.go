package domain

import (
	"time"

	"github.com/google/uuid"
)

// SavedCard is a payment method a registered customer stored for reuse
type SavedCard struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CustomerID uuid.UUID `json:"customer_id" db:"customer_id"`
	PaymentMethod
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SavedAddress is a shipping address a registered customer stored for reuse
type SavedAddress struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CustomerID uuid.UUID `json:"customer_id" db:"customer_id"`
	ShippingAddress
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateBilling replaces the billing identity of the card. The provider
// source it points at stays the same.
func (c *SavedCard) UpdateBilling(m PaymentMethod, now time.Time) {
	m.SourceRef = c.SourceRef
	c.PaymentMethod = m
	c.UpdatedAt = now
}
