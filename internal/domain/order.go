package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferenceCodeLength is the length of an order reference code
const ReferenceCodeLength = 20

const referenceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var (
	ErrOrderCommitted    = errors.New("order is already committed")
	ErrOrderNotCommitted = errors.New("order is not committed")
	ErrEmptyFulfillment  = errors.New("no fulfillment flag to change")
)

// ShippingAddress is where a committed order is shipped
type ShippingAddress struct {
	Line1     string `json:"line1" validate:"required,max=30"`
	Line2     string `json:"line2,omitempty" validate:"max=30"`
	City      string `json:"city" validate:"required,max=30"`
	State     string `json:"state" validate:"required,max=30"`
	Zipcode   string `json:"zipcode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,len=2"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Email     string `json:"email" validate:"required,email"`
}

// String renders the address on one line, skipping an empty second line.
func (a ShippingAddress) String() string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City, a.State, a.Zipcode, a.Country)
	return strings.Join(parts, ", ")
}

// PaymentMethod is a stored card reference plus its billing identity
type PaymentMethod struct {
	SourceRef string `json:"source_ref" validate:"required"`
	Line1     string `json:"line1" validate:"required,max=30"`
	Line2     string `json:"line2,omitempty" validate:"max=30"`
	City      string `json:"city" validate:"required,max=30"`
	State     string `json:"state" validate:"required,max=30"`
	Zipcode   string `json:"zipcode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,len=2"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=30"`
	Email     string `json:"email" validate:"required,email"`
}

// FullName returns the billing first and last name.
func (m PaymentMethod) FullName() string {
	return fmt.Sprintf("%s %s", m.FirstName, m.LastName)
}

// Fulfillment tracks what happened to a committed order after payment. The
// flags are independent; staff set and clear each one on its own.
type Fulfillment struct {
	Delivered       bool `json:"delivered" db:"delivered"`
	Received        bool `json:"received" db:"received"`
	RefundRequested bool `json:"refund_requested" db:"refund_requested"`
	RefundGranted   bool `json:"refund_granted" db:"refund_granted"`
	Cancelled       bool `json:"cancelled" db:"cancelled"`
}

// FulfillmentUpdate changes the flags that are set and leaves nil ones alone
type FulfillmentUpdate struct {
	Delivered       *bool `json:"delivered,omitempty"`
	Received        *bool `json:"received,omitempty"`
	RefundRequested *bool `json:"refund_requested,omitempty"`
	RefundGranted   *bool `json:"refund_granted,omitempty"`
	Cancelled       *bool `json:"cancelled,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u FulfillmentUpdate) Empty() bool {
	return u.Delivered == nil && u.Received == nil && u.RefundRequested == nil &&
		u.RefundGranted == nil && u.Cancelled == nil
}

// Order is a customer's basket. It is open while Committed is false and
// becomes a historical record once committed.
type Order struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	CustomerID        uuid.UUID        `json:"customer_id" db:"customer_id"`
	FullName          string           `json:"full_name" db:"full_name"`
	Email             string           `json:"email" db:"email"`
	ShippingAddress   *ShippingAddress `json:"shipping_address,omitempty" db:"shipping_address"`
	PaymentMethod     *PaymentMethod   `json:"payment_method,omitempty" db:"payment_method"`
	PaymentReference  string           `json:"payment_reference,omitempty" db:"payment_reference"`
	ReferenceCode     string           `json:"reference_code,omitempty" db:"reference_code"`
	Committed         bool             `json:"committed" db:"committed"`
	CheckoutPending   bool             `json:"checkout_pending" db:"checkout_pending"`
	// CheckoutStartedAt is set while CheckoutPending is true.
	CheckoutStartedAt *time.Time       `json:"checkout_started_at,omitempty" db:"checkout_started_at"`
	Fulfillment       Fulfillment      `json:"fulfillment"`
	CommittedAt       *time.Time       `json:"committed_at,omitempty" db:"committed_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
	Reservations      []*Reservation   `json:"reservations,omitempty"`
}

// NewOpenOrder creates an empty open order for customer.
func NewOpenOrder(customer *Customer, now time.Time) *Order {
	return &Order{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		FullName:   customer.FullName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DescriptionLine is one structured entry of an order description
type DescriptionLine struct {
	Quantity int             `json:"quantity"`
	ItemName string          `json:"item_name"`
	Price    decimal.Decimal `json:"price"`
}

func (l DescriptionLine) String() string {
	return fmt.Sprintf("%d order(s) of %s: $%s", l.Quantity, l.ItemName, l.Price.StringFixed(2))
}

// PriceTotal sums the price totals of every member reservation. Callers
// wanting only the cart view filter with InCart first.
func (o *Order) PriceTotal() decimal.Decimal {
	return PriceTotal(o.Reservations)
}

// Description returns one line per reservation in creation order, both as
// structured lines and as a single joined string.
func (o *Order) Description() ([]DescriptionLine, string) {
	return Describe(o.Reservations)
}

// InCart returns the reservations that are in the cart and not yet committed.
func (o *Order) InCart() []*Reservation {
	held := make([]*Reservation, 0, len(o.Reservations))
	for _, r := range o.Reservations {
		if r.Held() {
			held = append(held, r)
		}
	}
	return held
}

// Billable returns the in-cart reservations that hold at least one unit.
// Only these are charged and committed at checkout.
func (o *Order) Billable() []*Reservation {
	held := o.InCart()
	billable := held[:0]
	for _, r := range held {
		if r.Quantity > 0 {
			billable = append(billable, r)
		}
	}
	return billable
}

// ApplyFulfillment sets the flags named by u on a committed order.
func (o *Order) ApplyFulfillment(u FulfillmentUpdate, now time.Time) error {
	if !o.Committed {
		return ErrOrderNotCommitted
	}
	if u.Empty() {
		return ErrEmptyFulfillment
	}
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&o.Fulfillment.Delivered, u.Delivered)
	set(&o.Fulfillment.Received, u.Received)
	set(&o.Fulfillment.RefundRequested, u.RefundRequested)
	set(&o.Fulfillment.RefundGranted, u.RefundGranted)
	set(&o.Fulfillment.Cancelled, u.Cancelled)
	o.UpdatedAt = now
	return nil
}

// Stamp turns the open order into a committed record.
func (o *Order) Stamp(address ShippingAddress, method PaymentMethod, paymentReference, referenceCode string, now time.Time) error {
	if o.Committed {
		return ErrOrderCommitted
	}
	o.ShippingAddress = &address
	o.PaymentMethod = &method
	o.Email = address.Email
	o.PaymentReference = paymentReference
	o.ReferenceCode = referenceCode
	o.CommittedAt = &now
	o.Committed = true
	o.CheckoutPending = false
	o.CheckoutStartedAt = nil
	o.UpdatedAt = now
	return nil
}

// PriceTotal sums the price totals of the given reservations.
func PriceTotal(reservations []*Reservation) decimal.Decimal {
	total := decimal.Zero
	for _, r := range reservations {
		total = total.Add(r.PriceTotal())
	}
	return total
}

// Describe builds the description of the given reservations.
func Describe(reservations []*Reservation) ([]DescriptionLine, string) {
	lines := make([]DescriptionLine, 0, len(reservations))
	parts := make([]string, 0, len(reservations))
	for _, r := range reservations {
		line := DescriptionLine{Quantity: r.Quantity}
		if r.Item != nil {
			line.ItemName = r.Item.Name
			line.Price = r.Item.Price
		}
		lines = append(lines, line)
		parts = append(parts, line.String())
	}
	return lines, strings.Join(parts, ", ")
}

// NewReferenceCode returns a random lowercase alphanumeric code of
// ReferenceCodeLength characters.
func NewReferenceCode() (string, error) {
	max := big.NewInt(int64(len(referenceAlphabet)))
	code := make([]byte, ReferenceCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference code: %w", err)
		}
		code[i] = referenceAlphabet[n.Int64()]
	}
	return string(code), nil
}
