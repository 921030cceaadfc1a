package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrReservationCommitted = errors.New("reservation is already committed")
	ErrInvalidQuantity      = errors.New("quantity must not be negative")
	ErrItemMismatch         = errors.New("item does not belong to reservation")

	// ErrIntegrityViolation means a mutation would have left a quantity or a
	// stock pool negative. It is an assertion failure and must abort the
	// enclosing transaction.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// Outcome is the result of a quantity adjustment on a reservation
type Outcome int

const (
	// Unavailable means growth was requested but the item has no stock.
	// Nothing changed.
	Unavailable Outcome = iota
	// PartiallyFulfilled means the remaining stock was reserved but it was
	// less than requested.
	PartiallyFulfilled
	// Fulfilled means the requested quantity is now reserved.
	Fulfilled
)

func (o Outcome) String() string {
	switch o {
	case Unavailable:
		return "unavailable"
	case PartiallyFulfilled:
		return "partially_fulfilled"
	case Fulfilled:
		return "fulfilled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ReservationState is the lifecycle state derived from the reservation flags
type ReservationState string

const (
	ReservationEmpty     ReservationState = "empty"
	ReservationReserved  ReservationState = "reserved"
	ReservationCommitted ReservationState = "committed"
)

// Reservation is a cart line: stock held for one customer's open order
type Reservation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CustomerID uuid.UUID `json:"customer_id" db:"customer_id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	ItemID     uuid.UUID `json:"item_id" db:"item_id"`
	Item       *Item     `json:"item,omitempty"`
	Quantity   int       `json:"quantity" db:"quantity"`
	InCart     bool      `json:"in_cart" db:"in_cart"`
	Committed  bool      `json:"committed" db:"committed"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// State derives the lifecycle state from the flags.
func (r *Reservation) State() ReservationState {
	switch {
	case r.Committed:
		return ReservationCommitted
	case r.InCart:
		return ReservationReserved
	default:
		return ReservationEmpty
	}
}

// Held reports whether the reservation still holds stock out of the pool
// without having been committed.
func (r *Reservation) Held() bool {
	return r.InCart && !r.Committed
}

// SetDesiredQuantity moves stock between item and reservation so that the
// reservation holds target units, or as many as the pool allows.
//
// The signed delta current-target is positive when shrinking and negative when
// growing. Shrinking never needs stock, so it succeeds even on an item with an
// empty pool.
func (r *Reservation) SetDesiredQuantity(item *Item, target int) (Outcome, error) {
	if r.Committed {
		return Unavailable, ErrReservationCommitted
	}
	if target < 0 {
		return Unavailable, ErrInvalidQuantity
	}
	if item == nil || item.ID != r.ItemID {
		return Unavailable, ErrItemMismatch
	}

	delta := r.Quantity - target

	var outcome Outcome
	switch {
	case delta < 0 && !item.InStock():
		return Unavailable, nil

	case delta < 0 && -delta > item.StockQuantity:
		r.Quantity += item.Reserve(item.StockQuantity)
		outcome = PartiallyFulfilled

	default:
		if delta < 0 {
			r.Quantity += item.Reserve(-delta)
		} else {
			item.Release(delta)
			r.Quantity -= delta
		}
		outcome = Fulfilled
	}

	r.InCart = true
	r.Item = item

	if err := r.checkIntegrity(item); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// RemoveFromCart returns the whole reserved quantity to the item and empties
// the reservation. Calling it again is a no-op.
func (r *Reservation) RemoveFromCart(item *Item) error {
	if r.Committed {
		return ErrReservationCommitted
	}
	if item == nil || item.ID != r.ItemID {
		return ErrItemMismatch
	}

	item.Release(r.Quantity)
	r.Quantity = 0
	r.InCart = false
	r.Item = item

	return r.checkIntegrity(item)
}

// Commit finalizes an in-cart reservation. Its quantity leaves the stock
// accounting for good.
func (r *Reservation) Commit() error {
	if r.Committed {
		return ErrReservationCommitted
	}
	if !r.InCart {
		return fmt.Errorf("%w: reservation %s is not in cart", ErrIntegrityViolation, r.ID)
	}
	r.Committed = true
	return nil
}

// PriceTotal returns quantity times the item's current price.
func (r *Reservation) PriceTotal() decimal.Decimal {
	if r.Item == nil {
		return decimal.Zero
	}
	return r.Item.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

func (r *Reservation) checkIntegrity(item *Item) error {
	if r.Quantity < 0 || item.StockQuantity < 0 {
		return fmt.Errorf("%w: reservation %s quantity=%d, item %s stock=%d",
			ErrIntegrityViolation, r.ID, r.Quantity, item.ID, item.StockQuantity)
	}
	return nil
}
