package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultCustomerName is the display name of a customer nobody has named yet
const DefaultCustomerName = "Guest"

// DefaultPurchaseWait is the minimum interval between two checkout attempts
const DefaultPurchaseWait = 5 * time.Second

// Customer is the buyer behind a cart. It is owned either by a registered
// user or by an anonymous guest number, never both.
type Customer struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	UserID                *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	GuestNumber           *int64     `json:"guest_number,omitempty" db:"guest_number"`
	FullName              string     `json:"full_name" db:"full_name"`
	Email                 string     `json:"email" db:"email"`
	PaymentCustomerRef    string     `json:"-" db:"payment_customer_ref"`
	LastPurchaseAttemptAt time.Time  `json:"last_purchase_attempt_at" db:"last_purchase_attempt_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// NewGuestCustomer builds an anonymous customer with the given guest number.
func NewGuestCustomer(guestNumber int64, now time.Time) *Customer {
	return &Customer{
		ID:                    uuid.New(),
		GuestNumber:           &guestNumber,
		FullName:              DefaultCustomerName,
		LastPurchaseAttemptAt: now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// NewRegisteredCustomer builds the customer record owned by user.
func NewRegisteredCustomer(user *User, now time.Time) *Customer {
	c := &Customer{
		ID:                    uuid.New(),
		FullName:              DefaultCustomerName,
		LastPurchaseAttemptAt: now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	c.LinkUser(user)
	return c
}

// IsGuest reports whether the customer has no registered identity.
func (c *Customer) IsGuest() bool {
	return c.UserID == nil
}

// LinkUser binds the customer to a registered user and mirrors the user's
// name and email. The guest number is dropped.
func (c *Customer) LinkUser(user *User) {
	id := user.ID
	c.UserID = &id
	c.GuestNumber = nil
	c.FullName = fmt.Sprintf("%s %s", user.FirstName, user.LastName)
	c.Email = user.Email
}

// CapturePurchaserIdentity copies the payer's name and email onto a guest
// after a successful purchase. Registered customers keep their own identity.
// It reports whether anything changed.
func (c *Customer) CapturePurchaserIdentity(method PaymentMethod) bool {
	if !c.IsGuest() {
		return false
	}
	c.FullName = method.FullName()
	c.Email = method.Email
	return true
}

// Throttle is the per-customer cool-down between checkout attempts
type Throttle struct {
	Wait time.Duration
}

// NewThrottle returns a throttle with the given wait, or the default when the
// wait is not positive.
func NewThrottle(wait time.Duration) Throttle {
	if wait <= 0 {
		wait = DefaultPurchaseWait
	}
	return Throttle{Wait: wait}
}

// SecondsSinceLastAttempt returns the time since the customer's last
// checkout attempt, in seconds.
func (t Throttle) SecondsSinceLastAttempt(c *Customer, now time.Time) float64 {
	return now.Sub(c.LastPurchaseAttemptAt).Seconds()
}

// IsAllowed reports whether strictly more than the wait has elapsed.
func (t Throttle) IsAllowed(c *Customer, now time.Time) bool {
	return t.SecondsSinceLastAttempt(c, now) > t.Wait.Seconds()
}

// WaitRemaining returns how many seconds are left before the next attempt is
// allowed. It goes negative once the wait is over; callers truncate it.
func (t Throttle) WaitRemaining(c *Customer, now time.Time) float64 {
	return t.Wait.Seconds() - t.SecondsSinceLastAttempt(c, now)
}

// RecordAttempt stamps the attempt time.
func (t Throttle) RecordAttempt(c *Customer, now time.Time) {
	c.LastPurchaseAttemptAt = now
	c.UpdatedAt = now
}
