// Package payment defines the payment gateway contract checkout relies on and
// an in-process sandbox gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDeclined is wrapped by every decline a gateway reports.
	ErrDeclined       = errors.New("payment declined")
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrSourceNotFound = errors.New("payment source not attached to customer")
)

// DeclineError carries the provider's reason for refusing a payment
type DeclineError struct {
	IntentID string
	Reason   string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment %s declined: %s", e.IntentID, e.Reason)
}

func (e *DeclineError) Unwrap() error {
	return ErrDeclined
}

// ShippingInfo is the shipping identity sent along with a confirmation
type ShippingInfo struct {
	Name    string
	Line1   string
	Line2   string
	City    string
	State   string
	Zipcode string
	Country string
}

// Gateway is the contract of an external payment provider
type Gateway interface {
	// CreateCustomer registers a payer and returns the provider's reference.
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	// CreatePaymentIntent opens a payment for amountCents and returns its id.
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, customerRef, description string) (string, error)
	// Confirm charges the intent. A refusal is returned as *DeclineError.
	Confirm(ctx context.Context, intentID, paymentMethodRef string, shipping ShippingInfo) error
	// AttachSource stores a tokenized payment source on the payer.
	AttachSource(ctx context.Context, customerRef, sourceRef string) error
	// DetachSource removes a stored source. An unknown source is
	// ErrSourceNotFound.
	DetachSource(ctx context.Context, customerRef, sourceRef string) error
}

type intent struct {
	amountCents int64
	currency    string
	customerRef string
	description string
	confirmed   bool
}

// Sandbox is an in-memory gateway. It declines the payment method refs it
// was configured with and accepts everything else.
type Sandbox struct {
	mu       sync.Mutex
	declined map[string]struct{}
	intents  map[string]*intent
	sources  map[string]map[string]struct{}
}

// NewSandbox creates a sandbox gateway that declines the given method refs.
func NewSandbox(declinedMethodRefs ...string) *Sandbox {
	declined := make(map[string]struct{}, len(declinedMethodRefs))
	for _, ref := range declinedMethodRefs {
		declined[ref] = struct{}{}
	}
	return &Sandbox{
		declined: declined,
		intents:  make(map[string]*intent),
		sources:  make(map[string]map[string]struct{}),
	}
}

func (s *Sandbox) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "cus_" + uuid.NewString(), nil
}

func (s *Sandbox) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, customerRef, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}

	id := "pi_" + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[id] = &intent{
		amountCents: amountCents,
		currency:    currency,
		customerRef: customerRef,
		description: description,
	}
	return id, nil
}

func (s *Sandbox) Confirm(ctx context.Context, intentID, paymentMethodRef string, shipping ShippingInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	if _, refused := s.declined[paymentMethodRef]; refused {
		return &DeclineError{IntentID: intentID, Reason: "card_declined"}
	}
	in.confirmed = true
	return nil
}

func (s *Sandbox) AttachSource(ctx context.Context, customerRef, sourceRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sources[customerRef] == nil {
		s.sources[customerRef] = make(map[string]struct{})
	}
	s.sources[customerRef][sourceRef] = struct{}{}
	return nil
}

func (s *Sandbox) DetachSource(ctx context.Context, customerRef, sourceRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[customerRef][sourceRef]; !ok {
		return ErrSourceNotFound
	}
	delete(s.sources[customerRef], sourceRef)
	return nil
}

// Attached reports whether the source is stored on the payer.
func (s *Sandbox) Attached(customerRef, sourceRef string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[customerRef][sourceRef]
	return ok
}

// Confirmed reports whether the intent was charged successfully.
func (s *Sandbox) Confirmed(intentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	return ok && in.confirmed
}

// AmountCents returns the amount the intent was opened for.
func (s *Sandbox) AmountCents(intentID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok {
		return 0, false
	}
	return in.amountCents, true
}
