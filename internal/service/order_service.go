package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrGuestHistory       = errors.New("order history is only kept for registered customers")
	ErrCheckoutNotPending = errors.New("order has no checkout in progress")
)

// OrderService exposes committed orders and the staff actions on them
type OrderService interface {
	// History returns the customer's committed orders, newest first, each
	// with its reservations loaded.
	History(ctx context.Context, customer *domain.Customer) ([]domain.Order, error)
	UpdateFulfillment(ctx context.Context, orderID uuid.UUID, update domain.FulfillmentUpdate) (*domain.Order, error)
	// PendingCheckouts lists carts frozen for longer than olderThan.
	PendingCheckouts(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
	// ReleaseCheckout thaws a frozen cart. It is a manual reconciliation
	// step: staff check the payment provider for a charge before calling it.
	ReleaseCheckout(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

type orderService struct {
	tx    repository.Transactor
	repos repository.Repositories
	now   func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(tx repository.Transactor, repos repository.Repositories, now func() time.Time) OrderService {
	if now == nil {
		now = time.Now
	}
	return &orderService{tx: tx, repos: repos, now: now}
}

func (s *orderService) History(ctx context.Context, customer *domain.Customer) ([]domain.Order, error) {
	if customer.IsGuest() {
		return nil, ErrGuestHistory
	}

	orders, err := s.repos.Orders.ListCommittedByCustomer(ctx, customer.ID)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Reservations, err = s.repos.Reservations.ListByOrder(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *orderService) UpdateFulfillment(ctx context.Context, orderID uuid.UUID, update domain.FulfillmentUpdate) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		o, err := repos.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.ApplyFulfillment(update, s.now()); err != nil {
			return err
		}
		if err := repos.Orders.UpdateFulfillment(ctx, o.ID, o.Fulfillment); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) PendingCheckouts(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	return s.repos.Orders.ListCheckoutPending(ctx, s.now().Add(-olderThan))
}

func (s *orderService) ReleaseCheckout(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		o, err := repos.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Committed {
			return repository.ErrOrderAlreadyClosed
		}
		if !o.CheckoutPending {
			return ErrCheckoutNotPending
		}
		if err := repos.Orders.SetCheckoutPending(ctx, o.ID, false); err != nil {
			return err
		}
		o.CheckoutPending = false
		o.CheckoutStartedAt = nil
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
