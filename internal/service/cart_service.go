package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCheckoutInProgress = errors.New("checkout is in progress for this cart")
	ErrItemInactive       = errors.New("item is not for sale")
	// ErrQuantityBelowOne rejects a zero quantity. Removing a line is its own
	// operation.
	ErrQuantityBelowOne = errors.New("quantity must be at least 1")
)

// CartAction names the cart operation that produced a CartResult
type CartAction string

const (
	CartAdd    CartAction = "add"
	CartUpdate CartAction = "update"
	CartRemove CartAction = "remove"
)

// CartResult reports what a cart operation did. Outcome is nil when the
// operation was refused before any quantity was touched.
type CartResult struct {
	Action   CartAction
	ItemID   uuid.UUID
	Outcome  *domain.Outcome
	Quantity int
	Success  bool
	Message  string
}

// Cart is the in-cart view of a customer's open order
type Cart struct {
	OrderID         uuid.UUID
	Reservations    []*domain.Reservation
	Lines           []domain.DescriptionLine
	Description     string
	Total           decimal.Decimal
	CheckoutPending bool
}

// CartService adds, updates and removes cart lines
type CartService interface {
	Summary(ctx context.Context, customer *domain.Customer) (*Cart, error)
	Add(ctx context.Context, customer *domain.Customer, itemID uuid.UUID, quantity int) (*CartResult, error)
	Update(ctx context.Context, customer *domain.Customer, itemID uuid.UUID, quantity int) (*CartResult, error)
	Remove(ctx context.Context, customer *domain.Customer, itemID uuid.UUID) (*CartResult, error)
}

type cartService struct {
	tx    repository.Transactor
	repos repository.Repositories
	now   func() time.Time
}

// NewCartService creates a new instance of CartService
func NewCartService(tx repository.Transactor, repos repository.Repositories, now func() time.Time) CartService {
	if now == nil {
		now = time.Now
	}
	return &cartService{tx: tx, repos: repos, now: now}
}

func (s *cartService) Summary(ctx context.Context, customer *domain.Customer) (*Cart, error) {
	order, err := s.repos.Orders.GetOpen(ctx, customer.ID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return &Cart{Reservations: []*domain.Reservation{}, Lines: []domain.DescriptionLine{}, Total: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}

	reservations, err := s.repos.Reservations.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Reservations = reservations

	return newCart(order), nil
}

func newCart(order *domain.Order) *Cart {
	held := order.InCart()
	lines, description := domain.Describe(held)
	return &Cart{
		OrderID:         order.ID,
		Reservations:    held,
		Lines:           lines,
		Description:     description,
		Total:           domain.PriceTotal(held),
		CheckoutPending: order.CheckoutPending,
	}
}

func (s *cartService) Add(ctx context.Context, customer *domain.Customer, itemID uuid.UUID, quantity int) (*CartResult, error) {
	if quantity < 1 {
		return nil, ErrQuantityBelowOne
	}
	return s.mutate(ctx, customer, itemID, CartAdd, func(line *cartLine) (*CartResult, error) {
		name := line.item.Name
		if line.reservation.InCart {
			return refused(CartAdd, line, fmt.Sprintf("%s is already in your cart.", name)), nil
		}
		return line.setQuantity(CartAdd, quantity, map[domain.Outcome]string{
			domain.Unavailable:        fmt.Sprintf("No %s in stock.", name),
			domain.PartiallyFulfilled: fmt.Sprintf("Not enough %s in stock. However we added the amount we have to your cart.", name),
			domain.Fulfilled:          fmt.Sprintf("%s was added to your cart.", name),
		})
	})
}

func (s *cartService) Update(ctx context.Context, customer *domain.Customer, itemID uuid.UUID, quantity int) (*CartResult, error) {
	if quantity < 1 {
		return nil, ErrQuantityBelowOne
	}
	return s.mutate(ctx, customer, itemID, CartUpdate, func(line *cartLine) (*CartResult, error) {
		name := line.item.Name
		if !line.reservation.InCart {
			return refused(CartUpdate, line, fmt.Sprintf("%s is not in your cart.", name)), nil
		}
		return line.setQuantity(CartUpdate, quantity, map[domain.Outcome]string{
			domain.Unavailable:        fmt.Sprintf("No %s in stock.", name),
			domain.PartiallyFulfilled: fmt.Sprintf("Not enough %s in stock. However we updated your cart with the amount we have.", name),
			domain.Fulfilled:          "Your cart has been updated.",
		})
	})
}

func (s *cartService) Remove(ctx context.Context, customer *domain.Customer, itemID uuid.UUID) (*CartResult, error) {
	return s.mutate(ctx, customer, itemID, CartRemove, func(line *cartLine) (*CartResult, error) {
		name := line.item.Name
		if !line.reservation.InCart {
			return refused(CartRemove, line, fmt.Sprintf("%s is not in your cart.", name)), nil
		}
		if err := line.reservation.RemoveFromCart(line.item); err != nil {
			return nil, err
		}
		if err := line.save(); err != nil {
			return nil, err
		}
		return &CartResult{
			Action:  CartRemove,
			ItemID:  line.item.ID,
			Success: true,
			Message: fmt.Sprintf("%s has been removed from your cart.", name),
		}, nil
	})
}

// cartLine is one item and its reservation, both locked for the duration of
// a cart transaction.
type cartLine struct {
	ctx         context.Context
	repos       repository.Repositories
	item        *domain.Item
	reservation *domain.Reservation
	isNew       bool
	now         time.Time
}

func (l *cartLine) setQuantity(action CartAction, quantity int, messages map[domain.Outcome]string) (*CartResult, error) {
	outcome, err := l.reservation.SetDesiredQuantity(l.item, quantity)
	if err != nil {
		return nil, err
	}

	if outcome != domain.Unavailable {
		if err := l.save(); err != nil {
			return nil, err
		}
	}

	return &CartResult{
		Action:   action,
		ItemID:   l.item.ID,
		Outcome:  &outcome,
		Quantity: l.reservation.Quantity,
		Success:  outcome == domain.Fulfilled,
		Message:  messages[outcome],
	}, nil
}

// save writes the stock pool and the reservation back in that order.
func (l *cartLine) save() error {
	if err := l.repos.Items.UpdateStock(l.ctx, l.item.ID, l.item.StockQuantity); err != nil {
		return err
	}

	l.reservation.UpdatedAt = l.now
	if l.isNew {
		l.isNew = false
		return l.repos.Reservations.Create(l.ctx, l.reservation)
	}
	return l.repos.Reservations.Update(l.ctx, l.reservation)
}

func refused(action CartAction, line *cartLine, message string) *CartResult {
	return &CartResult{
		Action:   action,
		ItemID:   line.item.ID,
		Quantity: line.reservation.Quantity,
		Message:  message,
	}
}

// mutate locks the open order, then the item, then the reservation, and
// hands the line to fn inside one transaction.
func (s *cartService) mutate(
	ctx context.Context,
	customer *domain.Customer,
	itemID uuid.UUID,
	action CartAction,
	fn func(line *cartLine) (*CartResult, error),
) (*CartResult, error) {
	if err := s.ensureOpenOrder(ctx, customer); err != nil {
		return nil, err
	}

	var result *CartResult
	err := s.tx.WithinTx(ctx, func(repos repository.Repositories) error {
		order, err := repos.Orders.GetOpenForUpdate(ctx, customer.ID)
		if err != nil {
			return err
		}
		if order.CheckoutPending {
			return ErrCheckoutInProgress
		}

		item, err := repos.Items.GetForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active && action == CartAdd {
			return ErrItemInactive
		}

		now := s.now()
		line := &cartLine{ctx: ctx, repos: repos, item: item, now: now}
		line.reservation, err = repos.Reservations.GetForUpdate(ctx, order.ID, item.ID)
		switch {
		case errors.Is(err, repository.ErrReservationNotFound):
			line.isNew = true
			line.reservation = &domain.Reservation{
				ID:         uuid.New(),
				CustomerID: customer.ID,
				OrderID:    order.ID,
				ItemID:     item.ID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		case err != nil:
			return err
		}
		line.reservation.Item = item

		result, err = fn(line)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ensureOpenOrder creates the customer's open order if there is none. A
// concurrent request creating it first is not an error.
func (s *cartService) ensureOpenOrder(ctx context.Context, customer *domain.Customer) error {
	_, err := s.repos.Orders.GetOpen(ctx, customer.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return err
	}

	err = s.repos.Orders.Create(ctx, domain.NewOpenOrder(customer, s.now()))
	if err != nil && !errors.Is(err, repository.ErrOpenOrderConflict) {
		return err
	}
	return nil
}
