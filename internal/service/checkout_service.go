package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/stats"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	registeredSuccessMessage = "Order went through! Order information is in Order History and has been sent to your email."
	guestSuccessMessage      = "Order went through! Order information has been sent to your email."
)

var (
	ErrThrottled       = errors.New("checkout attempted too soon")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrPaymentDeclined = errors.New("payment declined")
	ErrMissingDetails  = errors.New("shipping address and payment method are required")
	// ErrCommitAfterPayment means the charge went through but the order could
	// not be committed. The cart stays frozen until it is reconciled.
	ErrCommitAfterPayment = errors.New("payment captured but order commit failed")
)

// ThrottleError rejects a checkout attempt made inside the cool-down
type ThrottleError struct {
	WaitSeconds int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("Wait %d seconds before processing another order.", e.WaitSeconds)
}

func (e *ThrottleError) Unwrap() error {
	return ErrThrottled
}

// DefaultSettleTimeout bounds the work done after the payment call returns
const DefaultSettleTimeout = 30 * time.Second

// CheckoutRequest carries the shipping and billing details of a purchase.
// A saved card or address id takes the place of the inline details.
type CheckoutRequest struct {
	Address   domain.ShippingAddress
	Method    domain.PaymentMethod
	CardID    *uuid.UUID
	AddressID *uuid.UUID
}

// CheckoutResult describes a committed order
type CheckoutResult struct {
	OrderID       uuid.UUID
	ReferenceCode string
	Lines         []domain.DescriptionLine
	Description   string
	Total         decimal.Decimal
	Message       string
}

// CheckoutService turns a customer's cart into a committed order
type CheckoutService interface {
	Checkout(ctx context.Context, customer *domain.Customer, req CheckoutRequest) (*CheckoutResult, error)
}

// CheckoutDeps groups the collaborators of the checkout service
type CheckoutDeps struct {
	Tx         repository.Transactor
	Repos      repository.Repositories
	Gateway    payment.Gateway
	Dispatcher notify.Dispatcher
	Aggregator *stats.Aggregator
	Throttle   domain.Throttle
	Currency   string
	Logger     *zap.Logger
	Now        func() time.Time
	// SettleTimeout bounds the commit or the compensation that follows the
	// payment call. Both run detached from the caller's cancellation.
	SettleTimeout time.Duration
}

type checkoutService struct {
	CheckoutDeps
}

// NewCheckoutService creates a new instance of CheckoutService
func NewCheckoutService(deps CheckoutDeps) CheckoutService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = stats.NewAggregator(deps.Now)
	}
	if deps.Currency == "" {
		deps.Currency = "usd"
	}
	if deps.SettleTimeout <= 0 {
		deps.SettleTimeout = DefaultSettleTimeout
	}
	return &checkoutService{CheckoutDeps: deps}
}

func (s *checkoutService) Checkout(ctx context.Context, customer *domain.Customer, req CheckoutRequest) (*CheckoutResult, error) {
	now := s.Now()

	req, err := s.resolveDetails(ctx, customer.ID, req)
	if err != nil {
		return nil, err
	}

	current, err := s.recordAttempt(ctx, customer.ID, now)
	if err != nil {
		return nil, err
	}

	order, err := s.freezeCart(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	log := s.Logger.With(
		zap.String("order_id", order.ID.String()),
		zap.String("customer_id", customer.ID.String()),
	)

	billable := order.Billable()
	lines, description := domain.Describe(billable)
	total := domain.PriceTotal(billable)

	intentID, err := s.pay(ctx, current, req, total, description)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.SettleTimeout)
	defer cancel()

	if err != nil {
		log.Warn("Payment failed, releasing cart", zap.Error(err))
		if cerr := s.thawCart(settleCtx, order.ID); cerr != nil {
			log.Error("Failed to release cart after payment failure", zap.Error(cerr))
		}
		var decline *payment.DeclineError
		if errors.As(err, &decline) {
			return nil, fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
		}
		return nil, fmt.Errorf("failed to process payment: %w", err)
	}

	committed, err := s.commitOrder(settleCtx, customer.ID, order.ID, req, intentID, now)
	if err != nil {
		log.Error("Order commit failed after payment",
			zap.String("payment_reference", intentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrCommitAfterPayment, err)
	}

	log.Info("Order committed",
		zap.String("reference_code", committed.order.ReferenceCode),
		zap.String("total", total.StringFixed(2)),
	)

	event := notify.OrderEvent{
		OrderID:       committed.order.ID,
		CustomerID:    customer.ID,
		ReferenceCode: committed.order.ReferenceCode,
		FullName:      committed.customer.FullName,
		Email:         committed.order.Email,
		Description:   description,
		Total:         total,
		CommittedAt:   now,
	}
	if err := s.Dispatcher.OrderCommitted(settleCtx, event); err != nil {
		log.Error("Failed to dispatch order notification", zap.Error(err))
	}

	message := registeredSuccessMessage
	if committed.customer.IsGuest() {
		message = guestSuccessMessage
	}

	return &CheckoutResult{
		OrderID:       committed.order.ID,
		ReferenceCode: committed.order.ReferenceCode,
		Lines:         lines,
		Description:   description,
		Total:         total,
		Message:       message,
	}, nil
}

// resolveDetails swaps saved card and address ids for the stored details.
func (s *checkoutService) resolveDetails(ctx context.Context, customerID uuid.UUID, req CheckoutRequest) (CheckoutRequest, error) {
	if req.CardID != nil {
		card, err := s.Repos.Cards.Get(ctx, customerID, *req.CardID)
		if err != nil {
			return req, err
		}
		req.Method = card.PaymentMethod
	}
	if req.AddressID != nil {
		address, err := s.Repos.Addresses.Get(ctx, customerID, *req.AddressID)
		if err != nil {
			return req, err
		}
		req.Address = address.ShippingAddress
	}
	if req.Method.SourceRef == "" || req.Address.Line1 == "" {
		return req, ErrMissingDetails
	}
	return req, nil
}

// recordAttempt applies the throttle and stamps the attempt in its own
// transaction, so a failed payment still counts as an attempt.
func (s *checkoutService) recordAttempt(ctx context.Context, customerID uuid.UUID, now time.Time) (*domain.Customer, error) {
	var current *domain.Customer
	err := s.Tx.WithinTx(ctx, func(repos repository.Repositories) error {
		c, err := repos.Customers.GetForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		if !s.Throttle.IsAllowed(c, now) {
			return &ThrottleError{WaitSeconds: int(s.Throttle.WaitRemaining(c, now))}
		}

		s.Throttle.RecordAttempt(c, now)
		if err := repos.Customers.Update(ctx, c); err != nil {
			return err
		}
		current = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// freezeCart marks the open order as pending so the cart cannot change while
// the payment is in flight.
func (s *checkoutService) freezeCart(ctx context.Context, customerID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.Tx.WithinTx(ctx, func(repos repository.Repositories) error {
		o, err := repos.Orders.GetOpenForUpdate(ctx, customerID)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if o.CheckoutPending {
			return ErrCheckoutInProgress
		}

		o.Reservations, err = repos.Reservations.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(o.Billable()) == 0 {
			return ErrEmptyCart
		}

		if err := repos.Orders.SetCheckoutPending(ctx, o.ID, true); err != nil {
			return err
		}
		o.CheckoutPending = true
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *checkoutService) thawCart(ctx context.Context, orderID uuid.UUID) error {
	return s.Tx.WithinTx(ctx, func(repos repository.Repositories) error {
		return repos.Orders.SetCheckoutPending(ctx, orderID, false)
	})
}

// pay charges the order total in cents, truncating fractions of a cent.
func (s *checkoutService) pay(ctx context.Context, c *domain.Customer, req CheckoutRequest, total decimal.Decimal, description string) (string, error) {
	if c.PaymentCustomerRef == "" {
		ref, err := s.Gateway.CreateCustomer(ctx, req.Method.FullName(), req.Method.Email)
		if err != nil {
			return "", fmt.Errorf("failed to create payment customer: %w", err)
		}
		c.PaymentCustomerRef = ref
		if err := s.Repos.Customers.Update(ctx, c); err != nil {
			return "", fmt.Errorf("failed to store payment customer: %w", err)
		}
	}

	amountCents := total.Shift(2).IntPart()
	intentID, err := s.Gateway.CreatePaymentIntent(ctx, amountCents, s.Currency, c.PaymentCustomerRef, description)
	if err != nil {
		return "", err
	}

	shipping := payment.ShippingInfo{
		Name:    fmt.Sprintf("%s %s", req.Address.FirstName, req.Address.LastName),
		Line1:   req.Address.Line1,
		Line2:   req.Address.Line2,
		City:    req.Address.City,
		State:   req.Address.State,
		Zipcode: req.Address.Zipcode,
		Country: req.Address.Country,
	}
	if err := s.Gateway.Confirm(ctx, intentID, req.Method.SourceRef, shipping); err != nil {
		return "", err
	}
	return intentID, nil
}

type commitResult struct {
	order    *domain.Order
	customer *domain.Customer
}

// commitOrder finalizes every in-cart reservation, refreshes the earnings of
// the touched items and categories and stamps the order, all in one
// serializable transaction. A serialization failure re-runs the whole step.
func (s *checkoutService) commitOrder(
	ctx context.Context,
	customerID, orderID uuid.UUID,
	req CheckoutRequest,
	paymentRef string,
	now time.Time,
) (*commitResult, error) {
	var result *commitResult
	err := s.Tx.WithinSerializableTx(ctx, func(repos repository.Repositories) error {
		order, err := repos.Orders.GetOpenForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		if order.ID != orderID {
			return fmt.Errorf("%w: open order changed during checkout", domain.ErrIntegrityViolation)
		}

		order.Reservations, err = repos.Reservations.ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}

		var held []*domain.Reservation
		var categories []uuid.UUID
		seen := make(map[uuid.UUID]bool)
		for _, r := range order.InCart() {
			if r.Quantity == 0 {
				if err := r.RemoveFromCart(r.Item); err != nil {
					return err
				}
				if err := repos.Reservations.Update(ctx, r); err != nil {
					return err
				}
				continue
			}
			held = append(held, r)
			if err := r.Commit(); err != nil {
				return err
			}
			if err := repos.Reservations.Update(ctx, r); err != nil {
				return err
			}
			if !seen[r.Item.CategoryID] {
				seen[r.Item.CategoryID] = true
				categories = append(categories, r.Item.CategoryID)
			}
		}

		stores := stats.Stores{
			Items:        repos.Items,
			Categories:   repos.Categories,
			Reservations: repos.Reservations,
		}
		for _, r := range held {
			if _, err := s.Aggregator.RecordItem(ctx, stores, r.ItemID); err != nil {
				return err
			}
		}
		for _, id := range categories {
			if _, err := s.Aggregator.RecordCategory(ctx, stores, id); err != nil {
				return err
			}
		}

		customer, err := repos.Customers.GetForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		order.FullName = customer.FullName
		if customer.CapturePurchaserIdentity(req.Method) {
			customer.UpdatedAt = now
			if err := repos.Customers.Update(ctx, customer); err != nil {
				return err
			}
		}

		code, err := domain.NewReferenceCode()
		if err != nil {
			return err
		}
		if err := order.Stamp(req.Address, req.Method, paymentRef, code, now); err != nil {
			return err
		}
		if err := repos.Orders.Commit(ctx, order); err != nil {
			return err
		}

		result = &commitResult{order: order, customer: customer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
