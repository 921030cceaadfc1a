package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOpenOrderConflict  = errors.New("customer already has an open order")
	ErrOrderAlreadyClosed = errors.New("order is already committed")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// GetForUpdate returns and locks the order with the given id.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// GetOpenForUpdate returns and locks the customer's open order, or
	// ErrOrderNotFound.
	GetOpenForUpdate(ctx context.Context, customerID uuid.UUID) (*domain.Order, error)
	GetOpen(ctx context.Context, customerID uuid.UUID) (*domain.Order, error)
	// SetCheckoutPending freezes or thaws an open order. Freezing records
	// when the checkout started.
	SetCheckoutPending(ctx context.Context, id uuid.UUID, pending bool) error
	// ListCheckoutPending returns open orders frozen since before the given
	// time, oldest first.
	ListCheckoutPending(ctx context.Context, startedBefore time.Time) ([]domain.Order, error)
	UpdateFulfillment(ctx context.Context, id uuid.UUID, fulfillment domain.Fulfillment) error
	// Commit persists a stamped order. It fails with ErrOrderAlreadyClosed if
	// the row was committed concurrently.
	Commit(ctx context.Context, order *domain.Order) error
	ListCommittedByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error)
}

type orderRepository struct {
	db Querier
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db Querier) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `
	id, customer_id, full_name, email, shipping_address, payment_method, payment_reference,
	reference_code, committed, checkout_pending, checkout_started_at,
	delivered, received, refund_requested, refund_granted, cancelled,
	committed_at, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var (
		address     []byte
		method      []byte
		startedAt   sql.NullTime
		committedAt sql.NullTime
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.FullName,
		&o.Email,
		&address,
		&method,
		&o.PaymentReference,
		&o.ReferenceCode,
		&o.Committed,
		&o.CheckoutPending,
		&startedAt,
		&o.Fulfillment.Delivered,
		&o.Fulfillment.Received,
		&o.Fulfillment.RefundRequested,
		&o.Fulfillment.RefundGranted,
		&o.Fulfillment.Cancelled,
		&committedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		o.ShippingAddress = &domain.ShippingAddress{}
		if err := json.Unmarshal(address, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	if len(method) > 0 {
		o.PaymentMethod = &domain.PaymentMethod{}
		if err := json.Unmarshal(method, o.PaymentMethod); err != nil {
			return nil, fmt.Errorf("failed to decode payment method: %w", err)
		}
	}
	if startedAt.Valid {
		o.CheckoutStartedAt = &startedAt.Time
	}
	if committedAt.Valid {
		o.CommittedAt = &committedAt.Time
	}
	return o, nil
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, customer_id, full_name, email, committed, checkout_pending, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		order.FullName,
		order.Email,
		order.Committed,
		order.CheckoutPending,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrOpenOrderConflict
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) GetOpen(ctx context.Context, customerID uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND committed = FALSE`, customerID)
}

func (r *orderRepository) GetOpenForUpdate(ctx context.Context, customerID uuid.UUID) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND committed = FALSE FOR UPDATE`, customerID)
}

func (r *orderRepository) get(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return o, nil
}

func (r *orderRepository) SetCheckoutPending(ctx context.Context, id uuid.UUID, pending bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET checkout_pending = $2,
		    checkout_started_at = CASE WHEN $2 THEN NOW() ELSE NULL END
		WHERE id = $1 AND committed = FALSE
	`, id, pending)
	if err != nil {
		return fmt.Errorf("failed to update checkout state: %w", err)
	}
	return expectOneRow(result, ErrOrderNotFound)
}

func (r *orderRepository) ListCheckoutPending(ctx context.Context, startedBefore time.Time) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE checkout_pending = TRUE AND committed = FALSE AND checkout_started_at < $1
		ORDER BY checkout_started_at ASC
	`, startedBefore)
}

func (r *orderRepository) UpdateFulfillment(ctx context.Context, id uuid.UUID, f domain.Fulfillment) error {
	query := `
		UPDATE orders
		SET delivered = $2, received = $3, refund_requested = $4, refund_granted = $5, cancelled = $6
		WHERE id = $1 AND committed = TRUE
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		f.Delivered,
		f.Received,
		f.RefundRequested,
		f.RefundGranted,
		f.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to update order fulfillment: %w", err)
	}
	return expectOneRow(result, ErrOrderNotFound)
}

func (r *orderRepository) Commit(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	method, err := json.Marshal(order.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to encode payment method: %w", err)
	}

	query := `
		UPDATE orders
		SET full_name = $2, email = $3, shipping_address = $4, payment_method = $5,
		    payment_reference = $6, reference_code = $7, committed = TRUE,
		    checkout_pending = FALSE, checkout_started_at = NULL, committed_at = $8
		WHERE id = $1 AND committed = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.FullName,
		order.Email,
		string(address),
		string(method),
		order.PaymentReference,
		order.ReferenceCode,
		order.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return expectOneRow(result, ErrOrderAlreadyClosed)
}

func (r *orderRepository) ListCommittedByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1 AND committed = TRUE
		ORDER BY committed_at DESC
	`, customerID)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
