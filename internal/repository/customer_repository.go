package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCustomerAlreadyExists = errors.New("customer already exists for this identity")
)

// CustomerRepository defines the interface for customer data access
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	// GetForUpdate locks the customer row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Customer, error)
	GetByGuestNumber(ctx context.Context, guestNumber int64) (*domain.Customer, error)
	// NextGuestNumber draws the next sequential guest number.
	NextGuestNumber(ctx context.Context) (int64, error)
	Update(ctx context.Context, customer *domain.Customer) error
}

type customerRepository struct {
	db Querier
}

// NewCustomerRepository creates a new instance of CustomerRepository
func NewCustomerRepository(db Querier) CustomerRepository {
	return &customerRepository{db: db}
}

const customerColumns = `
	id, user_id, guest_number, full_name, email, payment_customer_ref,
	last_purchase_attempt_at, created_at, updated_at`

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	c := &domain.Customer{}
	var (
		userID      uuid.NullUUID
		guestNumber sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&userID,
		&guestNumber,
		&c.FullName,
		&c.Email,
		&c.PaymentCustomerRef,
		&c.LastPurchaseAttemptAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		c.UserID = &userID.UUID
	}
	if guestNumber.Valid {
		c.GuestNumber = &guestNumber.Int64
	}
	return c, nil
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.ID,
		nullableUUID(customer.UserID),
		nullableInt64(customer.GuestNumber),
		customer.FullName,
		customer.Email,
		customer.PaymentCustomerRef,
		customer.LastPurchaseAttemptAt,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCustomerAlreadyExists
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return r.get(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

func (r *customerRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return r.get(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id)
}

func (r *customerRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Customer, error) {
	return r.get(ctx, `SELECT `+customerColumns+` FROM customers WHERE user_id = $1`, userID)
}

func (r *customerRepository) GetByGuestNumber(ctx context.Context, guestNumber int64) (*domain.Customer, error) {
	return r.get(ctx, `SELECT `+customerColumns+` FROM customers WHERE guest_number = $1`, guestNumber)
}

func (r *customerRepository) get(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return c, nil
}

func (r *customerRepository) NextGuestNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('guest_number_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to draw guest number: %w", err)
	}
	return n, nil
}

func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	query := `
		UPDATE customers
		SET user_id = $2, guest_number = $3, full_name = $4, email = $5,
		    payment_customer_ref = $6, last_purchase_attempt_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		customer.ID,
		nullableUUID(customer.UserID),
		nullableInt64(customer.GuestNumber),
		customer.FullName,
		customer.Email,
		customer.PaymentCustomerRef,
		customer.LastPurchaseAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectOneRow(result, ErrCustomerNotFound)
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullableInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
