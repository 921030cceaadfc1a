package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var ErrSavedAddressNotFound = errors.New("saved address not found")

// SavedAddressRepository defines the interface for stored shipping addresses
type SavedAddressRepository interface {
	Create(ctx context.Context, address *domain.SavedAddress) error
	Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedAddress, error)
	// Find returns the customer's saved copy of an identical address.
	Find(ctx context.Context, customerID uuid.UUID, address domain.ShippingAddress) (*domain.SavedAddress, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedAddress, error)
	Update(ctx context.Context, address *domain.SavedAddress) error
	Delete(ctx context.Context, customerID, id uuid.UUID) error
}

type savedAddressRepository struct {
	db Querier
}

// NewSavedAddressRepository creates a new instance of SavedAddressRepository
func NewSavedAddressRepository(db Querier) SavedAddressRepository {
	return &savedAddressRepository{db: db}
}

const savedAddressColumns = `
	id, customer_id, line1, line2, city, state, zipcode, country,
	first_name, last_name, email, created_at, updated_at`

func scanSavedAddress(row rowScanner) (*domain.SavedAddress, error) {
	a := &domain.SavedAddress{}
	err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.Line1,
		&a.Line2,
		&a.City,
		&a.State,
		&a.Zipcode,
		&a.Country,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (r *savedAddressRepository) Create(ctx context.Context, address *domain.SavedAddress) error {
	query := `
		INSERT INTO saved_addresses (` + savedAddressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		address.ID,
		address.CustomerID,
		address.Line1,
		address.Line2,
		address.City,
		address.State,
		address.Zipcode,
		address.Country,
		address.FirstName,
		address.LastName,
		address.Email,
		address.CreatedAt,
		address.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

func (r *savedAddressRepository) Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedAddress, error) {
	return r.get(ctx, `SELECT `+savedAddressColumns+` FROM saved_addresses WHERE customer_id = $1 AND id = $2`, customerID, id)
}

func (r *savedAddressRepository) Find(ctx context.Context, customerID uuid.UUID, a domain.ShippingAddress) (*domain.SavedAddress, error) {
	query := `
		SELECT ` + savedAddressColumns + `
		FROM saved_addresses
		WHERE customer_id = $1 AND line1 = $2 AND line2 = $3 AND city = $4 AND state = $5
		  AND zipcode = $6 AND country = $7 AND first_name = $8 AND last_name = $9 AND email = $10
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.get(ctx, query,
		customerID, a.Line1, a.Line2, a.City, a.State, a.Zipcode, a.Country, a.FirstName, a.LastName, a.Email)
}

func (r *savedAddressRepository) get(ctx context.Context, query string, args ...any) (*domain.SavedAddress, error) {
	address, err := scanSavedAddress(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSavedAddressNotFound
		}
		return nil, fmt.Errorf("failed to find saved address: %w", err)
	}
	return address, nil
}

func (r *savedAddressRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedAddress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+savedAddressColumns+`
		FROM saved_addresses
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved addresses: %w", err)
	}
	defer rows.Close()

	addresses := []domain.SavedAddress{}
	for rows.Next() {
		address, err := scanSavedAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved address: %w", err)
		}
		addresses = append(addresses, *address)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved addresses: %w", err)
	}
	return addresses, nil
}

func (r *savedAddressRepository) Update(ctx context.Context, address *domain.SavedAddress) error {
	query := `
		UPDATE saved_addresses
		SET line1 = $3, line2 = $4, city = $5, state = $6, zipcode = $7, country = $8,
		    first_name = $9, last_name = $10, email = $11
		WHERE customer_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		address.CustomerID,
		address.ID,
		address.Line1,
		address.Line2,
		address.City,
		address.State,
		address.Zipcode,
		address.Country,
		address.FirstName,
		address.LastName,
		address.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to update saved address: %w", err)
	}
	return expectOneRow(result, ErrSavedAddressNotFound)
}

func (r *savedAddressRepository) Delete(ctx context.Context, customerID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM saved_addresses WHERE customer_id = $1 AND id = $2`, customerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved address: %w", err)
	}
	return expectOneRow(result, ErrSavedAddressNotFound)
}
