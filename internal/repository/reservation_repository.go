package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrReservationNotFound = errors.New("reservation not found")

// ReservationRepository defines the interface for cart line data access
type ReservationRepository interface {
	Create(ctx context.Context, reservation *domain.Reservation) error
	// GetForUpdate returns and locks the reservation of item on order, or
	// ErrReservationNotFound. Callers lock the item row first.
	GetForUpdate(ctx context.Context, orderID, itemID uuid.UUID) (*domain.Reservation, error)
	Update(ctx context.Context, reservation *domain.Reservation) error
	// ListByOrder returns the order's reservations in creation order with
	// their items loaded.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Reservation, error)
	ListCommittedByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Reservation, error)
}

type reservationRepository struct {
	db Querier
}

// NewReservationRepository creates a new instance of ReservationRepository
func NewReservationRepository(db Querier) ReservationRepository {
	return &reservationRepository{db: db}
}

const reservationColumns = `id, customer_id, order_id, item_id, quantity, in_cart, committed, created_at, updated_at`

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	r := &domain.Reservation{}
	err := row.Scan(
		&r.ID,
		&r.CustomerID,
		&r.OrderID,
		&r.ItemID,
		&r.Quantity,
		&r.InCart,
		&r.Committed,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (r *reservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		reservation.ID,
		reservation.CustomerID,
		reservation.OrderID,
		reservation.ItemID,
		reservation.Quantity,
		reservation.InCart,
		reservation.Committed,
		reservation.CreatedAt,
		reservation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) GetForUpdate(ctx context.Context, orderID, itemID uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE order_id = $1 AND item_id = $2 FOR UPDATE`

	res, err := scanReservation(r.db.QueryRowContext(ctx, query, orderID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, reservation *domain.Reservation) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET quantity = $2, in_cart = $3, committed = $4
		WHERE id = $1
	`, reservation.ID, reservation.Quantity, reservation.InCart, reservation.Committed)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	return expectOneRow(result, ErrReservationNotFound)
}

func (r *reservationRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.customer_id, r.order_id, r.item_id, r.quantity, r.in_cart, r.committed,
		       r.created_at, r.updated_at, `+prefixed("i", itemColumns)+`
		FROM reservations r
		JOIN items i ON i.id = r.item_id
		WHERE r.order_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	reservations := []*domain.Reservation{}
	for rows.Next() {
		res, err := scanReservationWithItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}

	return reservations, nil
}

func (r *reservationRepository) ListCommittedByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE item_id = $1 AND committed = TRUE
		ORDER BY created_at ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list committed reservations: %w", err)
	}
	defer rows.Close()

	reservations := []*domain.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}

	return reservations, nil
}

// scanReservationWithItem reads a reservation row followed by its item's
// columns.
func scanReservationWithItem(row rowScanner) (*domain.Reservation, error) {
	res := &domain.Reservation{Item: &domain.Item{}}
	var discount decimal.NullDecimal

	dest := []any{
		&res.ID,
		&res.CustomerID,
		&res.OrderID,
		&res.ItemID,
		&res.Quantity,
		&res.InCart,
		&res.Committed,
		&res.CreatedAt,
		&res.UpdatedAt,
	}
	if err := row.Scan(append(dest, itemFields(res.Item, &discount)...)...); err != nil {
		return nil, err
	}
	applyDiscount(res.Item, discount)
	return res, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
