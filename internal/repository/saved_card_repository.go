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
	ErrSavedCardNotFound      = errors.New("saved card not found")
	ErrSavedCardAlreadyExists = errors.New("card is already saved")
)

// SavedCardRepository defines the interface for stored payment methods.
// Every lookup is scoped to the owning customer.
type SavedCardRepository interface {
	Create(ctx context.Context, card *domain.SavedCard) error
	Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedCard, error)
	GetBySource(ctx context.Context, customerID uuid.UUID, sourceRef string) (*domain.SavedCard, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedCard, error)
	Update(ctx context.Context, card *domain.SavedCard) error
	Delete(ctx context.Context, customerID, id uuid.UUID) error
}

type savedCardRepository struct {
	db Querier
}

// NewSavedCardRepository creates a new instance of SavedCardRepository
func NewSavedCardRepository(db Querier) SavedCardRepository {
	return &savedCardRepository{db: db}
}

const savedCardColumns = `
	id, customer_id, source_ref, line1, line2, city, state, zipcode, country,
	first_name, last_name, email, created_at, updated_at`

func scanSavedCard(row rowScanner) (*domain.SavedCard, error) {
	c := &domain.SavedCard{}
	err := row.Scan(
		&c.ID,
		&c.CustomerID,
		&c.SourceRef,
		&c.Line1,
		&c.Line2,
		&c.City,
		&c.State,
		&c.Zipcode,
		&c.Country,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func (r *savedCardRepository) Create(ctx context.Context, card *domain.SavedCard) error {
	query := `
		INSERT INTO saved_cards (` + savedCardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		card.ID,
		card.CustomerID,
		card.SourceRef,
		card.Line1,
		card.Line2,
		card.City,
		card.State,
		card.Zipcode,
		card.Country,
		card.FirstName,
		card.LastName,
		card.Email,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSavedCardAlreadyExists
		}
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

func (r *savedCardRepository) Get(ctx context.Context, customerID, id uuid.UUID) (*domain.SavedCard, error) {
	return r.get(ctx, `SELECT `+savedCardColumns+` FROM saved_cards WHERE customer_id = $1 AND id = $2`, customerID, id)
}

func (r *savedCardRepository) GetBySource(ctx context.Context, customerID uuid.UUID, sourceRef string) (*domain.SavedCard, error) {
	return r.get(ctx, `SELECT `+savedCardColumns+` FROM saved_cards WHERE customer_id = $1 AND source_ref = $2`, customerID, sourceRef)
}

func (r *savedCardRepository) get(ctx context.Context, query string, args ...any) (*domain.SavedCard, error) {
	card, err := scanSavedCard(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSavedCardNotFound
		}
		return nil, fmt.Errorf("failed to find saved card: %w", err)
	}
	return card, nil
}

func (r *savedCardRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SavedCard, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+savedCardColumns+`
		FROM saved_cards
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.SavedCard{}
	for rows.Next() {
		card, err := scanSavedCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved card: %w", err)
		}
		cards = append(cards, *card)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved cards: %w", err)
	}
	return cards, nil
}

func (r *savedCardRepository) Update(ctx context.Context, card *domain.SavedCard) error {
	query := `
		UPDATE saved_cards
		SET line1 = $3, line2 = $4, city = $5, state = $6, zipcode = $7, country = $8,
		    first_name = $9, last_name = $10, email = $11
		WHERE customer_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		card.CustomerID,
		card.ID,
		card.Line1,
		card.Line2,
		card.City,
		card.State,
		card.Zipcode,
		card.Country,
		card.FirstName,
		card.LastName,
		card.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to update saved card: %w", err)
	}
	return expectOneRow(result, ErrSavedCardNotFound)
}

func (r *savedCardRepository) Delete(ctx context.Context, customerID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM saved_cards WHERE customer_id = $1 AND id = $2`, customerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved card: %w", err)
	}
	return expectOneRow(result, ErrSavedCardNotFound)
}
