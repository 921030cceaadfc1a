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

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrItemAlreadyExists = errors.New("item with this slug already exists")
)

// ItemRepository defines the interface for item and stock data access
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	// GetForUpdate locks the item row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stockQuantity int) error
	UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error)
	// ListActiveByCategory returns active items ordered by name, with their
	// filter options loaded.
	ListActiveByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error)
	Search(ctx context.Context, query string) ([]domain.Item, error)
	AttachOption(ctx context.Context, itemID, optionID uuid.UUID) error
}

type itemRepository struct {
	db Querier
}

// NewItemRepository creates a new instance of ItemRepository
func NewItemRepository(db Querier) ItemRepository {
	return &itemRepository{db: db}
}

const itemColumns = `
	id, category_id, name, slug, description, price, discount_price, stock_quantity, active,
	total_sold, total_earnings, daily_earnings, weekly_earnings, monthly_earnings, yearly_earnings,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func itemFields(item *domain.Item, discount *decimal.NullDecimal) []any {
	return []any{
		&item.ID,
		&item.CategoryID,
		&item.Name,
		&item.Slug,
		&item.Description,
		&item.Price,
		discount,
		&item.StockQuantity,
		&item.Active,
		&item.Stats.TotalSold,
		&item.Stats.TotalEarnings,
		&item.Stats.DailyEarnings,
		&item.Stats.WeeklyEarnings,
		&item.Stats.MonthlyEarnings,
		&item.Stats.YearlyEarnings,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
}

func applyDiscount(item *domain.Item, discount decimal.NullDecimal) {
	if discount.Valid {
		d := discount.Decimal
		item.DiscountPrice = &d
	}
}

func scanItem(row rowScanner) (*domain.Item, error) {
	item := &domain.Item{}
	var discount decimal.NullDecimal
	if err := row.Scan(itemFields(item, &discount)...); err != nil {
		return nil, err
	}
	applyDiscount(item, discount)
	return item, nil
}

func (r *itemRepository) Create(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (id, category_id, name, slug, description, price, discount_price,
		                   stock_quantity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var discount decimal.NullDecimal
	if item.DiscountPrice != nil {
		discount = decimal.NewNullDecimal(*item.DiscountPrice)
	}

	_, err := r.db.ExecContext(ctx, query,
		item.ID,
		item.CategoryID,
		item.Name,
		item.Slug,
		item.Description,
		item.Price,
		discount,
		item.StockQuantity,
		item.Active,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrItemAlreadyExists
		}
		return fmt.Errorf("failed to create item: %w", err)
	}

	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return r.get(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

func (r *itemRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return r.get(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
}

func (r *itemRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to find item by ID: %w", err)
	}
	return item, nil
}

func (r *itemRepository) UpdateStock(ctx context.Context, id uuid.UUID, stockQuantity int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE items SET stock_quantity = $2 WHERE id = $1`, id, stockQuantity)
	if err != nil {
		return fmt.Errorf("failed to update item stock: %w", err)
	}
	return expectOneRow(result, ErrItemNotFound)
}

func (r *itemRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE items SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return expectOneRow(result, ErrItemNotFound)
}

func (r *itemRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error {
	query := `
		UPDATE items
		SET total_sold = $2, total_earnings = $3, daily_earnings = $4,
		    weekly_earnings = $5, monthly_earnings = $6, yearly_earnings = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		stats.TotalSold,
		stats.TotalEarnings,
		stats.DailyEarnings,
		stats.WeeklyEarnings,
		stats.MonthlyEarnings,
		stats.YearlyEarnings,
	)
	if err != nil {
		return fmt.Errorf("failed to update item stats: %w", err)
	}
	return expectOneRow(result, ErrItemNotFound)
}

func (r *itemRepository) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE category_id = $1 ORDER BY name ASC`
	return r.list(ctx, query, categoryID)
}

func (r *itemRepository) ListActiveByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE category_id = $1 AND active = TRUE ORDER BY name ASC`
	items, err := r.list(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	if err := r.loadOptions(ctx, categoryID, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Search matches active item names case-insensitively. An empty query
// matches nothing.
func (r *itemRepository) Search(ctx context.Context, query string) ([]domain.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Item{}, nil
	}

	searchQuery := `SELECT ` + itemColumns + ` FROM items WHERE active = TRUE AND name ILIKE $1 ORDER BY name ASC`
	return r.list(ctx, searchQuery, "%"+query+"%")
}

func (r *itemRepository) AttachOption(ctx context.Context, itemID, optionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_filter_options (item_id, filter_option_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, itemID, optionID)
	if err != nil {
		return fmt.Errorf("failed to attach filter option: %w", err)
	}
	return nil
}

func (r *itemRepository) list(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func (r *itemRepository) loadOptions(ctx context.Context, categoryID uuid.UUID, items []domain.Item) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ifo.item_id, ifo.filter_option_id
		FROM item_filter_options ifo
		JOIN items i ON i.id = ifo.item_id
		WHERE i.category_id = $1
	`, categoryID)
	if err != nil {
		return fmt.Errorf("failed to load item options: %w", err)
	}
	defer rows.Close()

	byItem := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var itemID, optionID uuid.UUID
		if err := rows.Scan(&itemID, &optionID); err != nil {
			return fmt.Errorf("failed to scan item option: %w", err)
		}
		byItem[itemID] = append(byItem[itemID], optionID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating item options: %w", err)
	}

	for i := range items {
		items[i].OptionIDs = byItem[items[i].ID]
	}
	return nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
