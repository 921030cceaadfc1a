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
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this slug already exists")
)

// CategoryRepository defines the interface for item category data access
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.ItemCategory) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ItemCategory, error)
	GetBySlug(ctx context.Context, slug string) (*domain.ItemCategory, error)
	List(ctx context.Context, activeOnly bool) ([]domain.ItemCategory, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type categoryRepository struct {
	db Querier
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db Querier) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryColumns = `
	id, name, slug, started_at, active,
	total_sold, total_earnings, daily_earnings, weekly_earnings, monthly_earnings, yearly_earnings`

func scanCategory(row rowScanner) (*domain.ItemCategory, error) {
	c := &domain.ItemCategory{}
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.StartedAt,
		&c.Active,
		&c.Stats.TotalSold,
		&c.Stats.TotalEarnings,
		&c.Stats.DailyEarnings,
		&c.Stats.WeeklyEarnings,
		&c.Stats.MonthlyEarnings,
		&c.Stats.YearlyEarnings,
	)
	return c, err
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.ItemCategory) error {
	query := `
		INSERT INTO item_categories (id, name, slug, started_at, active)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		category.ID,
		category.Name,
		category.Slug,
		category.StartedAt,
		category.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

func (r *categoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ItemCategory, error) {
	return r.get(ctx, `SELECT `+categoryColumns+` FROM item_categories WHERE id = $1`, id)
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (*domain.ItemCategory, error) {
	return r.get(ctx, `SELECT `+categoryColumns+` FROM item_categories WHERE slug = $1`, slug)
}

func (r *categoryRepository) get(ctx context.Context, query string, arg any) (*domain.ItemCategory, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

func (r *categoryRepository) List(ctx context.Context, activeOnly bool) ([]domain.ItemCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM item_categories`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.ItemCategory{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error {
	query := `
		UPDATE item_categories
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
		return fmt.Errorf("failed to update category stats: %w", err)
	}
	return expectOneRow(result, ErrCategoryNotFound)
}

func (r *categoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE item_categories SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update category status: %w", err)
	}
	return expectOneRow(result, ErrCategoryNotFound)
}
