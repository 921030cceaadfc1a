package repository

import (
	"context"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// FilterRepository defines the interface for facet taxonomy data access
type FilterRepository interface {
	CreateCategory(ctx context.Context, fc *domain.FilterCategory) error
	CreateOption(ctx context.Context, option *domain.FilterOption) error
	// ListByItemCategory returns the filter categories of an item category
	// with their options, both ordered by name.
	ListByItemCategory(ctx context.Context, itemCategoryID uuid.UUID) ([]domain.FilterCategory, error)
}

type filterRepository struct {
	db Querier
}

// NewFilterRepository creates a new instance of FilterRepository
func NewFilterRepository(db Querier) FilterRepository {
	return &filterRepository{db: db}
}

func (r *filterRepository) CreateCategory(ctx context.Context, fc *domain.FilterCategory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO filter_categories (id, item_category_id, name)
		VALUES ($1, $2, $3)
	`, fc.ID, fc.ItemCategoryID, fc.Name)
	if err != nil {
		return fmt.Errorf("failed to create filter category: %w", err)
	}
	return nil
}

func (r *filterRepository) CreateOption(ctx context.Context, option *domain.FilterOption) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO filter_options (id, filter_category_id, name)
		VALUES ($1, $2, $3)
	`, option.ID, option.FilterCategoryID, option.Name)
	if err != nil {
		return fmt.Errorf("failed to create filter option: %w", err)
	}
	return nil
}

func (r *filterRepository) ListByItemCategory(ctx context.Context, itemCategoryID uuid.UUID) ([]domain.FilterCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fc.id, fc.item_category_id, fc.name, fo.id, fo.name
		FROM filter_categories fc
		LEFT JOIN filter_options fo ON fo.filter_category_id = fc.id
		WHERE fc.item_category_id = $1
		ORDER BY fc.name ASC, fc.id ASC, fo.name ASC
	`, itemCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter categories: %w", err)
	}
	defer rows.Close()

	groups := []domain.FilterCategory{}
	for rows.Next() {
		var (
			fc         domain.FilterCategory
			optionID   uuid.NullUUID
			optionName *string
		)
		if err := rows.Scan(&fc.ID, &fc.ItemCategoryID, &fc.Name, &optionID, &optionName); err != nil {
			return nil, fmt.Errorf("failed to scan filter category: %w", err)
		}

		if len(groups) == 0 || groups[len(groups)-1].ID != fc.ID {
			fc.Options = []domain.FilterOption{}
			groups = append(groups, fc)
		}
		if optionID.Valid {
			last := &groups[len(groups)-1]
			last.Options = append(last.Options, domain.FilterOption{
				ID:               optionID.UUID,
				FilterCategoryID: fc.ID,
				Name:             *optionName,
			})
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filter categories: %w", err)
	}

	return groups, nil
}
