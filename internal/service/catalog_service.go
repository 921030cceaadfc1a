package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/facet"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// DefaultPageSize is the number of items on a listing page
const DefaultPageSize = 10

// ItemPage is one page of a category's facet-filtered item listing
type ItemPage struct {
	Category  *domain.ItemCategory
	OpenFor   domain.OpenFor
	Filters   []domain.FilterCategory
	Chosen    []uuid.UUID
	Items     []domain.Item
	Page      int
	PageCount int
	Total     int
}

// CatalogService serves the browsing side of the store
type CatalogService interface {
	Categories(ctx context.Context) ([]domain.ItemCategory, error)
	Filters(ctx context.Context, slug string) ([]domain.FilterCategory, error)
	// Items lists a category's active items narrowed by the chosen filter
	// options. Pages count from 1; a page past the end is empty.
	Items(ctx context.Context, slug string, chosen []uuid.UUID, page int) (*ItemPage, error)
	Search(ctx context.Context, query string) ([]domain.Item, error)
	// SetItemActive opens or closes an item for sale. Lines already in carts
	// are kept.
	SetItemActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Item, error)
	SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) (*domain.ItemCategory, error)
}

type catalogService struct {
	repos    repository.Repositories
	pageSize int
	now      func() time.Time
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(repos repository.Repositories, pageSize int, now func() time.Time) CatalogService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if now == nil {
		now = time.Now
	}
	return &catalogService{repos: repos, pageSize: pageSize, now: now}
}

func (s *catalogService) Categories(ctx context.Context) ([]domain.ItemCategory, error) {
	return s.repos.Categories.List(ctx, true)
}

func (s *catalogService) Filters(ctx context.Context, slug string) ([]domain.FilterCategory, error) {
	category, err := s.activeCategory(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.repos.Filters.ListByItemCategory(ctx, category.ID)
}

func (s *catalogService) Items(ctx context.Context, slug string, chosen []uuid.UUID, page int) (*ItemPage, error) {
	category, err := s.activeCategory(ctx, slug)
	if err != nil {
		return nil, err
	}

	groups, err := s.repos.Filters.ListByItemCategory(ctx, category.ID)
	if err != nil {
		return nil, err
	}

	items, err := s.repos.Items.ListActiveByCategory(ctx, category.ID)
	if err != nil {
		return nil, err
	}
	items = facet.Filter(groups, items, chosen)

	if page < 1 {
		page = 1
	}
	pageCount := (len(items) + s.pageSize - 1) / s.pageSize
	start := min((page-1)*s.pageSize, len(items))
	end := min(start+s.pageSize, len(items))

	return &ItemPage{
		Category:  category,
		OpenFor:   category.TimeSinceStarted(s.now()),
		Filters:   groups,
		Chosen:    chosen,
		Items:     items[start:end],
		Page:      page,
		PageCount: pageCount,
		Total:     len(items),
	}, nil
}

func (s *catalogService) Search(ctx context.Context, query string) ([]domain.Item, error) {
	return s.repos.Items.Search(ctx, query)
}

func (s *catalogService) activeCategory(ctx context.Context, slug string) (*domain.ItemCategory, error) {
	category, err := s.repos.Categories.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !category.Active {
		return nil, fmt.Errorf("category %q is closed: %w", slug, repository.ErrCategoryNotFound)
	}
	return category, nil
}

func (s *catalogService) SetItemActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Item, error) {
	if err := s.repos.Items.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.repos.Items.GetByID(ctx, id)
}

func (s *catalogService) SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) (*domain.ItemCategory, error) {
	if err := s.repos.Categories.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.repos.Categories.GetByID(ctx, id)
}
