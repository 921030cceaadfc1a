package service

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/stats"

	"github.com/google/uuid"
)

// CategoryReport is the earnings summary of one category and its items
type CategoryReport struct {
	Category domain.ItemCategory
	OpenFor  domain.OpenFor
	Items    []domain.Item
}

// ReportService builds the admin earnings report
type ReportService interface {
	Categories(ctx context.Context) ([]CategoryReport, error)
	// Refresh recomputes the stats of every item in the category and then the
	// category itself.
	Refresh(ctx context.Context, categoryID uuid.UUID) (*CategoryReport, error)
}

type reportService struct {
	tx         repository.Transactor
	repos      repository.Repositories
	aggregator *stats.Aggregator
	now        func() time.Time
}

// NewReportService creates a new instance of ReportService
func NewReportService(tx repository.Transactor, repos repository.Repositories, aggregator *stats.Aggregator, now func() time.Time) ReportService {
	if now == nil {
		now = time.Now
	}
	if aggregator == nil {
		aggregator = stats.NewAggregator(now)
	}
	return &reportService{tx: tx, repos: repos, aggregator: aggregator, now: now}
}

func (s *reportService) Categories(ctx context.Context) ([]CategoryReport, error) {
	categories, err := s.repos.Categories.List(ctx, false)
	if err != nil {
		return nil, err
	}

	reports := make([]CategoryReport, 0, len(categories))
	for _, c := range categories {
		items, err := s.repos.Items.ListByCategory(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, CategoryReport{
			Category: c,
			OpenFor:  c.TimeSinceStarted(s.now()),
			Items:    items,
		})
	}
	return reports, nil
}

func (s *reportService) Refresh(ctx context.Context, categoryID uuid.UUID) (*CategoryReport, error) {
	err := s.tx.WithinSerializableTx(ctx, func(repos repository.Repositories) error {
		stores := stats.Stores{
			Items:        repos.Items,
			Categories:   repos.Categories,
			Reservations: repos.Reservations,
		}

		items, err := repos.Items.ListByCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := s.aggregator.RecordItem(ctx, stores, item.ID); err != nil {
				return err
			}
		}
		_, err = s.aggregator.RecordCategory(ctx, stores, categoryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	category, err := s.repos.Categories.GetByID(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.Items.ListByCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return &CategoryReport{
		Category: *category,
		OpenFor:  category.TimeSinceStarted(s.now()),
		Items:    items,
	}, nil
}
