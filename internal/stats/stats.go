// Package stats recomputes the earnings figures cached on items and
// categories. Rates are linear projections of the lifetime daily average since
// the category started, not trailing windows.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// Projection windows in days
const (
	Day   = 1
	Week  = 7
	Month = 31
	Year  = 365
)

// Rate projects total earnings accumulated over days onto a window of the
// given length, rounded to two places. Fewer than one day counts as one.
func Rate(total decimal.Decimal, days int, window int) decimal.Decimal {
	if days < 1 {
		days = 1
	}
	return total.
		Div(decimal.NewFromInt(int64(days))).
		Mul(decimal.NewFromInt(int64(window))).
		Round(2)
}

// ItemStats recomputes an item's figures from its committed reservations at
// the given unit price.
func ItemStats(committed []*domain.Reservation, price decimal.Decimal, days int) domain.EarningsStats {
	sold := 0
	for _, r := range committed {
		if r.Committed {
			sold += r.Quantity
		}
	}
	total := price.Mul(decimal.NewFromInt(int64(sold)))

	return domain.EarningsStats{
		TotalSold:       sold,
		TotalEarnings:   total,
		DailyEarnings:   Rate(total, days, Day),
		WeeklyEarnings:  Rate(total, days, Week),
		MonthlyEarnings: Rate(total, days, Month),
		YearlyEarnings:  Rate(total, days, Year),
	}
}

// CategoryStats sums the stored figures of items field by field. Item figures
// are taken as they are; stale items are not recomputed here.
func CategoryStats(items []domain.Item) domain.EarningsStats {
	sum := domain.EarningsStats{}
	for _, item := range items {
		sum = sum.Add(item.Stats)
	}
	return sum
}

// ItemStore is the item persistence the aggregator needs
type ItemStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Item, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error
}

// CategoryStore is the category persistence the aggregator needs
type CategoryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ItemCategory, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stats domain.EarningsStats) error
}

// ReservationStore lists committed reservations of an item
type ReservationStore interface {
	ListCommittedByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Reservation, error)
}

// Stores bundles the stores one recomputation runs against. Callers pass
// transaction-scoped stores so the write-back commits with the order.
type Stores struct {
	Items        ItemStore
	Categories   CategoryStore
	Reservations ReservationStore
}

// Aggregator loads, recomputes and writes back earnings figures
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an aggregator. A nil clock means time.Now.
func NewAggregator(now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{now: now}
}

// RecordItem recomputes and stores the figures of one item.
func (a *Aggregator) RecordItem(ctx context.Context, stores Stores, itemID uuid.UUID) (domain.EarningsStats, error) {
	item, err := stores.Items.GetByID(ctx, itemID)
	if err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	category, err := stores.Categories.GetByID(ctx, item.CategoryID)
	if err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to load category %s: %w", item.CategoryID, err)
	}

	committed, err := stores.Reservations.ListCommittedByItem(ctx, itemID)
	if err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to list committed reservations: %w", err)
	}

	stats := ItemStats(committed, item.Price, category.DaysSinceStarted(a.now()))
	if err := stores.Items.UpdateStats(ctx, itemID, stats); err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to store item stats: %w", err)
	}
	return stats, nil
}

// RecordCategory re-sums the stored figures of every item in the category
// and stores the result.
func (a *Aggregator) RecordCategory(ctx context.Context, stores Stores, categoryID uuid.UUID) (domain.EarningsStats, error) {
	items, err := stores.Items.ListByCategory(ctx, categoryID)
	if err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to list category items: %w", err)
	}

	stats := CategoryStats(items)
	if err := stores.Categories.UpdateStats(ctx, categoryID, stats); err != nil {
		return domain.EarningsStats{}, fmt.Errorf("failed to store category stats: %w", err)
	}
	return stats, nil
}
