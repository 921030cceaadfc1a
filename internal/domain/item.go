package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EarningsStats holds the cached sales figures of an item or a category.
// The rate fields are linear projections of the lifetime daily average,
// see the stats package.
type EarningsStats struct {
	TotalSold       int             `json:"total_sold" db:"total_sold"`
	TotalEarnings   decimal.Decimal `json:"total_earnings" db:"total_earnings"`
	DailyEarnings   decimal.Decimal `json:"daily_earnings" db:"daily_earnings"`
	WeeklyEarnings  decimal.Decimal `json:"weekly_earnings" db:"weekly_earnings"`
	MonthlyEarnings decimal.Decimal `json:"monthly_earnings" db:"monthly_earnings"`
	YearlyEarnings  decimal.Decimal `json:"yearly_earnings" db:"yearly_earnings"`
}

// Add returns the field-by-field sum of s and other.
func (s EarningsStats) Add(other EarningsStats) EarningsStats {
	return EarningsStats{
		TotalSold:       s.TotalSold + other.TotalSold,
		TotalEarnings:   s.TotalEarnings.Add(other.TotalEarnings),
		DailyEarnings:   s.DailyEarnings.Add(other.DailyEarnings),
		WeeklyEarnings:  s.WeeklyEarnings.Add(other.WeeklyEarnings),
		MonthlyEarnings: s.MonthlyEarnings.Add(other.MonthlyEarnings),
		YearlyEarnings:  s.YearlyEarnings.Add(other.YearlyEarnings),
	}
}

// Item represents a sellable item and its shared stock pool
type Item struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	CategoryID    uuid.UUID        `json:"category_id" db:"category_id"`
	Name          string           `json:"name" db:"name"`
	Slug          string           `json:"slug" db:"slug"`
	Description   string           `json:"description" db:"description"`
	Price         decimal.Decimal  `json:"price" db:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty" db:"discount_price"`
	StockQuantity int              `json:"stock_quantity" db:"stock_quantity"`
	Active        bool             `json:"active" db:"active"`
	OptionIDs     []uuid.UUID      `json:"option_ids"`
	Stats         EarningsStats    `json:"stats"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// InStock reports whether any stock is left in the pool.
func (i *Item) InStock() bool {
	return i.StockQuantity > 0
}

// HasOption reports whether the item carries the given filter option.
func (i *Item) HasOption(id uuid.UUID) bool {
	for _, optionID := range i.OptionIDs {
		if optionID == id {
			return true
		}
	}
	return false
}

// Reserve takes up to amount units out of the stock pool and returns how many
// were actually moved. Running short is a normal outcome, not an error.
func (i *Item) Reserve(amount int) int {
	if amount <= 0 {
		return 0
	}
	moved := min(amount, i.StockQuantity)
	i.StockQuantity -= moved
	return moved
}

// Release returns amount units to the stock pool. The caller guarantees the
// units were previously reserved from this item.
func (i *Item) Release(amount int) {
	i.StockQuantity += amount
}

// ItemCategory groups items and owns the clock used for rate projections
type ItemCategory struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Slug      string        `json:"slug" db:"slug"`
	StartedAt time.Time     `json:"started_at" db:"started_at"`
	Active    bool          `json:"active" db:"active"`
	Stats     EarningsStats `json:"stats"`
}

// DaysSinceStarted returns the number of whole days the category has been open.
func (c *ItemCategory) DaysSinceStarted(now time.Time) int {
	elapsed := now.Sub(c.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// OpenFor breaks the time since the category started into whole years,
// months and days, for reporting.
type OpenFor struct {
	Days   int `json:"days"`
	Weeks  int `json:"weeks"`
	Months int `json:"months"`
	Years  int `json:"years"`
}

// TimeSinceStarted returns the category age in days, weeks, months (31 days)
// and years (365 days).
func (c *ItemCategory) TimeSinceStarted(now time.Time) OpenFor {
	days := c.DaysSinceStarted(now)
	return OpenFor{
		Days:   days,
		Weeks:  days / 7,
		Months: days / 31,
		Years:  days / 365,
	}
}

// FilterCategory is one facet group scoped to an item category
type FilterCategory struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	ItemCategoryID uuid.UUID      `json:"item_category_id" db:"item_category_id"`
	Name           string         `json:"name" db:"name"`
	Options        []FilterOption `json:"options"`
}

// FilterOption is a single facet value an item may carry
type FilterOption struct {
	ID               uuid.UUID `json:"id" db:"id"`
	FilterCategoryID uuid.UUID `json:"filter_category_id" db:"filter_category_id"`
	Name             string    `json:"name" db:"name"`
}
