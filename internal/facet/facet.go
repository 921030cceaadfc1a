// Package facet narrows item listings by filter options: a chosen option
// restricts items within its own group with OR, and groups combine with AND.
package facet

import (
	"github.com/google/uuid"

	"storefront/internal/domain"
)

// Set is the set of option ids belonging to one filter category
type Set map[uuid.UUID]struct{}

// Contains reports whether id is a member of the set.
func (s Set) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// OptionGroups returns one option set per filter category, in input order.
func OptionGroups(groups []domain.FilterCategory) []Set {
	sets := make([]Set, 0, len(groups))
	for _, group := range groups {
		set := make(Set, len(group.Options))
		for _, option := range group.Options {
			set[option.ID] = struct{}{}
		}
		sets = append(sets, set)
	}
	return sets
}

// Filter keeps the items that, for every group with at least one chosen
// option, carry one of the chosen options of that group. Chosen ids that
// belong to no group are ignored. The result preserves the order of items.
func Filter(groups []domain.FilterCategory, items []domain.Item, chosen []uuid.UUID) []domain.Item {
	if len(chosen) == 0 {
		return items
	}

	for _, set := range OptionGroups(groups) {
		selected := intersect(set, chosen)
		if len(selected) == 0 {
			continue
		}
		items = keepMatching(items, selected)
	}
	return items
}

func intersect(set Set, chosen []uuid.UUID) Set {
	selected := make(Set)
	for _, id := range chosen {
		if set.Contains(id) {
			selected[id] = struct{}{}
		}
	}
	return selected
}

func keepMatching(items []domain.Item, selected Set) []domain.Item {
	kept := make([]domain.Item, 0, len(items))
	for _, item := range items {
		for _, optionID := range item.OptionIDs {
			if selected.Contains(optionID) {
				kept = append(kept, item)
				break
			}
		}
	}
	return kept
}
