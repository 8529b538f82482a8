// Package ranking orders window candidates and selects the day's top items.
package ranking

import (
	"fmt"
	"math"
	"slices"

	"newsbot/types"
)

// MaxSelected is the most items a day can publish
const MaxSelected = 10

// Key compares two candidates cmp-style: negative when a ranks before b
type Key func(a, b types.CandidateItem) int

// ByRecency ranks newer items first
func ByRecency(a, b types.CandidateItem) int {
	return b.PublishedAt.Compare(a.PublishedAt)
}

// BySourceOrder ranks items from earlier configured sources first
func BySourceOrder(a, b types.CandidateItem) int {
	return a.SourceIndex - b.SourceIndex
}

// BySourcePriority ranks sources with a lower priority value first. Sources
// missing from the map rank after all listed ones.
func BySourcePriority(priority map[string]int) Key {
	rank := func(name string) int {
		if p, ok := priority[name]; ok {
			return p
		}
		return math.MaxInt
	}
	return func(a, b types.CandidateItem) int {
		pa, pb := rank(a.SourceName), rank(b.SourceName)
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	}
}

// KeysFromNames builds a key chain from configured names
func KeysFromNames(names []string, priority map[string]int) ([]Key, error) {
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		switch name {
		case "recency":
			keys = append(keys, ByRecency)
		case "priority":
			keys = append(keys, BySourcePriority(priority))
		case "source":
			keys = append(keys, BySourceOrder)
		default:
			return nil, fmt.Errorf("unknown ranking key %q", name)
		}
	}
	return keys, nil
}

// Ranker selects the top Limit candidates
type Ranker struct {
	Keys  []Key
	Limit int
}

// Select sorts a copy of items by the key chain and returns the first Limit,
// never more than MaxSelected, with ranks starting at 1. Ties that every key leaves equal keep input order.
func (r Ranker) Select(items []types.CandidateItem) []types.SelectedItem {
	sorted := slices.Clone(items)
	keys := r.Keys
	if len(keys) == 0 {
		keys = []Key{ByRecency}
	}
	slices.SortStableFunc(sorted, func(a, b types.CandidateItem) int {
		for _, key := range keys {
			if c := key(a, b); c != 0 {
				return c
			}
		}
		return 0
	})

	limit := r.Limit
	if limit <= 0 || limit > MaxSelected {
		limit = MaxSelected
	}
	limit = min(limit, len(sorted))
	selected := make([]types.SelectedItem, limit)
	for i := range limit {
		selected[i] = types.SelectedItem{CandidateItem: sorted[i], Rank: i + 1}
	}
	return selected
}
