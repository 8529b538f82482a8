package deduplication

import (
	"log/slog"

	"newsbot/types"
)

// Result is the outcome of filtering one run's raw items
type Result struct {
	Candidates         []types.CandidateItem
	DroppedOutOfWindow int
	DroppedNoTimestamp int
	Duplicates         int
}

// Deduplicator applies the window filter and removes repeated stories
type Deduplicator struct {
	logger *slog.Logger
}

// NewDeduplicator creates a deduplicator. A nil logger uses slog.Default.
func NewDeduplicator(logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{logger: logger}
}

// Filter drops items outside the window or without a timestamp, then removes
// duplicates in a single pass. The first occurrence in input order wins.
func (d *Deduplicator) Filter(items []types.RawItem, w Window) Result {
	var res Result
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		if !item.HasTimestamp {
			res.DroppedNoTimestamp++
			continue
		}
		if !w.Contains(item.PublishedAt) {
			res.DroppedOutOfWindow++
			continue
		}
		key := Key(item)
		if seen[key] {
			res.Duplicates++
			d.logger.Debug("duplicate dropped", "item", item.Title, "source", item.SourceName, "key", key)
			continue
		}
		seen[key] = true
		res.Candidates = append(res.Candidates, types.CandidateItem{RawItem: item, DedupKey: key})
	}

	d.logger.Info("items filtered",
		"candidates", len(res.Candidates),
		"out_of_window", res.DroppedOutOfWindow,
		"no_timestamp", res.DroppedNoTimestamp,
		"duplicates", res.Duplicates)
	return res
}

// Dedup removes candidates whose DedupKey was already seen, keeping the
// first. Keys are recomputed so the result does not depend on stale values.
func Dedup(items []types.CandidateItem) []types.CandidateItem {
	seen := make(map[string]bool, len(items))
	out := make([]types.CandidateItem, 0, len(items))
	for _, item := range items {
		key := Key(item.RawItem)
		if seen[key] {
			continue
		}
		seen[key] = true
		item.DedupKey = key
		out = append(out, item)
	}
	return out
}
