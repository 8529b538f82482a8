package types

import "time"

// FeedSource is a named syndication feed endpoint
type FeedSource struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// RawItem is one syndication entry as parsed from a feed
type RawItem struct {
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	PublishedAt  time.Time `json:"published_at"`
	HasTimestamp bool      `json:"has_timestamp"`
	SourceName   string    `json:"source_name"`
	SourceIndex  int       `json:"source_index"`
	RawSummary   string    `json:"raw_summary"`
}

// CandidateItem is a RawItem that passed the window filter and deduplication.
// Start <= PublishedAt < RunTime always holds for a value produced by the filter.
type CandidateItem struct {
	RawItem
	DedupKey string `json:"dedup_key"`
}

// SelectedItem is a ranked candidate chosen for publication. Rank starts at 1.
type SelectedItem struct {
	CandidateItem
	Rank int `json:"rank"`
}

// GeneratedContent is the headline, summary and tags produced for one SelectedItem
type GeneratedContent struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Hashtags []string `json:"hashtags,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
}
