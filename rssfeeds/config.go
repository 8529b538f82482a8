package rssfeeds

import (
	"sort"

	"newsbot/types"
)

// FeedPresets maps friendly keys to well-known feeds
var FeedPresets = map[string]types.FeedSource{
	"hn": {
		Name: "Hacker News",
		URL:  "https://hnrss.org/frontpage",
	},
	"tr": {
		Name: "MIT Technology Review",
		URL:  "https://www.technologyreview.com/feed/",
	},
	"verge": {
		Name: "The Verge",
		URL:  "https://www.theverge.com/rss/index.xml",
	},
	"tc": {
		Name: "TechCrunch",
		URL:  "https://techcrunch.com/feed/",
	},
	"ars": {
		Name: "Ars Technica",
		URL:  "https://feeds.arstechnica.com/arstechnica/index",
	},
	"wired-ai": {
		Name: "Wired AI",
		URL:  "https://www.wired.com/feed/tag/ai/latest/rss",
	},
}

// ResolveFeedURL resolves a preset key to its FeedSource. Anything else is
// treated as a direct URL and named after itself.
func ResolveFeedURL(input string) types.FeedSource {
	if src, ok := FeedPresets[input]; ok {
		return src
	}
	return types.FeedSource{Name: input, URL: input}
}

// PresetNames returns preset keys in alphabetical order
func PresetNames() []string {
	names := make([]string, 0, len(FeedPresets))
	for name := range FeedPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
