package compose

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"newsbot/types"
)

var runDate = time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC)

func fixture(n int, summary string) ([]types.SelectedItem, []types.GeneratedContent) {
	items := make([]types.SelectedItem, n)
	contents := make([]types.GeneratedContent, n)
	for i := 0; i < n; i++ {
		items[i] = types.SelectedItem{
			Rank: i + 1,
			CandidateItem: types.CandidateItem{RawItem: types.RawItem{
				Title: fmt.Sprintf("Title %d", i+1),
				Link:  fmt.Sprintf("https://news.example.com/articles/2025/01/06/a-rather-long-slug-for-item-%d", i+1),
			}},
		}
		contents[i] = types.GeneratedContent{
			Headline: fmt.Sprintf("Headline number %d", i+1),
			Summary:  summary,
			Hashtags: []string{"#AI", "#Tech"},
		}
	}
	return items, contents
}

func assertBudget(t *testing.T, c Composer, threads []types.Thread) {
	t.Helper()
	for _, th := range threads {
		for j, p := range th.Posts {
			if n := c.WeightedLen(p.Text); n > c.MaxPostChars {
				t.Errorf("thread %d post %d is %d chars (budget %d):\n%s", th.Index, j, n, c.MaxPostChars, p.Text)
			}
			if p.ReplyTo != j-1 {
				t.Errorf("thread %d post %d replies to %d, want %d", th.Index, j, p.ReplyTo, j-1)
			}
		}
	}
}

func TestComposeSixItemsGivesSevenThreads(t *testing.T) {
	c := New(280, 23, "")
	items, contents := fixture(6, "A short summary.")

	threads := c.Compose(runDate, items, contents)

	if len(threads) != 7 {
		t.Fatalf("got %d threads, want 7", len(threads))
	}
	if threads[0].Kind != types.ThreadIndex || len(threads[0].Posts) != 1 {
		t.Fatalf("index thread = %+v", threads[0])
	}
	index := threads[0].Posts[0].Text
	if !strings.HasPrefix(index, "🚀 Top 6 Tech/AI News - 06-01-2025:\n\n1. Headline number 1\n") {
		t.Errorf("index text = %q", index)
	}
	if !strings.HasSuffix(index, "6. Headline number 6") {
		t.Errorf("index text = %q", index)
	}
	for i, th := range threads[1:] {
		if th.Index != i+1 || th.Kind != types.ThreadDetail {
			t.Errorf("thread %d = index %d kind %s", i+1, th.Index, th.Kind)
		}
	}
	assertBudget(t, c, threads)
}

func TestComposeDetailThreadLayout(t *testing.T) {
	c := New(280, 23, "")
	items, contents := fixture(1, "Short summary here.")

	threads := c.Compose(runDate, items, contents)
	detail := threads[1]

	want := "📰 1/1: Headline number 1\n\nShort summary here.\n\n🔗 " + items[0].Link + "\n\n#AI #Tech"
	if len(detail.Posts) != 1 || detail.Posts[0].Text != want {
		t.Errorf("detail posts = %q\nwant %q", detail.Posts, want)
	}
}

func TestComposeWeightsSchemelessLinkAsLink(t *testing.T) {
	c := New(280, 23, "")
	tests := []struct {
		name string
		link string
		want string
	}{
		{"no scheme", "example.com/no-scheme/" + strings.Repeat("z", 300), "https://example.com/no-scheme/"},
		{"protocol relative", "//example.com/" + strings.Repeat("z", 300), "https://example.com/"},
		{"upper case scheme", "HTTPS://example.com/" + strings.Repeat("z", 300), "HTTPS://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, contents := fixture(1, "A short summary.")
			items[0].Link = tt.link

			threads := c.Compose(runDate, items, contents)
			assertBudget(t, c, threads)

			first := threads[1].Posts[0].Text
			if !strings.HasPrefix(first, "📰 1/1: Headline number 1") {
				t.Errorf("headline shortened: %q", first)
			}
			if !strings.Contains(first, "🔗 "+tt.want) {
				t.Errorf("link not rendered as URL: %q", first)
			}
		})
	}
}

func TestComposeLongSummarySpillsIntoContinuation(t *testing.T) {
	c := New(280, 23, "")
	summary := strings.TrimSpace(strings.Repeat("Chipmakers report record demand for accelerators. ", 12))
	items, contents := fixture(3, summary)

	threads := c.Compose(runDate, items, contents)
	assertBudget(t, c, threads)

	detail := threads[1]
	if len(detail.Posts) < 2 {
		t.Fatalf("expected continuation posts, got %d", len(detail.Posts))
	}
	if !strings.Contains(detail.Posts[0].Text, "🔗 https://") {
		t.Errorf("link must be in the first post: %q", detail.Posts[0].Text)
	}

	// all summary words survive, in order
	var rebuilt []string
	for i, p := range detail.Posts {
		text := p.Text
		if i == 0 {
			text = strings.SplitN(text, "\n\n", 2)[1]
			text = text[:strings.Index(text, "\n\n🔗")]
		}
		text = strings.TrimSuffix(text, "\n\n#AI #Tech")
		rebuilt = append(rebuilt, text)
	}
	if got := strings.Join(rebuilt, " "); got != summary {
		t.Errorf("summary not preserved:\n got %q\nwant %q", got, summary)
	}

	for i, p := range detail.Posts {
		hasTags := strings.Contains(p.Text, "#AI #Tech")
		if last := i == len(detail.Posts)-1; hasTags != last {
			t.Errorf("post %d has hashtags = %v", i, hasTags)
		}
	}
}

func TestComposeTagsOnlyPostWhenLastPostIsFull(t *testing.T) {
	c := New(60, 23, "")
	items := []types.SelectedItem{{Rank: 1}}
	contents := []types.GeneratedContent{{
		Headline: "Headline",
		Summary:  strings.Repeat("x", 45) + " " + strings.Repeat("y", 57),
		Hashtags: []string{"#AI"},
	}}

	threads := c.Compose(runDate, items, contents)
	posts := threads[1].Posts
	if posts[len(posts)-1].Text != "#AI" {
		t.Errorf("last post = %q, want tags-only post", posts[len(posts)-1].Text)
	}
	assertBudget(t, c, threads)
}

func TestComposeIndexShortensHeadlinesEvenly(t *testing.T) {
	c := New(280, 23, "")
	items, contents := fixture(10, "s")
	for i := range contents {
		contents[i].Headline = fmt.Sprintf("Very long generated headline %d that goes on and on about the news", i+1)
	}

	threads := c.Compose(runDate, items, contents)
	index := threads[0].Posts[0].Text

	if n := c.WeightedLen(index); n > 280 {
		t.Fatalf("index is %d chars", n)
	}
	lines := strings.Split(strings.SplitN(index, "\n\n", 2)[1], "\n")
	if len(lines) != 10 {
		t.Fatalf("index has %d lines, want 10:\n%s", len(lines), index)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, fmt.Sprintf("%d. ", i+1)) {
			t.Errorf("line %d = %q", i, line)
		}
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	c := New(280, 23, "Daily Tech")
	summary := strings.Repeat("word ", 80)
	items, contents := fixture(10, summary)

	first := c.Compose(runDate, items, contents)
	for i := 0; i < 5; i++ {
		if again := c.Compose(runDate, items, contents); !reflect.DeepEqual(first, again) {
			t.Fatalf("compose run %d differs", i)
		}
	}
	if len(first) != 11 {
		t.Errorf("got %d threads, want 11", len(first))
	}
}

func TestWeightedLen(t *testing.T) {
	c := New(280, 23, "")
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"plain", 5},
		{"see https://example.com/a/very/long/path/that/exceeds/twenty-three", 4 + 23},
		{"a http://x.y b https://z.w", 2 + 23 + 3 + 23},
		{"🔗 emoji", 7},
	}
	for _, tt := range tests {
		if got := c.WeightedLen(tt.in); got != tt.want {
			t.Errorf("WeightedLen(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
