// Package compose lays out a day's generated content as threads of posts.
// Composition is pure: the same inputs always give byte-identical threads.
package compose

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"newsbot/types"
)

const (
	indexEmoji  = "🚀"
	detailEmoji = "📰"
	linkEmoji   = "🔗"

	// minSummaryRoom is the least space worth starting the summary in the first post
	minSummaryRoom = 20
	dateLayout     = "02-01-2006"
)

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// Composer builds threads within a weighted per-post character budget
type Composer struct {
	MaxPostChars int
	// LinkWeight is what any URL counts for, whatever its real length
	LinkWeight int
	IndexTitle string
}

// New returns a Composer, filling in zero fields with platform defaults
func New(maxPostChars, linkWeight int, indexTitle string) Composer {
	c := Composer{MaxPostChars: maxPostChars, LinkWeight: linkWeight, IndexTitle: indexTitle}
	if c.MaxPostChars <= 0 {
		c.MaxPostChars = 280
	}
	if c.LinkWeight <= 0 {
		c.LinkWeight = 23
	}
	if c.IndexTitle == "" {
		c.IndexTitle = "Tech/AI News"
	}
	return c
}

// WeightedLen measures text the way the platform does: every URL counts as
// LinkWeight, everything else one per character
func (c Composer) WeightedLen(s string) int {
	n := 0
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(s, -1) {
		n += types.RuneLen(s[last:loc[0]]) + c.LinkWeight
		last = loc[1]
	}
	return n + types.RuneLen(s[last:])
}

func (c Composer) fits(s string) bool {
	return c.WeightedLen(s) <= c.MaxPostChars
}

// Compose returns the index thread followed by one detail thread per item,
// in rank order. items and contents are paired by position.
func (c Composer) Compose(date time.Time, items []types.SelectedItem, contents []types.GeneratedContent) []types.Thread {
	k := min(len(items), len(contents))
	threads := make([]types.Thread, 0, k+1)

	headlines := make([]string, k)
	for i := 0; i < k; i++ {
		headlines[i] = contents[i].Headline
	}
	threads = append(threads, types.Thread{
		Index: 0,
		Kind:  types.ThreadIndex,
		Posts: chain([]string{c.indexText(date, headlines)}),
	})

	for i := 0; i < k; i++ {
		threads = append(threads, types.Thread{
			Index:    i + 1,
			Kind:     types.ThreadDetail,
			Posts:    chain(c.detailTexts(i+1, k, absoluteLink(items[i].Link), contents[i])),
			Fallback: contents[i].Fallback,
		})
	}
	return threads
}

// absoluteLink gives scheme-less feed links an https scheme, so they render
// and are weighted as links
func absoluteLink(link string) string {
	link = strings.Join(strings.Fields(link), "%20")
	lower := strings.ToLower(link)
	switch {
	case link == "", strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return link
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	}
	return "https://" + link
}

// chain links each post to the one before it
func chain(texts []string) []types.Post {
	posts := make([]types.Post, len(texts))
	for i, text := range texts {
		posts[i] = types.Post{Text: text, ReplyTo: i - 1}
	}
	return posts
}

func (c Composer) indexHeader(date time.Time, k int) string {
	return fmt.Sprintf("%s Top %d %s - %s:\n\n", indexEmoji, k, c.IndexTitle, date.Format(dateLayout))
}

func indexLines(headlines []string, limit int) string {
	lines := make([]string, len(headlines))
	for i, h := range headlines {
		if limit > 0 {
			h = types.TruncateWords(h, limit)
		}
		lines[i] = fmt.Sprintf("%d. %s", i+1, h)
	}
	return strings.Join(lines, "\n")
}

// indexText lists every headline. When the list is over budget all
// headlines are cut to the same length, the longest length that fits.
func (c Composer) indexText(date time.Time, headlines []string) string {
	header := c.indexHeader(date, len(headlines))
	text := header + indexLines(headlines, 0)
	if c.fits(text) {
		return strings.TrimRight(text, "\n")
	}

	longest := 0
	for _, h := range headlines {
		longest = max(longest, types.RuneLen(h))
	}
	for limit := longest - 1; limit >= 1; limit-- {
		text = header + indexLines(headlines, limit)
		if c.fits(text) {
			return text
		}
	}
	return strings.TrimRight(header, "\n")
}

// detailTexts lays out one item: headline and link first, summary spilling
// into continuation posts, hashtags at the very end
func (c Composer) detailTexts(n, k int, link string, content types.GeneratedContent) []string {
	head := fmt.Sprintf("%s %d/%d: %s", detailEmoji, n, k, content.Headline)
	linkPart := ""
	if link != "" {
		linkPart = fmt.Sprintf("\n\n%s %s", linkEmoji, link)
	}

	if over := c.WeightedLen(head+linkPart) - c.MaxPostChars; over > 0 {
		keep := types.RuneLen(content.Headline) - over
		head = fmt.Sprintf("%s %d/%d: %s", detailEmoji, n, k, types.TruncateWords(content.Headline, keep))
	}

	words := strings.Fields(content.Summary)

	// first post: headline, as much summary as fits, link
	first := head
	room := c.MaxPostChars - c.WeightedLen(head+linkPart) - 2
	if room >= minSummaryRoom && len(words) > 0 {
		var taken string
		taken, words = c.takeWords(words, room)
		if taken != "" {
			first += "\n\n" + taken
		}
	}
	posts := []string{first + linkPart}

	for len(words) > 0 {
		var taken string
		taken, words = c.takeWords(words, c.MaxPostChars)
		if taken == "" {
			// a single word longer than a whole post
			taken = types.TruncateWords(words[0], c.MaxPostChars)
			words = words[1:]
		}
		posts = append(posts, taken)
	}

	if len(content.Hashtags) > 0 {
		tags := strings.Join(content.Hashtags, " ")
		last := len(posts) - 1
		if withTags := posts[last] + "\n\n" + tags; c.fits(withTags) {
			posts[last] = withTags
		} else {
			posts = append(posts, tags)
		}
	}
	return posts
}

// takeWords joins leading words while the result stays within room
func (c Composer) takeWords(words []string, room int) (string, []string) {
	var sb strings.Builder
	used := 0
	for i, w := range words {
		wl := c.WeightedLen(w)
		sep := 0
		if sb.Len() > 0 {
			sep = 1
		}
		if used+sep+wl > room {
			return sb.String(), words[i:]
		}
		if sep == 1 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
		used += sep + wl
	}
	return sb.String(), nil
}
