package generation

import (
	"fmt"
	"strings"

	"newsbot/types"
)

const maxPromptSummaryRunes = 1200

// targetsFor shrinks the requested lengths on every regeneration attempt so a
// model that overshoots gets progressively stricter instructions
func targetsFor(b Budget, attempt int) (headline, summary int) {
	pct := 90 - 20*attempt
	if pct < 40 {
		pct = 40
	}
	return b.Headline * pct / 100, b.Summary * pct / 100
}

func buildPrompt(item types.SelectedItem, b Budget, maxHashtags, attempt int) string {
	headline, summary := targetsFor(b, attempt)

	var sb strings.Builder
	sb.WriteString("Rewrite this tech news item for a social media post.\n\n")
	sb.WriteString("Return ONLY a JSON object with these fields:\n")
	fmt.Fprintf(&sb, "- headline: at most %d characters, one line, hashtags included in that count\n", headline)
	fmt.Fprintf(&sb, "- summary: 1-2 plain sentences, at most %d characters\n", summary)
	fmt.Fprintf(&sb, "- hashtags: array of at most %d hashtags like \"#AI\"\n\n", maxHashtags)
	sb.WriteString("NO links, NO emojis, NO numbering, NO markdown, NO extra text.\n")
	if attempt > 0 {
		sb.WriteString("Your previous answer was too long or malformed. Be shorter and follow the format exactly.\n")
	}

	sb.WriteString("\nItem:\n")
	fmt.Fprintf(&sb, "title: %s\n", item.Title)
	if item.RawSummary != "" {
		fmt.Fprintf(&sb, "summary: %s\n", types.TruncateWords(item.RawSummary, maxPromptSummaryRunes))
	}
	if item.SourceName != "" {
		fmt.Fprintf(&sb, "source: %s\n", item.SourceName)
	}
	if item.Link != "" {
		fmt.Fprintf(&sb, "link (context only, do not repeat): %s\n", item.Link)
	}

	sb.WriteString("\nOutput:\n{\"headline\":\"...\",\"summary\":\"...\",\"hashtags\":[\"#...\"]}\n")
	return sb.String()
}
