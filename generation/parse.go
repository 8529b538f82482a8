package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// draft is the JSON shape requested from the model. "heading" is accepted as
// an alias for headline.
type draft struct {
	Headline string   `json:"headline"`
	Heading  string   `json:"heading"`
	Summary  string   `json:"summary"`
	Hashtags []string `json:"hashtags"`
}

var errNoJSON = errors.New("no JSON object in response")

// parseDraft extracts the first JSON object from a model response, tolerating
// markdown fences, surrounding prose, a wrapping array and a truncated tail
func parseDraft(raw string) (draft, error) {
	txt := stripFences(strings.TrimSpace(raw))

	start := strings.IndexAny(txt, "{")
	if start < 0 {
		return draft{}, errNoJSON
	}
	txt = txt[start:]

	var d draft
	dec := json.NewDecoder(strings.NewReader(txt))
	if err := dec.Decode(&d); err == nil {
		return d.normalize(), nil
	}

	// salvage a response cut off by the token limit
	repaired := repairJSON(txt)
	if err := json.Unmarshal([]byte(repaired), &d); err != nil {
		return draft{}, fmt.Errorf("malformed JSON: %w", err)
	}
	return d.normalize(), nil
}

func (d draft) normalize() draft {
	if d.Headline == "" {
		d.Headline = d.Heading
	}
	d.Heading = ""
	return d
}

func stripFences(txt string) string {
	if !strings.HasPrefix(txt, "```") {
		return txt
	}
	lines := strings.Split(txt, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// repairJSON closes a dangling string, array and object
func repairJSON(txt string) string {
	fixed := strings.TrimRight(txt, " \n\r\t,")
	inString, escaped := false, false
	var stack []byte
	for i := 0; i < len(fixed); i++ {
		c := fixed[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case (c == '}' || c == ']') && len(stack) > 0:
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		fixed += `"`
	}
	fixed = strings.TrimRight(fixed, " \n\r\t,:")
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			fixed += "}"
		} else {
			fixed += "]"
		}
	}
	return fixed
}

var (
	urlPattern       = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	numberingPattern = regexp.MustCompile(`^\s*(?:📰\s*)?(?:\d+\s*/\s*\d+\s*:|\d+[.)]\s)\s*`)
	hashtagPattern   = regexp.MustCompile(`^#[\p{L}\p{N}_]+$`)
)

// cleanText removes links and leading thread numbering the model sometimes
// adds, and collapses whitespace
func cleanText(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = numberingPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// cleanHashtags normalizes tags to "#Word" form, dropping invalid ones and
// repeats, and keeps at most max
func cleanHashtags(tags []string, max int) []string {
	if max <= 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), "")
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if !hashtagPattern.MatchString(tag) {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == max {
			break
		}
	}
	return out
}
