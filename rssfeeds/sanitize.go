package rssfeeds

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p,div,br,li,h1,h2,h3,h4,h5,h6,tr,blockquote"

// CleanText turns a feed title or summary, which may carry HTML markup and
// entities, into a single line of plain text
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script,style,noscript").Remove()
			doc.Find(blockElements).AfterHtml(" ")
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
