package deduplication

import (
	"net/url"
	"sort"
	"strings"

	"newsbot/types"
)

const titleKeyPrefix = "title:"

// trackingParams are query parameters that identify a referrer, not a page
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
	"ref_src": true,
}

// Key returns the DedupKey of an item: its normalized link, or the normalized
// title prefixed with "title:" when the link is missing or unusable
func Key(item types.RawItem) string {
	if u := NormalizeURL(item.Link); u != "" {
		return u
	}
	return titleKeyPrefix + NormalizeTitle(item.Title)
}

// NormalizeTitle lowercases a title and collapses its whitespace
func NormalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// NormalizeURL canonicalizes an absolute link. It returns "" for links that
// cannot serve as a key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")

	q := u.Query()
	for k := range q {
		if isTrackingParam(k) {
			q.Del(k)
		}
	}
	// Encode sorts by key; values keep their original order
	for _, vs := range q {
		sort.Strings(vs)
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	return u.String()
}

func isTrackingParam(k string) bool {
	lk := strings.ToLower(k)
	return strings.HasPrefix(lk, "utm_") || trackingParams[lk]
}
