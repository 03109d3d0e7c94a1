package app

import (
	"fmt"
	"regexp"
	"strings"
)

// Room id extraction. Pure helpers shared by the orchestrator (building
// enrichment seed URLs) and the merge step (matching enrichment results back
// to listings).

var (
	roomsPathRe = regexp.MustCompile(`(?i)/rooms/(\d+)`)
	allDigitsRe = regexp.MustCompile(`^\d+$`)
	digitRunRe  = regexp.MustCompile(`(\d+)(?:[/?#]|$)`)
)

// ExtractRoomID derives the stable room id from a URL or free-form text.
// Policy, in order: a /rooms/<digits> path segment, an all-digits input, then
// the first digit run terminated by '/', '?', '#' or end of string.
func ExtractRoomID(urlOrText string) (string, bool) {
	s := strings.TrimSpace(urlOrText)
	if s == "" {
		return "", false
	}
	if m := roomsPathRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if allDigitsRe.MatchString(s) {
		return s, true
	}
	if m := digitRunRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// BuildRoomURL formats the canonical listing URL for a room id.
func BuildRoomURL(id string) string {
	return fmt.Sprintf("https://www.airbnb.com/rooms/%s", id)
}

// ExtractRoomURL resolves a full listing URL from a raw record. An explicit
// URL field wins; a non-http value is reduced to an id (from the value itself
// or from id-like fields) and re-canonicalized; with no URL field at all,
// id-like fields are the fallback.
func ExtractRoomURL(record map[string]any) (string, bool) {
	if u := firstString(record, "url", "listingUrl", "roomUrl"); u != "" {
		if strings.HasPrefix(u, "http") {
			return u, true
		}
		id, ok := ExtractRoomID(u)
		if !ok {
			id = firstString(record, "roomId", "id", "listingId")
		}
		if id != "" {
			return BuildRoomURL(id), true
		}
		return "", false
	}
	if id := firstString(record, "roomId", "id", "listingId"); id != "" {
		return BuildRoomURL(id), true
	}
	return "", false
}

// ExtractRoomURLs maps records through ExtractRoomURL, de-duplicating while
// preserving first-seen order.
func ExtractRoomURLs(records []map[string]any) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, rec := range records {
		u, ok := ExtractRoomURL(rec)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// firstString returns the first non-empty string-convertible value among keys.
// Numeric ids show up as float64 after JSON decoding; they are formatted
// without an exponent.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case int64:
			return fmt.Sprintf("%d", v)
		case int:
			return fmt.Sprintf("%d", v)
		}
	}
	return ""
}
