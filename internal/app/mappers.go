package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"room_watch/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Each field is resolved through an ordered probe list; the first present key
// wins. Raw scraper payloads vary across scraper versions, so precedence
// lives here rather than in code flow.

var listingAliases = map[string][]string{
	"external_id": {"roomId", "id", "listingId"},
	"title":       {"title", "name", "listingTitle"},
	"description": {"description", "sectionedDescription.description", "summary"},
	"location":    {"location", "address", "city", "locationSubtitle"},
}

var priceKeys = []string{"amount", "value", "price", "total"}
var currencyKeys = []string{"currency", "currencyCode"}
var ratingKeys = []string{"value", "rating", "score", "average"}
var reviewCountKeys = []string{"value", "count", "total"}
var nestedReviewCountKeys = []string{"reviewsCount", "reviewCount", "count"}

var photoFields = []string{"images", "image_urls", "photos", "photoUrls"}
var photoURLKeys = []string{"imageUrl", "url", "src", "href"}
var photoCaptionKeys = []string{"caption", "alt", "title", "description"}

var reviewFields = []string{"reviews", "reviewsList", "reviewList"}
var reviewerNameKeys = []string{"name", "fullName", "firstName", "displayName"}
var reviewCommentKeys = []string{"text", "localizedText", "localizedReview", "comment", "review_text", "reviewText", "content"}
var reviewDateKeys = []string{"createdAt", "localizedDate", "publishedAt", "reviewDate", "date", "published_at"}
var reviewIDKeys = []string{"review_id", "id", "reviewId"}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// asFloat parses a loose numeric value (float64/int/numeric string).
func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		f := t
		return &f
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

/********** scalar field extraction **********/

// extractNumber resolves a field that may be a bare number, a numeric string
// or an object probed through keys. Malformed input degrades to nil.
func extractNumber(v any, keys []string) *float64 {
	if v == nil {
		return nil
	}
	if obj, ok := v.(map[string]any); ok {
		for _, k := range keys {
			if inner, present := obj[k]; present {
				if f := asFloat(inner); f != nil {
					return f
				}
			}
		}
		return nil
	}
	return asFloat(v)
}

func extractPrice(rec map[string]any) *float64 {
	return extractNumber(rec["price"], priceKeys)
}

func extractCurrency(rec map[string]any) *string {
	if s := lookupStr(rec, "currency"); s != "" {
		return &s
	}
	if obj, ok := rec["price"].(map[string]any); ok {
		for _, k := range currencyKeys {
			if s, ok := obj[k].(string); ok && s != "" {
				return &s
			}
		}
	}
	return nil
}

func extractRating(rec map[string]any) *float64 {
	return extractNumber(rec["rating"], ratingKeys)
}

func extractReviewCount(rec map[string]any) *int {
	f := extractNumber(rec["reviewCount"], reviewCountKeys)
	if f == nil {
		// some scraper versions tuck the count inside the rating object
		if obj, ok := rec["rating"].(map[string]any); ok {
			for _, k := range nestedReviewCountKeys {
				if inner, present := obj[k]; present {
					if g := asFloat(inner); g != nil {
						f = g
						break
					}
				}
			}
		}
	}
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

/********** amenities **********/

// extractAmenities flattens the scraper's category structure into an ordered
// list of display strings. A category may be a bare string, an object with
// nested values (each with an available flag), or an object with a display
// name. A top-level string value passes through as a JSON array string or a
// comma-separated list; anything else falls through to a best-effort string
// conversion.
func extractAmenities(raw any) []string {
	if s, ok := raw.(string); ok {
		return domain.ParseAmenityList(s)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, category := range list {
		switch cat := category.(type) {
		case string:
			if cat != "" {
				out = append(out, cat)
			}
		case map[string]any:
			if values, ok := cat["values"].([]any); ok {
				for _, v := range values {
					switch a := v.(type) {
					case string:
						if a != "" {
							out = append(out, a)
						}
					case map[string]any:
						if !amenityAvailable(a["available"]) {
							continue
						}
						if name := amenityName(a); name != "" {
							out = append(out, name)
						}
					}
				}
				continue
			}
			if name := amenityName(cat); name != "" {
				out = append(out, name)
			}
		default:
			if category != nil {
				out = append(out, fmt.Sprintf("%v", category))
			}
		}
	}
	return out
}

func amenityAvailable(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

func amenityName(m map[string]any) string {
	for _, k := range []string{"title", "name", "label"} {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

/********** photos **********/

// extractPhotos probes the record's photo field aliases and maps entries to
// Photo values with order equal to their position. Entries with no resolvable
// URL are skipped and logged.
func extractPhotos(rec map[string]any) []domain.Photo {
	var raw []any
	for _, f := range photoFields {
		if l, ok := rec[f].([]any); ok && len(l) > 0 {
			raw = l
			break
		}
	}
	if raw == nil {
		return nil
	}
	out := make([]domain.Photo, 0, len(raw))
	for i, entry := range raw {
		var url, caption string
		switch p := entry.(type) {
		case string:
			url = p
		case map[string]any:
			for _, k := range photoURLKeys {
				if s, ok := p[k].(string); ok && s != "" {
					url = s
					break
				}
			}
			for _, k := range photoCaptionKeys {
				if s, ok := p[k].(string); ok && s != "" {
					caption = s
					break
				}
			}
		}
		if url == "" {
			log.Warn().Int("index", i).Msg("skipping photo with no resolvable url")
			continue
		}
		out = append(out, domain.Photo{URL: url, Caption: ptrStr(caption), Order: len(out)})
	}
	return out
}

/********** reviews **********/

var reviewDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"January 2006",
	"2006-01",
}

func parseReviewDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range reviewDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// mapReviews extracts the record's reviews into domain values. Reviews that
// end up with no id at all are skipped and logged. now supplies the fallback
// timestamp for synthesized ids of undated reviews.
func mapReviews(rec map[string]any, now time.Time) []domain.Review {
	var raw []any
	for _, f := range reviewFields {
		if l, ok := rec[f].([]any); ok && len(l) > 0 {
			raw = l
			break
		}
	}
	if raw == nil {
		return nil
	}

	out := make([]domain.Review, 0, len(raw))
	for _, entry := range raw {
		r, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		var rv domain.Review

		// Reviewer name: nested reviewer object first, then sibling flat fields.
		if reviewer, ok := r["reviewer"].(map[string]any); ok {
			for _, k := range reviewerNameKeys {
				if s, ok := reviewer[k].(string); ok && s != "" {
					rv.ReviewerName = &s
					break
				}
			}
			for _, k := range []string{"avatar", "avatarUrl"} {
				if s, ok := reviewer[k].(string); ok && s != "" {
					rv.ReviewerAvatar = &s
					break
				}
			}
		}
		if rv.ReviewerName == nil {
			rv.ReviewerName = firstNonEmptyAlias(r, map[string][]string{
				"name": {"reviewerName", "author", "name", "reviewer"},
			}, "name")
		}
		if rv.ReviewerAvatar == nil {
			rv.ReviewerAvatar = firstNonEmptyAlias(r, map[string][]string{
				"avatar": {"reviewerAvatar", "avatar", "reviewer_avatar"},
			}, "avatar")
		}

		// Rating, coerced to an int when it is a whole number.
		for _, k := range []string{"rating", "stars", "score"} {
			if f := asFloat(r[k]); f != nil {
				n := int(math.Round(*f))
				rv.Rating = &n
				break
			}
		}

		for _, k := range reviewCommentKeys {
			if s, ok := r[k].(string); ok && s != "" {
				rv.Comment = &s
				break
			}
		}

		for _, k := range reviewDateKeys {
			if t := parseReviewDate(r[k]); t != nil {
				rv.Date = t
				break
			}
		}

		for _, k := range reviewIDKeys {
			if s := lookupStr(r, k); s != "" {
				rv.ReviewID = s
				break
			}
			if f := asFloat(r[k]); f != nil {
				rv.ReviewID = strconv.FormatInt(int64(*f), 10)
				break
			}
		}
		if rv.ReviewID == "" {
			name := deref(rv.ReviewerName)
			if name == "" {
				name = "unknown"
			}
			if rv.Date != nil {
				rv.ReviewID = fmt.Sprintf("%s_%s", name, rv.Date.Format("2006-01-02"))
			} else {
				rv.ReviewID = fmt.Sprintf("%s_%d", name, now.UnixMilli())
			}
		}

		out = append(out, rv)
	}
	return out
}
