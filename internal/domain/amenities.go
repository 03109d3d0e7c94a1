package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeAmenities reduces stored amenity items of mixed shape to plain
// strings (id, then name, then title, then a string conversion). Older rows
// persisted objects before ingestion flattened them.
func NormalizeAmenities(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case string:
			out = append(out, ParseAmenityList(t)...)
		case map[string]any:
			picked := ""
			for _, k := range []string{"id", "name", "title"} {
				if s, ok := t[k].(string); ok && s != "" {
					picked = s
					break
				}
			}
			if picked == "" {
				picked = fmt.Sprintf("%v", t)
			}
			out = append(out, picked)
		default:
			if it != nil {
				out = append(out, fmt.Sprintf("%v", it))
			}
		}
	}
	return out
}

// ParseAmenityList decodes a string-shaped amenities value: a JSON array
// string first, then a comma-separated list. Some storage and scraper paths
// carry amenities as a single string instead of a list.
func ParseAmenityList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var items []any
		if json.Unmarshal([]byte(s), &items) == nil {
			return NormalizeAmenities(items)
		}
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
