package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrice(t *testing.T) {
	cases := []struct {
		name string
		rec  map[string]any
		want *float64
	}{
		{"bare number", map[string]any{"price": 120.5}, f64(120.5)},
		{"numeric string", map[string]any{"price": "89"}, f64(89)},
		{"comma decimal string", map[string]any{"price": "89,50"}, f64(89.5)},
		{"object amount", map[string]any{"price": map[string]any{"amount": 75.0, "currency": "EUR"}}, f64(75)},
		{"object value fallback", map[string]any{"price": map[string]any{"value": "60"}}, f64(60)},
		{"object probe order", map[string]any{"price": map[string]any{"amount": 10.0, "total": 99.0}}, f64(10)},
		{"missing", map[string]any{}, nil},
		{"malformed", map[string]any{"price": "about a hundred"}, nil},
		{"object with junk", map[string]any{"price": map[string]any{"note": "n/a"}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractPrice(tc.rec)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestExtractCurrency(t *testing.T) {
	c := extractCurrency(map[string]any{"price": map[string]any{"amount": 75.0, "currency": "EUR"}})
	require.NotNil(t, c)
	assert.Equal(t, "EUR", *c)

	c = extractCurrency(map[string]any{"currency": "USD"})
	require.NotNil(t, c)
	assert.Equal(t, "USD", *c)

	assert.Nil(t, extractCurrency(map[string]any{"price": 10.0}))
}

func TestExtractRating(t *testing.T) {
	r := extractRating(map[string]any{"rating": 4.87})
	require.NotNil(t, r)
	assert.Equal(t, 4.87, *r)

	r = extractRating(map[string]any{"rating": map[string]any{"value": "4.5"}})
	require.NotNil(t, r)
	assert.Equal(t, 4.5, *r)

	assert.Nil(t, extractRating(map[string]any{}))
}

func TestExtractReviewCount(t *testing.T) {
	n := extractReviewCount(map[string]any{"reviewCount": 42.0})
	require.NotNil(t, n)
	assert.Equal(t, 42, *n)

	// count tucked inside the rating object
	n = extractReviewCount(map[string]any{"rating": map[string]any{"value": 4.9, "reviewsCount": 17.0}})
	require.NotNil(t, n)
	assert.Equal(t, 17, *n)

	assert.Nil(t, extractReviewCount(map[string]any{}))
}

func TestExtractAmenities(t *testing.T) {
	raw := []any{
		"Wifi", // bare string
		map[string]any{ // category with nested values
			"title": "Kitchen",
			"values": []any{
				map[string]any{"title": "Oven", "available": true},
				map[string]any{"title": "Dishwasher", "available": false},
				"Fridge",
			},
		},
		map[string]any{"name": "Free parking"}, // flat object
	}
	got := extractAmenities(raw)
	assert.Equal(t, []string{"Wifi", "Oven", "Fridge", "Free parking"}, got)
}

func TestExtractAmenities_StringInput(t *testing.T) {
	assert.Equal(t, []string{"Wifi", "Kitchen"}, extractAmenities("Wifi, Kitchen"))
	assert.Equal(t, []string{"Wifi", "Pool"}, extractAmenities(`["Wifi","Pool"]`))
	assert.Nil(t, extractAmenities(nil))
	assert.Nil(t, extractAmenities(42.0))
}

func TestExtractPhotos(t *testing.T) {
	rec := map[string]any{
		"images": []any{
			"https://img/1.jpg",
			map[string]any{"imageUrl": "https://img/2.jpg", "caption": "kitchen"},
			map[string]any{"alt": "no url at all"},
			map[string]any{"url": "https://img/3.jpg"},
		},
	}
	got := extractPhotos(rec)
	require.Len(t, got, 3)
	assert.Equal(t, "https://img/1.jpg", got[0].URL)
	assert.Equal(t, 0, got[0].Order)
	assert.Equal(t, "https://img/2.jpg", got[1].URL)
	require.NotNil(t, got[1].Caption)
	assert.Equal(t, "kitchen", *got[1].Caption)
	assert.Equal(t, 1, got[1].Order)
	assert.Equal(t, "https://img/3.jpg", got[2].URL)
	assert.Equal(t, 2, got[2].Order)
}

func TestExtractPhotos_FieldAliases(t *testing.T) {
	for _, field := range []string{"images", "image_urls", "photos", "photoUrls"} {
		got := extractPhotos(map[string]any{field: []any{"https://img/a.jpg"}})
		require.Len(t, got, 1, "field %s", field)
	}
	assert.Nil(t, extractPhotos(map[string]any{"pictures": []any{"x"}}))
}

func TestMapReviews(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec := map[string]any{
		"reviews": []any{
			map[string]any{
				"id":        "r-100",
				"reviewer":  map[string]any{"name": "Alice", "avatar": "https://img/alice.jpg"},
				"rating":    5.0,
				"text":      "Great stay",
				"createdAt": "2026-07-15T10:00:00Z",
			},
			map[string]any{ // flat fields, no id: synthesized from name + date
				"reviewerName":  "Bob",
				"stars":         3.6,
				"comment":       "Fine",
				"localizedDate": "July 2026",
			},
			map[string]any{ // no id, no date: synthesized from name + now
				"author": "Cara",
				"text":   "ok",
			},
		},
	}

	got := mapReviews(rec, now)
	require.Len(t, got, 3)

	assert.Equal(t, "r-100", got[0].ReviewID)
	require.NotNil(t, got[0].ReviewerName)
	assert.Equal(t, "Alice", *got[0].ReviewerName)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 5, *got[0].Rating)
	require.NotNil(t, got[0].Date)

	assert.Equal(t, "Bob_2026-07-01", got[1].ReviewID)
	require.NotNil(t, got[1].Rating)
	assert.Equal(t, 4, *got[1].Rating) // 3.6 rounds to 4

	assert.Equal(t, "Cara_1788091200000", got[2].ReviewID)
	assert.Nil(t, got[2].Date)
}

func TestMapReviews_FieldAliases(t *testing.T) {
	for _, field := range []string{"reviews", "reviewsList", "reviewList"} {
		got := mapReviews(map[string]any{field: []any{map[string]any{"id": "x"}}}, time.Now())
		require.Len(t, got, 1, "field %s", field)
	}
	assert.Nil(t, mapReviews(map[string]any{"feedback": []any{}}, time.Now()))
}

func TestParseReviewDate_Layouts(t *testing.T) {
	for _, s := range []string{
		"2026-07-15T10:00:00Z",
		"2026-07-15T10:00:00",
		"2026-07-15",
		"July 15, 2026",
		"July 2026",
		"2026-07",
	} {
		got := parseReviewDate(s)
		require.NotNil(t, got, "layout for %q", s)
		assert.Equal(t, time.July, got.Month())
	}
	assert.Nil(t, parseReviewDate("a while ago"))
	assert.Nil(t, parseReviewDate(nil))
}

func f64(v float64) *float64 { return &v }
