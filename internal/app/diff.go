package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"room_watch/internal/adapters/observability"
	"room_watch/internal/domain"
)

// DiffService computes structural differences between two snapshot versions
// of the same listing. All diff functions are pure; Compare only reads.
type DiffService struct {
	repo domain.ListingRepository
	now  func() time.Time // key fallback for undated reviews
}

func NewDiffService(repo domain.ListingRepository) *DiffService {
	return &DiffService{repo: repo, now: time.Now}
}

// Compare loads both snapshots and returns the five independent diffs.
// Fails with ErrListingMismatch when the snapshots belong to different
// listings.
func (s *DiffService) Compare(ctx context.Context, fromID, toID int64) (domain.DiffResult, error) {
	from, err := s.repo.GetSnapshot(ctx, fromID)
	if err != nil {
		return domain.DiffResult{}, fmt.Errorf("snapshot %d: %w", fromID, err)
	}
	to, err := s.repo.GetSnapshot(ctx, toID)
	if err != nil {
		return domain.DiffResult{}, fmt.Errorf("snapshot %d: %w", toID, err)
	}
	if from.ListingID != to.ListingID {
		return domain.DiffResult{}, domain.ErrListingMismatch
	}

	res := domain.DiffResult{
		From:           from,
		To:             to,
		Description:    DiffText(deref(from.Description), deref(to.Description)),
		Amenities:      DiffAmenities(from.Amenities, to.Amenities),
		Photos:         DiffPhotos(from.Photos, to.Photos),
		Reviews:        diffReviews(from.Reviews, to.Reviews, s.now()),
		ReviewsByMonth: GroupReviewsByMonth(from.Reviews, to.Reviews),
		Price:          diffFloat(from.Price, to.Price),
		Rating:         diffFloat(from.Rating, to.Rating),
		ReviewCount:    diffInt(from.ReviewCount, to.ReviewCount),
	}
	observability.ObserveCompare()
	return res, nil
}

// DiffText is the description diff; finer-grained highlighting is a
// presentation concern.
func DiffText(from, to string) domain.TextDiff {
	return domain.TextDiff{From: from, To: to, Changed: from != to}
}

func diffFloat(from, to *float64) domain.FloatDiff {
	changed := (from == nil) != (to == nil) || (from != nil && to != nil && *from != *to)
	return domain.FloatDiff{From: from, To: to, Changed: changed}
}

func diffInt(from, to *int) domain.IntDiff {
	changed := (from == nil) != (to == nil) || (from != nil && to != nil && *from != *to)
	return domain.IntDiff{From: from, To: to, Changed: changed}
}

// DiffAmenities computes a value-equality set diff. Membership is tested
// case-insensitively; output preserves each element's original order and case
// from the side it came from.
func DiffAmenities(from, to []string) domain.AmenityDiff {
	fromSet := make(map[string]struct{}, len(from))
	for _, a := range from {
		fromSet[strings.ToLower(a)] = struct{}{}
	}
	toSet := make(map[string]struct{}, len(to))
	for _, a := range to {
		toSet[strings.ToLower(a)] = struct{}{}
	}

	d := domain.AmenityDiff{Added: []string{}, Removed: []string{}, Unchanged: []string{}}
	for _, a := range to {
		if _, ok := fromSet[strings.ToLower(a)]; ok {
			d.Unchanged = append(d.Unchanged, a)
		} else {
			d.Added = append(d.Added, a)
		}
	}
	for _, a := range from {
		if _, ok := toSet[strings.ToLower(a)]; !ok {
			d.Removed = append(d.Removed, a)
		}
	}
	return d
}

// DiffPhotos keys photos by URL; storage ids are not stable across
// re-ingestion. A URL present in both sides with a different index is moved,
// carrying both indexes, and appears in no other category.
func DiffPhotos(from, to []domain.Photo) domain.PhotoDiff {
	fromIdx := make(map[string]int, len(from))
	for i, p := range from {
		if _, dup := fromIdx[p.URL]; !dup {
			fromIdx[p.URL] = i
		}
	}
	toIdx := make(map[string]int, len(to))
	for i, p := range to {
		if _, dup := toIdx[p.URL]; !dup {
			toIdx[p.URL] = i
		}
	}

	d := domain.PhotoDiff{
		Added:     []domain.PhotoPosition{},
		Removed:   []domain.PhotoPosition{},
		Moved:     []domain.PhotoMove{},
		Unchanged: []domain.PhotoPosition{},
	}
	seen := make(map[string]struct{}, len(to))
	for i, p := range to {
		if _, dup := seen[p.URL]; dup {
			continue
		}
		seen[p.URL] = struct{}{}
		old, ok := fromIdx[p.URL]
		switch {
		case !ok:
			d.Added = append(d.Added, domain.PhotoPosition{URL: p.URL, Index: i})
		case old != i:
			d.Moved = append(d.Moved, domain.PhotoMove{URL: p.URL, OldIndex: old, NewIndex: i})
		default:
			d.Unchanged = append(d.Unchanged, domain.PhotoPosition{URL: p.URL, Index: i})
		}
	}
	for i, p := range from {
		if _, ok := toIdx[p.URL]; !ok {
			d.Removed = append(d.Removed, domain.PhotoPosition{URL: p.URL, Index: i})
		}
	}
	return d
}

// reviewKey derives the matching key: reviewerName + ISO date, with "Unknown"
// and today as fallbacks so a key always exists.
func reviewKey(r domain.Review, today time.Time) string {
	name := deref(r.ReviewerName)
	if name == "" {
		name = "Unknown"
	}
	d := today
	if r.Date != nil {
		d = *r.Date
	}
	return name + "_" + d.Format("2006-01-02")
}

func reviewContentEqual(a, b domain.Review) bool {
	ratingEq := (a.Rating == nil) == (b.Rating == nil) &&
		(a.Rating == nil || *a.Rating == *b.Rating)
	return ratingEq && deref(a.Comment) == deref(b.Comment)
}

// diffReviews is the keyed-match diff: same key with different rating or
// comment is one updated entry, never an added+removed pair. Identical pairs
// are not reported.
func diffReviews(from, to []domain.Review, today time.Time) domain.ReviewDiff {
	fromByKey := make(map[string]domain.Review, len(from))
	for _, r := range from {
		fromByKey[reviewKey(r, today)] = r
	}
	toByKey := make(map[string]domain.Review, len(to))
	for _, r := range to {
		toByKey[reviewKey(r, today)] = r
	}

	d := domain.ReviewDiff{
		Added:   []domain.ReviewChange{},
		Removed: []domain.ReviewChange{},
		Updated: []domain.ReviewChange{},
	}
	seen := make(map[string]struct{}, len(to))
	for _, r := range to {
		key := reviewKey(r, today)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		old, ok := fromByKey[key]
		switch {
		case !ok:
			nr := r
			d.Added = append(d.Added, domain.ReviewChange{Key: key, New: &nr})
		case !reviewContentEqual(old, r):
			or, nr := old, r
			d.Updated = append(d.Updated, domain.ReviewChange{Key: key, Old: &or, New: &nr})
		}
	}
	for _, r := range from {
		key := reviewKey(r, today)
		if _, ok := toByKey[key]; !ok {
			or := r
			d.Removed = append(d.Removed, domain.ReviewChange{Key: key, Old: &or})
		}
	}
	return d
}

// GroupReviewsByMonth buckets both sides by calendar month, newest month
// first; undated reviews land in a trailing "unknown" bucket.
func GroupReviewsByMonth(from, to []domain.Review) []domain.ReviewMonth {
	const unknown = "unknown"
	monthOf := func(r domain.Review) string {
		if r.Date == nil {
			return unknown
		}
		return r.Date.Format("2006-01")
	}

	fromBy := make(map[string][]domain.Review)
	for _, r := range from {
		m := monthOf(r)
		fromBy[m] = append(fromBy[m], r)
	}
	toBy := make(map[string][]domain.Review)
	for _, r := range to {
		m := monthOf(r)
		toBy[m] = append(toBy[m], r)
	}

	months := make([]string, 0, len(fromBy)+len(toBy))
	seen := map[string]struct{}{}
	for m := range fromBy {
		seen[m] = struct{}{}
	}
	for m := range toBy {
		seen[m] = struct{}{}
	}
	hasUnknown := false
	for m := range seen {
		if m == unknown {
			hasUnknown = true
			continue
		}
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	if hasUnknown {
		months = append(months, unknown)
	}

	out := make([]domain.ReviewMonth, 0, len(months))
	for _, m := range months {
		out = append(out, domain.ReviewMonth{Month: m, From: fromBy[m], To: toBy[m]})
	}
	return out
}
