package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"room_watch/internal/adapters/observability"
	"room_watch/internal/domain"
)

// IngestionService maps loosely-structured scraper output into canonical
// snapshots. Only the first record of a batch is authoritative for the
// listing; one tracked URL maps to exactly one listing at a time.
type IngestionService struct {
	repo  domain.ListingRepository
	cache domain.Cache
	now   func() time.Time
}

func NewIngestionService(repo domain.ListingRepository, cache domain.Cache) *IngestionService {
	return &IngestionService{repo: repo, cache: cache, now: time.Now}
}

// Ingest appends a new snapshot for the tracked URL's listing. Empty input is
// a no-op, not an error. runID, when non-zero, links the originating scrape
// run to the created snapshot.
func (s *IngestionService) Ingest(ctx context.Context, trackedURLID int64, records []map[string]any, runID int64) (*domain.Snapshot, error) {
	if len(records) == 0 {
		log.Info().Int64("tracked_url_id", trackedURLID).Msg("no records to ingest")
		return nil, nil
	}
	rec := records[0]

	if _, err := s.repo.GetTrackedURL(ctx, trackedURLID); err != nil {
		return nil, err
	}

	listingID, err := s.upsertListing(ctx, trackedURLID, rec)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.LatestSnapshotVersion(ctx, listingID)
	if err != nil {
		return nil, err
	}

	snap := domain.Snapshot{
		ListingID:   listingID,
		Version:     latest + 1,
		Description: ptrStr(lookupStr(rec, "description")),
		Amenities:   extractAmenities(rec["amenities"]),
		Price:       extractPrice(rec),
		Currency:    extractCurrency(rec),
		Rating:      extractRating(rec),
		ReviewCount: extractReviewCount(rec),
	}

	photos := extractPhotos(rec)
	for i := range photos {
		photos[i].ListingID = listingID
	}

	snapID, err := s.repo.InsertSnapshot(ctx, snap, photos)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot v%d for listing %d: %w", snap.Version, listingID, err)
	}
	snap.ID = snapID

	if runID != 0 {
		if err := s.repo.LinkRunSnapshot(ctx, runID, snapID); err != nil {
			return nil, err
		}
	}

	reviews := mapReviews(rec, s.now())
	for i := range reviews {
		reviews[i].ListingID = listingID
		reviews[i].SnapshotID = snapID
	}
	if len(reviews) > 0 {
		if err := s.repo.UpsertReviews(ctx, reviews); err != nil {
			return nil, fmt.Errorf("upsert %d reviews for listing %d: %w", len(reviews), listingID, err)
		}
	}

	if s.cache != nil {
		s.invalidateRuns(ctx, trackedURLID)
	}

	observability.ObserveIngest(len(photos), len(reviews))
	log.Info().
		Int64("listing_id", listingID).
		Int("version", snap.Version).
		Int("photos", len(photos)).
		Int("reviews", len(reviews)).
		Int("amenities", len(snap.Amenities)).
		Msg("snapshot ingested")

	return &snap, nil
}

func (s *IngestionService) upsertListing(ctx context.Context, trackedURLID int64, rec map[string]any) (int64, error) {
	l := domain.Listing{
		TrackedURLID: trackedURLID,
		ExternalID:   firstNonEmptyAlias(rec, listingAliases, "external_id"),
		Title:        firstNonEmptyAlias(rec, listingAliases, "title"),
		Description:  firstNonEmptyAlias(rec, listingAliases, "description"),
		Location:     firstNonEmptyAlias(rec, listingAliases, "location"),
	}
	if l.ExternalID == nil {
		if u := lookupStr(rec, "url"); u != "" {
			if id, ok := ExtractRoomID(u); ok {
				l.ExternalID = &id
			}
		}
	}
	if existing, err := s.repo.GetListingByTrackedURL(ctx, trackedURLID); err == nil {
		l.ID = existing.ID
		if l.ExternalID == nil {
			l.ExternalID = existing.ExternalID
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	return s.repo.UpsertListing(ctx, l)
}

// invalidateRuns drops the cached run history once a new snapshot lands, so
// readers see the run linked to it. Snapshot entries are immutable and need
// no invalidation.
func (s *IngestionService) invalidateRuns(ctx context.Context, trackedURLID int64) {
	_ = s.cache.Del(ctx, fmt.Sprintf("runs:%d", trackedURLID))
}
