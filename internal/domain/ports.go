package domain

import "context"

// ListingRepository is the versioned store contract. The store must enforce
// per-listing version uniqueness (surfaced as ErrConflict) and review
// uniqueness by external id.
type ListingRepository interface {
	// Tracked URLs
	CreateTrackedURL(ctx context.Context, url string) (TrackedURL, error)
	GetTrackedURL(ctx context.Context, id int64) (TrackedURL, error)
	ListTrackedURLs(ctx context.Context, enabledOnly bool) ([]TrackedURL, error)
	SetTrackedURLEnabled(ctx context.Context, id int64, enabled bool) error

	// Listings
	GetListingByTrackedURL(ctx context.Context, trackedURLID int64) (Listing, error)
	UpsertListing(ctx context.Context, l Listing) (int64, error)

	// Snapshots. InsertSnapshot writes the snapshot and its photos in one
	// transaction and returns the new snapshot id.
	LatestSnapshotVersion(ctx context.Context, listingID int64) (int, error)
	InsertSnapshot(ctx context.Context, s Snapshot, photos []Photo) (int64, error)
	GetSnapshot(ctx context.Context, id int64) (SnapshotView, error)
	ListSnapshots(ctx context.Context, q SnapshotsQuery) (SnapshotsPage, error)

	// Reviews, upserted by external review id.
	UpsertReviews(ctx context.Context, rs []Review) error

	// Scrape runs
	CreateRun(ctx context.Context, trackedURLID int64) (ScrapeRun, error)
	MarkRunRunning(ctx context.Context, runID int64, jobID string) error
	MarkRunCompleted(ctx context.Context, runID int64) error
	MarkRunFailed(ctx context.Context, runID int64, msg string) error
	LinkRunSnapshot(ctx context.Context, runID, snapshotID int64) error
	ListRuns(ctx context.Context, trackedURLID int64, limit int) ([]ScrapeRun, error)
}

// ScrapeEngine is the job-based external scraping engine. RunJob starts an
// actor over the seed URLs and returns immediately; callers poll until the
// handle reaches a terminal status, then fetch the dataset.
type ScrapeEngine interface {
	RunJob(ctx context.Context, actorID string, seedURLs []string, params map[string]any) (JobHandle, error)
	PollJob(ctx context.Context, jobID string) (JobHandle, error)
	FetchResults(ctx context.Context, datasetID string) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
