package domain

import "time"

// TrackedURL is a listing page a user asked us to watch.
type TrackedURL struct {
	ID        int64
	URL       string
	Enabled   bool
	CreatedAt time.Time
}

// Listing holds the slowly-changing identity of a tracked listing.
// It is mutated in place on each ingestion; history lives in Snapshots.
type Listing struct {
	ID           int64
	TrackedURLID int64
	ExternalID   *string // the scraper's room id
	Title        *string
	Description  *string
	Location     *string
}

// Snapshot is one immutable, versioned capture of a listing's scraped
// attributes. Versions are strictly increasing per listing, starting at 1.
type Snapshot struct {
	ID          int64
	ListingID   int64
	Version     int
	Description *string
	Amenities   []string
	Price       *float64
	Currency    *string
	Rating      *float64
	ReviewCount *int
	CreatedAt   time.Time
}

// Photo belongs to exactly one snapshot. URL is the durable identity key;
// scraper-side ids are not stable across re-scrapes.
type Photo struct {
	ID         int64
	ListingID  int64
	SnapshotID int64
	URL        string
	Caption    *string
	Order      int // 0-based position within the snapshot
}

// SnapshotView is a snapshot with its photos (by order) and reviews
// (newest first) resolved.
type SnapshotView struct {
	Snapshot
	Photos  []Photo
	Reviews []Review
}

type SnapshotsQuery struct {
	ListingID int64
	Page      int
	Limit     int
	Start     *time.Time
	End       *time.Time
}

type SnapshotsPage struct {
	Items      []SnapshotView
	Page       int
	Limit      int
	Total      int
	TotalPages int
}
