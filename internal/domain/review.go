package domain

import "time"

// Review is keyed by ReviewID, the source system's external id (synthesized
// from reviewer+date when the scraper omits one). Re-ingesting a known
// ReviewID updates rating/comment/snapshot link in place; the original row,
// its date and its author are preserved.
type Review struct {
	ID             int64
	ListingID      int64
	SnapshotID     int64
	ReviewID       string
	ReviewerName   *string
	ReviewerAvatar *string
	Rating         *int // 1..5, whole numbers preferred
	Comment        *string
	Date           *time.Time
}
