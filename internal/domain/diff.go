package domain

// Diff result types. All five diffs are computed independently; none
// short-circuits on another.

type TextDiff struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Changed bool   `json:"changed"`
}

type FloatDiff struct {
	From    *float64 `json:"from"`
	To      *float64 `json:"to"`
	Changed bool     `json:"changed"`
}

type IntDiff struct {
	From    *int `json:"from"`
	To      *int `json:"to"`
	Changed bool `json:"changed"`
}

// AmenityDiff is a value-equality set diff; each slice preserves the element
// order of the side it came from.
type AmenityDiff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

type PhotoPosition struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
}

type PhotoMove struct {
	URL      string `json:"url"`
	OldIndex int    `json:"oldIndex"`
	NewIndex int    `json:"newIndex"`
}

// PhotoDiff keys photos by URL so a reordered photo shows up as moved, not as
// a remove+add pair.
type PhotoDiff struct {
	Added     []PhotoPosition `json:"added"`
	Removed   []PhotoPosition `json:"removed"`
	Moved     []PhotoMove     `json:"moved"`
	Unchanged []PhotoPosition `json:"unchanged"`
}

// ReviewChange carries both sides of a keyed match. Old is nil for added,
// New is nil for removed, both are set for updated.
type ReviewChange struct {
	Key string  `json:"key"` // reviewerName_date
	Old *Review `json:"old,omitempty"`
	New *Review `json:"new,omitempty"`
}

type ReviewDiff struct {
	Added   []ReviewChange `json:"added"`
	Removed []ReviewChange `json:"removed"`
	Updated []ReviewChange `json:"updated"`
}

// ReviewMonth groups both sides' reviews by calendar month for month-by-month
// browsing. Month is "2006-01", or "unknown" for undated reviews.
type ReviewMonth struct {
	Month string   `json:"month"`
	From  []Review `json:"from"`
	To    []Review `json:"to"`
}

type DiffResult struct {
	From           SnapshotView  `json:"from"`
	To             SnapshotView  `json:"to"`
	Description    TextDiff      `json:"description"`
	Amenities      AmenityDiff   `json:"amenities"`
	Photos         PhotoDiff     `json:"photos"`
	Reviews        ReviewDiff    `json:"reviews"`
	ReviewsByMonth []ReviewMonth `json:"reviewsByMonth"`
	Price          FloatDiff     `json:"price"`
	Rating         FloatDiff     `json:"rating"`
	ReviewCount    IntDiff       `json:"reviewCount"`
}
