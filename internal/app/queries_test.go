package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room_watch/internal/domain"
)

func seedSnapshots(t *testing.T, repo *memRepo, n int) (domain.TrackedURL, []*domain.Snapshot) {
	t.Helper()
	ctx := context.Background()
	ing := NewIngestionService(repo, newMemCache())
	src, err := repo.CreateTrackedURL(ctx, "https://www.airbnb.com/rooms/12345")
	require.NoError(t, err)

	snaps := make([]*domain.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		s, err := ing.Ingest(ctx, src.ID, []map[string]any{listingRecord(nil)}, 0)
		require.NoError(t, err)
		snaps = append(snaps, s)
	}
	return src, snaps
}

func TestRunHistory_UnknownTrackedURL(t *testing.T) {
	repo := newMemRepo()
	q := NewQueryService(repo, NewDiffService(repo), newMemCache(), time.Minute)

	_, err := q.RunHistory(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunHistory_CachedUntilNextSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cache := newMemCache()
	ing := NewIngestionService(repo, cache)
	q := NewQueryService(repo, NewDiffService(repo), cache, time.Minute)

	src, err := repo.CreateTrackedURL(ctx, "https://www.airbnb.com/rooms/12345")
	require.NoError(t, err)
	_, err = repo.CreateRun(ctx, src.ID)
	require.NoError(t, err)

	runs, err := q.RunHistory(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// a new run is invisible while the cached history is fresh
	_, err = repo.CreateRun(ctx, src.ID)
	require.NoError(t, err)
	runs, err = q.RunHistory(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// a new snapshot drops the entry and the history reloads
	_, err = ing.Ingest(ctx, src.ID, []map[string]any{listingRecord(nil)}, 0)
	require.NoError(t, err)
	runs, err = q.RunHistory(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetSnapshot_CachesResult(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cache := newMemCache()
	_, snaps := seedSnapshots(t, repo, 1)
	q := NewQueryService(repo, NewDiffService(repo), cache, time.Minute)

	first, err := q.GetSnapshot(ctx, snaps[0].ID)
	require.NoError(t, err)
	assert.Len(t, cache.store, 1)

	// served from cache even after the row disappears
	delete(repo.snaps, snaps[0].ID)
	second, err := q.GetSnapshot(ctx, snaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
}

func TestListSnapshots_Defaults(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	src, _ := seedSnapshots(t, repo, 3)
	q := NewQueryService(repo, NewDiffService(repo), newMemCache(), time.Minute)

	listing, err := repo.GetListingByTrackedURL(ctx, src.ID)
	require.NoError(t, err)

	page, err := q.ListSnapshots(ctx, domain.SnapshotsQuery{ListingID: listing.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Items, 3)
}

func TestQueryCompare_CachesByIDPair(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	cache := newMemCache()
	_, snaps := seedSnapshots(t, repo, 2)
	q := NewQueryService(repo, NewDiffService(repo), cache, time.Minute)

	first, err := q.Compare(ctx, snaps[0].ID, snaps[1].ID)
	require.NoError(t, err)

	// repeated compare of immutable snapshots yields the identical result
	second, err := q.Compare(ctx, snaps[0].ID, snaps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, first.From.ID, second.From.ID)
	assert.Equal(t, first.Amenities, second.Amenities)
	assert.Equal(t, first.Price, second.Price)

	// the reverse direction is its own cache entry
	_, err = q.Compare(ctx, snaps[1].ID, snaps[0].ID)
	require.NoError(t, err)
	assert.Len(t, cache.store, 2)
}
