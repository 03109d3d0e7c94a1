package app

import (
	"context"
	"fmt"
	"time"

	"room_watch/internal/domain"
)

// QueryService is the read side: run history, snapshot reads, and cached
// compare results. Snapshots are immutable, so compare results cache safely;
// run history is invalidated by the ingestion path on new snapshots.
type QueryService struct {
	repo     domain.ListingRepository
	diff     *DiffService
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(repo domain.ListingRepository, diff *DiffService, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: repo, diff: diff, cache: cache, cacheTTL: ttl}
}

// RunHistory returns the last runs for a tracked URL, newest first. The list
// is cached for the TTL; ingestion drops the entry when a run produces a new
// snapshot.
func (s *QueryService) RunHistory(ctx context.Context, trackedURLID int64) ([]domain.ScrapeRun, error) {
	key := fmt.Sprintf("runs:%d", trackedURLID)
	var runs []domain.ScrapeRun
	if ok, _ := s.cache.Get(ctx, key, &runs); ok {
		return runs, nil
	}
	if _, err := s.repo.GetTrackedURL(ctx, trackedURLID); err != nil {
		return nil, err
	}
	runs, err := s.repo.ListRuns(ctx, trackedURLID, 10)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, runs, int(s.cacheTTL.Seconds()))
	return runs, nil
}

func (s *QueryService) GetSnapshot(ctx context.Context, id int64) (domain.SnapshotView, error) {
	key := fmt.Sprintf("snapshot:%d", id)
	var sv domain.SnapshotView
	if ok, _ := s.cache.Get(ctx, key, &sv); ok {
		return sv, nil
	}
	sv, err := s.repo.GetSnapshot(ctx, id)
	if err != nil {
		return domain.SnapshotView{}, err
	}
	_ = s.cache.Set(ctx, key, sv, int(s.cacheTTL.Seconds()))
	return sv, nil
}

func (s *QueryService) ListSnapshots(ctx context.Context, q domain.SnapshotsQuery) (domain.SnapshotsPage, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 300 {
		q.Limit = 300
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.ListSnapshots(ctx, q)
}

// Compare diffs two snapshot versions. Both snapshots are immutable, so the
// result is cached under the ordered id pair.
func (s *QueryService) Compare(ctx context.Context, fromID, toID int64) (domain.DiffResult, error) {
	key := fmt.Sprintf("diff:%d:%d", fromID, toID)
	var res domain.DiffResult
	if ok, _ := s.cache.Get(ctx, key, &res); ok {
		return res, nil
	}
	res, err := s.diff.Compare(ctx, fromID, toID)
	if err != nil {
		return domain.DiffResult{}, err
	}
	_ = s.cache.Set(ctx, key, res, int(s.cacheTTL.Seconds()))
	return res, nil
}
