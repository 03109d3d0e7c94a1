package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"room_watch/internal/domain"
)

// ---- in-memory repository ----

type memRepo struct {
	mu sync.Mutex

	tracked  map[int64]domain.TrackedURL
	listings map[int64]domain.Listing // by listing id
	byURL    map[int64]int64          // tracked url id -> listing id
	snaps    map[int64]domain.Snapshot
	photos   map[int64][]domain.Photo          // by snapshot id
	reviews  map[int64]map[string]domain.Review // listing id -> review id -> review
	runs     map[int64]domain.ScrapeRun

	nextID int64

	failInsertSnapshot error
}

func newMemRepo() *memRepo {
	return &memRepo{
		tracked:  map[int64]domain.TrackedURL{},
		listings: map[int64]domain.Listing{},
		byURL:    map[int64]int64{},
		snaps:    map[int64]domain.Snapshot{},
		photos:   map[int64][]domain.Photo{},
		reviews:  map[int64]map[string]domain.Review{},
		runs:     map[int64]domain.ScrapeRun{},
	}
}

func (r *memRepo) id() int64 { r.nextID++; return r.nextID }

func (r *memRepo) CreateTrackedURL(ctx context.Context, url string) (domain.TrackedURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tracked {
		if t.URL == url {
			return domain.TrackedURL{}, domain.ErrConflict
		}
	}
	t := domain.TrackedURL{ID: r.id(), URL: url, Enabled: true, CreatedAt: time.Now().UTC()}
	r.tracked[t.ID] = t
	return t, nil
}

func (r *memRepo) GetTrackedURL(ctx context.Context, id int64) (domain.TrackedURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracked[id]
	if !ok {
		return domain.TrackedURL{}, domain.ErrNotFound
	}
	return t, nil
}

func (r *memRepo) ListTrackedURLs(ctx context.Context, enabledOnly bool) ([]domain.TrackedURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TrackedURL
	for id := int64(1); id <= r.nextID; id++ {
		t, ok := r.tracked[id]
		if !ok || (enabledOnly && !t.Enabled) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) SetTrackedURLEnabled(ctx context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracked[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Enabled = enabled
	r.tracked[id] = t
	return nil
}

func (r *memRepo) GetListingByTrackedURL(ctx context.Context, trackedURLID int64) (domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lid, ok := r.byURL[trackedURLID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return r.listings[lid], nil
}

func (r *memRepo) UpsertListing(ctx context.Context, l domain.Listing) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lid, ok := r.byURL[l.TrackedURLID]; ok {
		old := r.listings[lid]
		l.ID = lid
		// absent fields keep their previously captured values
		if l.ExternalID == nil {
			l.ExternalID = old.ExternalID
		}
		if l.Title == nil {
			l.Title = old.Title
		}
		if l.Description == nil {
			l.Description = old.Description
		}
		if l.Location == nil {
			l.Location = old.Location
		}
		r.listings[lid] = l
		return lid, nil
	}
	l.ID = r.id()
	r.listings[l.ID] = l
	r.byURL[l.TrackedURLID] = l.ID
	return l.ID, nil
}

func (r *memRepo) LatestSnapshotVersion(ctx context.Context, listingID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, s := range r.snaps {
		if s.ListingID == listingID && s.Version > max {
			max = s.Version
		}
	}
	return max, nil
}

func (r *memRepo) InsertSnapshot(ctx context.Context, s domain.Snapshot, photos []domain.Photo) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsertSnapshot != nil {
		return 0, r.failInsertSnapshot
	}
	for _, existing := range r.snaps {
		if existing.ListingID == s.ListingID && existing.Version == s.Version {
			return 0, domain.ErrConflict
		}
	}
	s.ID = r.id()
	s.CreatedAt = time.Now().UTC()
	r.snaps[s.ID] = s
	for i := range photos {
		photos[i].ID = r.id()
		photos[i].SnapshotID = s.ID
	}
	r.photos[s.ID] = photos
	return s.ID, nil
}

func (r *memRepo) GetSnapshot(ctx context.Context, id int64) (domain.SnapshotView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snaps[id]
	if !ok {
		return domain.SnapshotView{}, domain.ErrNotFound
	}
	sv := domain.SnapshotView{Snapshot: s, Photos: r.photos[id]}
	for _, rv := range r.reviews[s.ListingID] {
		if rv.SnapshotID == id {
			sv.Reviews = append(sv.Reviews, rv)
		}
	}
	return sv, nil
}

func (r *memRepo) ListSnapshots(ctx context.Context, q domain.SnapshotsQuery) (domain.SnapshotsPage, error) {
	r.mu.Lock()
	ids := make([]int64, 0)
	for id, s := range r.snaps {
		if s.ListingID == q.ListingID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	page := domain.SnapshotsPage{Page: q.Page, Limit: q.Limit, Total: len(ids)}
	if q.Limit > 0 {
		page.TotalPages = (len(ids) + q.Limit - 1) / q.Limit
	}
	for _, id := range ids {
		sv, err := r.GetSnapshot(ctx, id)
		if err != nil {
			return domain.SnapshotsPage{}, err
		}
		page.Items = append(page.Items, sv)
	}
	return page, nil
}

func (r *memRepo) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range rs {
		byID := r.reviews[rv.ListingID]
		if byID == nil {
			byID = map[string]domain.Review{}
			r.reviews[rv.ListingID] = byID
		}
		if old, ok := byID[rv.ReviewID]; ok {
			// keep first-seen identity fields, refresh linkage and content
			old.SnapshotID = rv.SnapshotID
			old.Rating = rv.Rating
			old.Comment = rv.Comment
			byID[rv.ReviewID] = old
			continue
		}
		rv.ID = r.id()
		byID[rv.ReviewID] = rv
	}
	return nil
}

func (r *memRepo) CreateRun(ctx context.Context, trackedURLID int64) (domain.ScrapeRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := domain.ScrapeRun{ID: r.id(), TrackedURLID: trackedURLID, Status: domain.RunPending, StartedAt: time.Now().UTC()}
	r.runs[run.ID] = run
	return run, nil
}

func (r *memRepo) MarkRunRunning(ctx context.Context, runID int64, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[runID]
	run.Status = domain.RunRunning
	run.JobID = &jobID
	r.runs[runID] = run
	return nil
}

func (r *memRepo) MarkRunCompleted(ctx context.Context, runID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[runID]
	run.Status = domain.RunCompleted
	now := time.Now().UTC()
	run.EndedAt = &now
	r.runs[runID] = run
	return nil
}

func (r *memRepo) MarkRunFailed(ctx context.Context, runID int64, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[runID]
	run.Status = domain.RunFailed
	run.Error = &msg
	now := time.Now().UTC()
	run.EndedAt = &now
	r.runs[runID] = run
	return nil
}

func (r *memRepo) LinkRunSnapshot(ctx context.Context, runID, snapshotID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[runID]
	run.SnapshotID = &snapshotID
	r.runs[runID] = run
	return nil
}

func (r *memRepo) ListRuns(ctx context.Context, trackedURLID int64, limit int) ([]domain.ScrapeRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScrapeRun
	for id := r.nextID; id >= 1 && len(out) < limit; id-- {
		run, ok := r.runs[id]
		if ok && run.TrackedURLID == trackedURLID {
			out = append(out, run)
		}
	}
	return out, nil
}

// ---- cache fake (JSON round-trip, like the real adapter) ----

type memCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newMemCache() *memCache { return &memCache{store: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = b
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- scripted engine ----

// scriptedEngine returns canned job handles and datasets. Jobs progress
// through their status sequence one PollJob call at a time.
type scriptedEngine struct {
	mu sync.Mutex

	runErr   map[string]error             // actor id -> error on RunJob
	statuses map[string][]domain.JobStatus // job id -> poll sequence
	datasets map[string][]map[string]any  // dataset id -> records
	fetchErr map[string]error

	jobSeq   int
	runCalls []engineRunCall
}

type engineRunCall struct {
	actorID string
	urls    []string
	params  map[string]any
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		runErr:   map[string]error{},
		statuses: map[string][]domain.JobStatus{},
		datasets: map[string][]map[string]any{},
		fetchErr: map[string]error{},
	}
}

// script registers the next job in start order: its polls walk through seq,
// sticking on the last status, with records under the matching dataset id.
func (e *scriptedEngine) script(records []map[string]any, seq ...domain.JobStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobSeq++
	jobID := fmt.Sprintf("job-%d", e.jobSeq)
	dsID := fmt.Sprintf("ds-%d", e.jobSeq)
	e.statuses[jobID] = seq
	e.datasets[dsID] = records
}

func (e *scriptedEngine) RunJob(ctx context.Context, actorID string, seedURLs []string, params map[string]any) (domain.JobHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runCalls = append(e.runCalls, engineRunCall{actorID: actorID, urls: seedURLs, params: params})
	if err := e.runErr[actorID]; err != nil {
		return domain.JobHandle{}, err
	}
	n := len(e.runCalls)
	return domain.JobHandle{ID: fmt.Sprintf("job-%d", n), DatasetID: fmt.Sprintf("ds-%d", n), Status: domain.JobReady}, nil
}

func (e *scriptedEngine) PollJob(ctx context.Context, jobID string) (domain.JobHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.statuses[jobID]
	if len(seq) == 0 {
		return domain.JobHandle{ID: jobID, Status: domain.JobRunning}, nil
	}
	st := seq[0]
	if len(seq) > 1 {
		e.statuses[jobID] = seq[1:]
	}
	h := domain.JobHandle{ID: jobID, Status: st}
	if st.Terminal() {
		h.DatasetID = "ds-" + jobID[len("job-"):]
	}
	return h, nil
}

func (e *scriptedEngine) FetchResults(ctx context.Context, datasetID string) ([]map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fetchErr[datasetID]; err != nil {
		return nil, err
	}
	return e.datasets[datasetID], nil
}

// newTestScrapeService wires a ScrapeService over fakes with instant sleeps.
func newTestScrapeService(engine domain.ScrapeEngine, repo domain.ListingRepository, cfg ScrapeConfig) (*ScrapeService, *IngestionService) {
	ing := NewIngestionService(repo, newMemCache())
	s := NewScrapeService(engine, repo, ing, cfg)
	s.sleep = func(ctx context.Context, d time.Duration) bool { return true }
	return s, ing
}
