package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"room_watch/internal/adapters/observability"
	"room_watch/internal/domain"
)

// ScrapeConfig carries the orchestration knobs. Zero values fall back to the
// defaults below; the external engine's own limits stay authoritative.
type ScrapeConfig struct {
	RoomsActorID    string
	ReviewsActorID  string // empty disables the enrichment phase
	BatchSize       int
	InterBatchDelay time.Duration
	BatchTimeout    time.Duration
	PollInterval    time.Duration
	PrimaryTimeout  time.Duration
	MaxReviews      int
	ReviewWorkers   int
	SweepWorkers    int
}

func (c *ScrapeConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 2 * time.Second
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PrimaryTimeout <= 0 {
		c.PrimaryTimeout = 15 * time.Minute
	}
	if c.MaxReviews <= 0 {
		c.MaxReviews = 50
	}
	if c.ReviewWorkers <= 0 {
		c.ReviewWorkers = 3
	}
	if c.SweepWorkers <= 0 {
		c.SweepWorkers = 4
	}
}

// pollPolicy is the retry policy for waiting on an external job: poll on a
// fixed interval until the job reaches a terminal status or the timeout
// elapses, whichever first.
type pollPolicy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// ScrapeService owns the lifecycle of scrape runs: primary fetch, batched
// enrichment, merge, and run finalization. The engine client is injected at
// construction; there is no ambient singleton.
type ScrapeService struct {
	engine domain.ScrapeEngine
	repo   domain.ListingRepository
	ingest *IngestionService
	cfg    ScrapeConfig

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

func NewScrapeService(engine domain.ScrapeEngine, repo domain.ListingRepository, ingest *IngestionService, cfg ScrapeConfig) *ScrapeService {
	cfg.applyDefaults()
	return &ScrapeService{
		engine: engine,
		repo:   repo,
		ingest: ingest,
		cfg:    cfg,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// StartRun executes one scrape run for a tracked URL: NotFound if the source
// does not exist, otherwise the call blocks until the run reaches a terminal
// state. Primary-phase errors fail the run and are returned; enrichment
// failures only degrade the resulting snapshot.
func (s *ScrapeService) StartRun(ctx context.Context, trackedURLID int64) (domain.ScrapeRun, error) {
	src, err := s.repo.GetTrackedURL(ctx, trackedURLID)
	if err != nil {
		return domain.ScrapeRun{}, err
	}

	run, err := s.repo.CreateRun(ctx, trackedURLID)
	if err != nil {
		return domain.ScrapeRun{}, err
	}

	if err := s.execute(ctx, &run, src); err != nil {
		msg := s.describeFailure(err)
		if merr := s.repo.MarkRunFailed(ctx, run.ID, msg); merr != nil {
			log.Error().Err(merr).Int64("run_id", run.ID).Msg("mark run failed")
		}
		observability.ObserveScrapeRun("failed")
		return run, fmt.Errorf("scrape run %d: %s", run.ID, msg)
	}

	observability.ObserveScrapeRun("completed")
	return run, nil
}

// describeFailure rewrites an engine "actor not found" signal into a
// configuration hint naming the misconfigured setting; anything else passes
// through verbatim.
func (s *ScrapeService) describeFailure(err error) string {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "actor was not found") ||
		strings.Contains(strings.ToLower(msg), "actor not found") {
		ce := &domain.ConfigError{
			Setting: "APIFY_ACTOR_ID_ROOMS",
			Detail:  fmt.Sprintf("scraper actor %q not found", s.cfg.RoomsActorID),
		}
		return ce.Error()
	}
	return msg
}

func (s *ScrapeService) execute(ctx context.Context, run *domain.ScrapeRun, src domain.TrackedURL) error {
	if s.engine == nil {
		return &domain.ConfigError{Setting: "APIFY_TOKEN"}
	}
	if s.cfg.RoomsActorID == "" {
		return &domain.ConfigError{Setting: "APIFY_ACTOR_ID_ROOMS"}
	}

	handle, err := s.engine.RunJob(ctx, s.cfg.RoomsActorID, []string{src.URL}, nil)
	if err != nil {
		return err
	}
	if err := s.repo.MarkRunRunning(ctx, run.ID, handle.ID); err != nil {
		return err
	}
	run.Status = domain.RunRunning
	run.JobID = &handle.ID

	handle, err = s.waitForJob(ctx, handle, pollPolicy{Interval: s.cfg.PollInterval, Timeout: s.cfg.PrimaryTimeout})
	if err != nil {
		return err
	}
	if handle.Status != domain.JobSucceeded {
		return fmt.Errorf("scrape job %s finished with status %s", handle.ID, handle.Status)
	}

	listings, err := s.engine.FetchResults(ctx, handle.DatasetID)
	if err != nil {
		return err
	}
	log.Info().Int64("run_id", run.ID).Int("listings", len(listings)).Msg("primary scrape completed")

	if s.cfg.ReviewsActorID != "" && len(listings) > 0 {
		enriched := s.enrich(ctx, listings)
		listings = s.merge(listings, enriched)
	} else if s.cfg.ReviewsActorID == "" {
		log.Info().Msg("reviews actor not configured; skipping enrichment")
	}

	if err := s.repo.MarkRunCompleted(ctx, run.ID); err != nil {
		return err
	}
	run.Status = domain.RunCompleted

	if _, err := s.ingest.Ingest(ctx, src.ID, listings, run.ID); err != nil {
		return fmt.Errorf("ingest run %d results: %w", run.ID, err)
	}
	return nil
}

// waitForJob polls the engine until the job is terminal or the policy timeout
// elapses. Poll errors are logged and retried on the next tick; the loop
// never blocks past p.Timeout.
func (s *ScrapeService) waitForJob(ctx context.Context, handle domain.JobHandle, p pollPolicy) (domain.JobHandle, error) {
	deadline := s.now().Add(p.Timeout)
	for {
		cur, err := s.engine.PollJob(ctx, handle.ID)
		if err != nil {
			if ctx.Err() != nil {
				return handle, ctx.Err()
			}
			log.Warn().Err(err).Str("job_id", handle.ID).Msg("poll job status")
		} else {
			handle = cur
			if handle.Status.Terminal() {
				return handle, nil
			}
		}
		if !s.now().Before(deadline) {
			return handle, fmt.Errorf("job %s did not finish within %s", handle.ID, p.Timeout)
		}
		if !s.sleep(ctx, p.Interval) {
			return handle, ctx.Err()
		}
	}
}

// batchResult is one enrichment batch's outcome: records on success, a skip
// reason otherwise. Collecting outcomes keeps the continue-on-failure policy
// an explicit fold instead of exception control flow.
type batchResult struct {
	batch      int
	records    []map[string]any
	skipReason string
}

// enrich runs the reviews actor over room URLs in fixed-size sequential
// batches, respecting the inter-batch delay. A batch that fails, times out or
// returns nothing is skipped; enrichment never aborts the run.
func (s *ScrapeService) enrich(ctx context.Context, listings []map[string]any) []map[string]any {
	roomURLs := ExtractRoomURLs(listings)
	if len(roomURLs) == 0 {
		log.Warn().Msg("no room urls extracted; proceeding without reviews")
		return nil
	}

	total := (len(roomURLs) + s.cfg.BatchSize - 1) / s.cfg.BatchSize
	log.Info().Int("rooms", len(roomURLs)).Int("batches", total).Int("batch_size", s.cfg.BatchSize).
		Msg("starting review enrichment")

	results := make([]batchResult, 0, total)
	for i := 0; i < len(roomURLs); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(roomURLs) {
			end = len(roomURLs)
		}
		num := i/s.cfg.BatchSize + 1
		results = append(results, s.runBatch(ctx, num, roomURLs[i:end]))

		if end < len(roomURLs) {
			if !s.sleep(ctx, s.cfg.InterBatchDelay) {
				break
			}
		}
	}

	var all []map[string]any
	for _, r := range results {
		if r.skipReason != "" {
			observability.ObserveEnrichmentBatch(r.skipReason)
			log.Warn().Int("batch", r.batch).Str("reason", r.skipReason).Msg("enrichment batch skipped")
			continue
		}
		observability.ObserveEnrichmentBatch("ok")
		all = append(all, r.records...)
	}
	log.Info().Int("reviews", len(all)).Msg("review enrichment finished")
	return all
}

func (s *ScrapeService) runBatch(ctx context.Context, num int, urls []string) batchResult {
	params := map[string]any{
		"maxReviews":     s.cfg.MaxReviews,
		"maxConcurrency": s.cfg.ReviewWorkers,
	}
	handle, err := s.engine.RunJob(ctx, s.cfg.ReviewsActorID, urls, params)
	if err != nil {
		return batchResult{batch: num, skipReason: "start_failed"}
	}

	handle, err = s.waitForJob(ctx, handle, pollPolicy{Interval: s.cfg.PollInterval, Timeout: s.cfg.BatchTimeout})
	if err != nil {
		return batchResult{batch: num, skipReason: "timeout"}
	}
	if handle.Status != domain.JobSucceeded {
		return batchResult{batch: num, skipReason: "job_" + strings.ToLower(string(handle.Status))}
	}
	if handle.DatasetID == "" {
		return batchResult{batch: num, skipReason: "no_dataset"}
	}

	records, err := s.engine.FetchResults(ctx, handle.DatasetID)
	if err != nil {
		return batchResult{batch: num, skipReason: "fetch_failed"}
	}
	if len(records) == 0 {
		return batchResult{batch: num, skipReason: "empty"}
	}
	return batchResult{batch: num, records: records}
}

// merge attaches enrichment records to their listings by room id. Each
// enrichment record's id is resolved from its start URL, then the reviewee
// profile path, then a direct id field; each listing resolves its own id the
// same way. Unmatched records on either side are counted, not dropped.
func (s *ScrapeService) merge(listings, enriched []map[string]any) []map[string]any {
	byRoom := make(map[string][]any)
	unmatched := 0
	for _, rec := range enriched {
		id := enrichmentRoomID(rec)
		if id == "" {
			unmatched++
			continue
		}
		byRoom[id] = append(byRoom[id], rec)
	}
	if unmatched > 0 {
		log.Warn().Int("count", unmatched).Msg("enrichment records without a room id")
	}

	orphanListings := 0
	for _, listing := range listings {
		// same resolution as the enrichment side: URL field first, id fields
		// as the fallback
		id := ""
		if u, ok := ExtractRoomURL(listing); ok {
			id, _ = ExtractRoomID(u)
		}
		if id == "" {
			orphanListings++
			listing["reviews"] = []any{}
			continue
		}
		if matched, ok := byRoom[id]; ok {
			listing["reviews"] = matched
		} else {
			listing["reviews"] = []any{}
		}
	}
	if orphanListings > 0 {
		log.Warn().Int("count", orphanListings).Msg("listings without a resolvable room id")
	}
	return listings
}

// enrichmentRoomID resolves a review record's room id: its start URL first,
// then the reviewee profile path, then a direct id field.
func enrichmentRoomID(rec map[string]any) string {
	if u := firstString(rec, "startUrl", "start_url"); u != "" {
		if id, ok := ExtractRoomID(u); ok {
			return id
		}
	}
	if obj, ok := rec["startUrl"].(map[string]any); ok {
		if id, okk := ExtractRoomID(lookupStr(obj, "url")); okk {
			return id
		}
	}
	if reviewee, ok := rec["reviewee"].(map[string]any); ok {
		if p := firstString(reviewee, "profilePath", "profile_path"); p != "" {
			if id, okk := ExtractRoomID(p); okk {
				return id
			}
		}
	}
	if id := firstString(rec, "roomId", "room_id"); id != "" {
		return id
	}
	return ""
}

// ScheduledSweep scrapes every enabled tracked URL, isolating per-source
// failures. Runs execute concurrently up to SweepWorkers; sources share no
// mutable state beyond the store.
func (s *ScrapeService) ScheduledSweep(ctx context.Context) error {
	sources, err := s.repo.ListTrackedURLs(ctx, true)
	if err != nil {
		return err
	}
	log.Info().Int("sources", len(sources)).Msg("scheduled sweep starting")

	sem := semaphore.NewWeighted(int64(s.cfg.SweepWorkers))
	for _, src := range sources {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func(src domain.TrackedURL) {
			defer sem.Release(1)
			if _, err := s.StartRun(ctx, src.ID); err != nil {
				log.Warn().Err(err).Int64("tracked_url_id", src.ID).Msg("sweep run failed")
				return
			}
			log.Info().Int64("tracked_url_id", src.ID).Msg("sweep run ok")
		}(src)
	}
	// drain: acquire the full weight so all runs have finished
	if err := sem.Acquire(ctx, int64(s.cfg.SweepWorkers)); err != nil {
		return err
	}
	sem.Release(int64(s.cfg.SweepWorkers))
	return nil
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
