package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"room_watch/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

const mysqlDupEntry = 1062

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- tracked urls ----

func (r *Repo) CreateTrackedURL(ctx context.Context, url string) (domain.TrackedURL, error) {
	res, err := r.db.ExecContext(ctx, insertTrackedURLSQL, url)
	if err != nil {
		if isDupEntry(err) {
			return domain.TrackedURL{}, domain.ErrConflict
		}
		return domain.TrackedURL{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.TrackedURL{}, err
	}
	return r.GetTrackedURL(ctx, id)
}

func (r *Repo) GetTrackedURL(ctx context.Context, id int64) (domain.TrackedURL, error) {
	var t domain.TrackedURL
	err := r.db.QueryRowContext(ctx, getTrackedURLSQL, id).
		Scan(&t.ID, &t.URL, &t.Enabled, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.TrackedURL{}, domain.ErrNotFound
	}
	return t, err
}

func (r *Repo) ListTrackedURLs(ctx context.Context, enabledOnly bool) ([]domain.TrackedURL, error) {
	q := listTrackedURLsSQL
	if enabledOnly {
		q += " WHERE enabled = TRUE"
	}
	q += " ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TrackedURL
	for rows.Next() {
		var t domain.TrackedURL
		if err := rows.Scan(&t.ID, &t.URL, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) SetTrackedURLEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, setTrackedURLEnabledSQL, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTrackedURL(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ---- listings ----

func (r *Repo) GetListingByTrackedURL(ctx context.Context, trackedURLID int64) (domain.Listing, error) {
	var l domain.Listing
	var extID, title, desc, loc sql.NullString
	err := r.db.QueryRowContext(ctx, getListingByTrackedURLSQL, trackedURLID).
		Scan(&l.ID, &l.TrackedURLID, &extID, &title, &desc, &loc)
	if err == sql.ErrNoRows {
		return domain.Listing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Listing{}, err
	}
	l.ExternalID = nullStr(extID)
	l.Title = nullStr(title)
	l.Description = nullStr(desc)
	l.Location = nullStr(loc)
	return l, nil
}

func (r *Repo) UpsertListing(ctx context.Context, l domain.Listing) (int64, error) {
	res, err := r.db.ExecContext(ctx, upsertListingSQL,
		l.TrackedURLID,
		valStr(l.ExternalID),
		valStr(l.Title),
		valStr(l.Description),
		valStr(l.Location),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---- snapshots ----

func (r *Repo) LatestSnapshotVersion(ctx context.Context, listingID int64) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, latestVersionSQL, listingID).Scan(&v)
	return v, err
}

func (r *Repo) InsertSnapshot(ctx context.Context, s domain.Snapshot, photos []domain.Photo) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	amen, _ := json.Marshal(s.Amenities)
	res, err := tx.ExecContext(ctx, insertSnapshotSQL,
		s.ListingID,
		s.Version,
		valStr(s.Description),
		string(amen),
		valF64(s.Price),
		valStr(s.Currency),
		valF64(s.Rating),
		valInt(s.ReviewCount),
	)
	if err != nil {
		if isDupEntry(err) {
			return 0, domain.ErrConflict
		}
		return 0, err
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, p := range photos {
		if _, err := tx.ExecContext(ctx, insertPhotoSQL,
			p.ListingID, snapID, p.URL, valStr(p.Caption), p.Order,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return snapID, nil
}

func (r *Repo) GetSnapshot(ctx context.Context, id int64) (domain.SnapshotView, error) {
	var sv domain.SnapshotView
	var desc, currency sql.NullString
	var amenitiesJSON []byte
	var price, rating sql.NullFloat64
	var reviewCount sql.NullInt64

	err := r.db.QueryRowContext(ctx, getSnapshotSQL, id).Scan(
		&sv.ID, &sv.ListingID, &sv.Version,
		&desc, &amenitiesJSON, &price, &currency, &rating, &reviewCount,
		&sv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.SnapshotView{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SnapshotView{}, err
	}
	sv.Description = nullStr(desc)
	sv.Currency = nullStr(currency)
	if price.Valid {
		f := price.Float64
		sv.Price = &f
	}
	if rating.Valid {
		f := rating.Float64
		sv.Rating = &f
	}
	if reviewCount.Valid {
		n := int(reviewCount.Int64)
		sv.ReviewCount = &n
	}
	// older rows persisted amenity objects or a single string; tolerate all
	// three shapes
	if err := json.Unmarshal(amenitiesJSON, &sv.Amenities); err != nil {
		var mixed []any
		var flat string
		switch {
		case json.Unmarshal(amenitiesJSON, &mixed) == nil:
			sv.Amenities = domain.NormalizeAmenities(mixed)
		case json.Unmarshal(amenitiesJSON, &flat) == nil:
			sv.Amenities = domain.ParseAmenityList(flat)
		}
	}

	if sv.Photos, err = r.snapshotPhotos(ctx, id); err != nil {
		return domain.SnapshotView{}, err
	}
	if sv.Reviews, err = r.snapshotReviews(ctx, id); err != nil {
		return domain.SnapshotView{}, err
	}
	return sv, nil
}

func (r *Repo) snapshotPhotos(ctx context.Context, snapshotID int64) ([]domain.Photo, error) {
	rows, err := r.db.QueryContext(ctx, listSnapshotPhotosSQL, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Photo
	for rows.Next() {
		var p domain.Photo
		var caption sql.NullString
		if err := rows.Scan(&p.ID, &p.ListingID, &p.SnapshotID, &p.URL, &caption, &p.Order); err != nil {
			return nil, err
		}
		p.Caption = nullStr(caption)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) snapshotReviews(ctx context.Context, snapshotID int64) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listSnapshotReviewsSQL, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var name, avatar, comment sql.NullString
		var rating sql.NullInt64
		var date sql.NullTime
		if err := rows.Scan(&rv.ID, &rv.ListingID, &rv.SnapshotID, &rv.ReviewID,
			&name, &avatar, &rating, &comment, &date); err != nil {
			return nil, err
		}
		rv.ReviewerName = nullStr(name)
		rv.ReviewerAvatar = nullStr(avatar)
		rv.Comment = nullStr(comment)
		if rating.Valid {
			n := int(rating.Int64)
			rv.Rating = &n
		}
		if date.Valid {
			d := date.Time
			rv.Date = &d
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ListSnapshots(ctx context.Context, q domain.SnapshotsQuery) (domain.SnapshotsPage, error) {
	where := "WHERE listing_id = ?"
	args := []any{q.ListingID}
	if q.Start != nil {
		where += " AND created_at >= ?"
		args = append(args, *q.Start)
	}
	if q.End != nil {
		where += " AND created_at <= ?"
		args = append(args, *q.End)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshots "+where, args...).Scan(&total); err != nil {
		return domain.SnapshotsPage{}, err
	}

	offset := (q.Page - 1) * q.Limit
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM snapshots `+where+`
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`, append(append([]any{}, args...), q.Limit, offset)...)
	if err != nil {
		return domain.SnapshotsPage{}, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.SnapshotsPage{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.SnapshotsPage{}, err
	}

	page := domain.SnapshotsPage{Page: q.Page, Limit: q.Limit, Total: total}
	if q.Limit > 0 {
		page.TotalPages = (total + q.Limit - 1) / q.Limit
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

// ---- reviews ----

func (r *Repo) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rv := range rs {
		if _, err := tx.ExecContext(ctx, upsertReviewSQL,
			rv.ListingID,
			rv.SnapshotID,
			rv.ReviewID,
			valStr(rv.ReviewerName),
			valStr(rv.ReviewerAvatar),
			valInt(rv.Rating),
			valStr(rv.Comment),
			valTime(rv.Date),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- scrape runs ----

func (r *Repo) CreateRun(ctx context.Context, trackedURLID int64) (domain.ScrapeRun, error) {
	res, err := r.db.ExecContext(ctx, insertRunSQL, trackedURLID)
	if err != nil {
		return domain.ScrapeRun{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ScrapeRun{}, err
	}
	return domain.ScrapeRun{
		ID:           id,
		TrackedURLID: trackedURLID,
		Status:       domain.RunPending,
		StartedAt:    time.Now().UTC(),
	}, nil
}

func (r *Repo) MarkRunRunning(ctx context.Context, runID int64, jobID string) error {
	_, err := r.db.ExecContext(ctx, markRunRunningSQL, jobID, runID)
	return err
}

func (r *Repo) MarkRunCompleted(ctx context.Context, runID int64) error {
	_, err := r.db.ExecContext(ctx, markRunCompletedSQL, runID)
	return err
}

func (r *Repo) MarkRunFailed(ctx context.Context, runID int64, msg string) error {
	// error text is free-form; keep it within the column
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	_, err := r.db.ExecContext(ctx, markRunFailedSQL, msg, runID)
	return err
}

func (r *Repo) LinkRunSnapshot(ctx context.Context, runID, snapshotID int64) error {
	_, err := r.db.ExecContext(ctx, linkRunSnapshotSQL, snapshotID, runID)
	return err
}

func (r *Repo) ListRuns(ctx context.Context, trackedURLID int64, limit int) ([]domain.ScrapeRun, error) {
	rows, err := r.db.QueryContext(ctx, listRunsSQL, trackedURLID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScrapeRun
	for rows.Next() {
		var run domain.ScrapeRun
		var status string
		var jobID, errText sql.NullString
		var snapID sql.NullInt64
		var endedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.TrackedURLID, &status, &jobID, &errText,
			&snapID, &run.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		run.Status = domain.RunStatus(status)
		run.JobID = nullStr(jobID)
		run.Error = nullStr(errText)
		if snapID.Valid {
			v := snapID.Int64
			run.SnapshotID = &v
		}
		if endedAt.Valid {
			t := endedAt.Time
			run.EndedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func nullStr(v sql.NullString) *string {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	s := v.String
	return &s
}
