package mysql

const insertTrackedURLSQL = `
INSERT INTO tracked_urls (url, enabled) VALUES (?, TRUE)
`

const getTrackedURLSQL = `
SELECT id, url, enabled, created_at FROM tracked_urls WHERE id = ?
`

const listTrackedURLsSQL = `
SELECT id, url, enabled, created_at FROM tracked_urls
`

const setTrackedURLEnabledSQL = `
UPDATE tracked_urls SET enabled = ? WHERE id = ?
`

const getListingByTrackedURLSQL = `
SELECT id, tracked_url_id, external_id, title, description, location
FROM listings WHERE tracked_url_id = ?
`

// Listings mutate in place. A scrape that omits an identity field must not
// erase the value a previous scrape captured.
const upsertListingSQL = `
INSERT INTO listings (tracked_url_id, external_id, title, description, location)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  external_id = COALESCE(VALUES(external_id), listings.external_id),
  title       = COALESCE(VALUES(title), listings.title),
  description = COALESCE(VALUES(description), listings.description),
  location    = COALESCE(VALUES(location), listings.location),
  id          = LAST_INSERT_ID(id)
`

const latestVersionSQL = `
SELECT COALESCE(MAX(version), 0) FROM snapshots WHERE listing_id = ?
`

// The unique key on (listing_id, version) is what surfaces version races as
// conflicts.
const insertSnapshotSQL = `
INSERT INTO snapshots
  (listing_id, version, description, amenities, price, currency, rating, review_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const insertPhotoSQL = `
INSERT INTO photos (listing_id, snapshot_id, url, caption, sort_order)
VALUES (?, ?, ?, ?, ?)
`

// Re-ingesting a known review id re-links it to the new snapshot and updates
// rating/comment; reviewer, avatar and date stay as first seen.
const upsertReviewSQL = `
INSERT INTO reviews
  (listing_id, snapshot_id, review_id, reviewer_name, reviewer_avatar, rating, comment, review_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  snapshot_id = VALUES(snapshot_id),
  rating      = VALUES(rating),
  comment     = VALUES(comment)
`

const getSnapshotSQL = `
SELECT id, listing_id, version, description, amenities, price, currency, rating, review_count, created_at
FROM snapshots WHERE id = ?
`

const listSnapshotPhotosSQL = `
SELECT id, listing_id, snapshot_id, url, caption, sort_order
FROM photos WHERE snapshot_id = ? ORDER BY sort_order ASC
`

const listSnapshotReviewsSQL = `
SELECT id, listing_id, snapshot_id, review_id, reviewer_name, reviewer_avatar, rating, comment, review_date
FROM reviews WHERE snapshot_id = ? ORDER BY review_date DESC, id DESC
`

const insertRunSQL = `
INSERT INTO scrape_runs (tracked_url_id, status) VALUES (?, 'pending')
`

const markRunRunningSQL = `
UPDATE scrape_runs SET status = 'running', job_id = ? WHERE id = ?
`

const markRunCompletedSQL = `
UPDATE scrape_runs SET status = 'completed', ended_at = CURRENT_TIMESTAMP WHERE id = ?
`

const markRunFailedSQL = `
UPDATE scrape_runs SET status = 'failed', error = ?, ended_at = CURRENT_TIMESTAMP WHERE id = ?
`

const linkRunSnapshotSQL = `
UPDATE scrape_runs SET snapshot_id = ? WHERE id = ?
`

const listRunsSQL = `
SELECT id, tracked_url_id, status, job_id, error, snapshot_id, started_at, ended_at
FROM scrape_runs
WHERE tracked_url_id = ?
ORDER BY started_at DESC, id DESC
LIMIT ?
`
