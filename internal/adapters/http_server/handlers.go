// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"room_watch/internal/app"
	"room_watch/internal/domain"
)

type Handlers struct {
	Sources *app.SourceService
	Scraper *app.ScrapeService
	Ingest  *app.IngestionService
	Q       *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/tracked-urls", h.createTrackedURL)
	s.mux.Get("/v1/tracked-urls", h.listTrackedURLs)
	s.mux.Patch("/v1/tracked-urls/{id}", h.patchTrackedURL)
	s.mux.Post("/v1/tracked-urls/{id}/scrape", h.triggerScrape)
	s.mux.Post("/v1/tracked-urls/{id}/ingest", h.ingestRecords)
	s.mux.Get("/v1/tracked-urls/{id}/runs", h.listRuns)

	s.mux.Get("/v1/listings/{id}/snapshots", h.listSnapshots)
	s.mux.Get("/v1/snapshots/compare", h.compareSnapshots)
	s.mux.Get("/v1/snapshots/{id}", h.getSnapshot)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain sentinels onto HTTP problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrListingMismatch):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// ---- tracked urls ----

func (h *Handlers) createTrackedURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be JSON with a non-empty url")
		return
	}
	t, err := h.Sources.Track(r.Context(), body.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) listTrackedURLs(w http.ResponseWriter, r *http.Request) {
	out, err := h.Sources.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []domain.TrackedURL{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) patchTrackedURL(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be JSON with an enabled flag")
		return
	}
	if err := h.Sources.SetEnabled(r.Context(), id, *body.Enabled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- scraping and ingestion ----

// triggerScrape kicks off a run in the background; scrapes run for minutes
// and cannot complete inside the request timeout. Progress is visible via
// the runs endpoint.
func (h *Handlers) triggerScrape(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	if _, err := h.Sources.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := h.Scraper.StartRun(ctx, id); err != nil {
			log.Error().Err(err).Int64("tracked_url_id", id).Msg("background scrape run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"tracked_url_id": id, "status": "accepted"})
}

func (h *Handlers) ingestRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	var records []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be a JSON array of scraped records")
		return
	}
	snap, err := h.Ingest.Ingest(r.Context(), id, records, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	out, err := h.Q.RunHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []domain.ScrapeRun{}
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- snapshots ----

func (h *Handlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}

	q := domain.SnapshotsQuery{ListingID: id}
	if ps := r.URL.Query().Get("page"); ps != "" {
		p, err := strconv.Atoi(ps)
		if err != nil || p <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid page", "page must be a positive integer")
			return
		}
		q.Page = p
	}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 300 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 300")
			return
		}
		q.Limit = l
	}
	var err error
	if q.Start, err = parseDate(r.URL.Query().Get("start"), false); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid start", "start must be a YYYY-MM-DD date")
		return
	}
	if q.End, err = parseDate(r.URL.Query().Get("end"), true); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid end", "end must be a YYYY-MM-DD date")
		return
	}

	out, err := h.Q.ListSnapshots(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

// parseDate accepts YYYY-MM-DD; end dates cover the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func (h *Handlers) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	sv, err := h.Q.GetSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, sv)
}

func (h *Handlers) compareSnapshots(w http.ResponseWriter, r *http.Request) {
	fromID, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	toID, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err1 != nil || err2 != nil || fromID <= 0 || toID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "from and to must be positive snapshot ids")
		return
	}
	out, err := h.Q.Compare(r.Context(), fromID, toID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}
