package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomwatch", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "external_requests_total", Help: "Outbound engine requests."},
		[]string{"service", "method", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomwatch", Name: "external_request_duration_seconds",
			Help:    "Outbound engine request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)
	ScrapeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "scrape_runs_total", Help: "Scrape runs by terminal status."},
		[]string{"status"}, // completed|failed
	)
	EnrichmentBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "enrichment_batches_total", Help: "Enrichment batches by outcome."},
		[]string{"outcome"}, // ok|timeout|empty|...
	)
	IngestedPhotos = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "ingested_photos_total", Help: "Photos persisted by ingestion."},
	)
	IngestedReviews = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "ingested_reviews_total", Help: "Reviews upserted by ingestion."},
	)
	Snapshots = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "snapshots_total", Help: "Snapshots created."},
	)
	Compares = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "snapshot_compares_total", Help: "Snapshot diffs computed."},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomwatch", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"},
	)
)

// Serve exposes the default prometheus handler on its own listener. An empty
// addr disables it.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency,
		ExternalRequests, ExternalLatency,
		ScrapeRuns, EnrichmentBatches,
		IngestedPhotos, IngestedReviews, Snapshots, Compares,
		CacheEvents,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, method string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, method).Observe(dur.Seconds())
}

func ObserveScrapeRun(status string) { ScrapeRuns.WithLabelValues(status).Inc() }

func ObserveEnrichmentBatch(outcome string) { EnrichmentBatches.WithLabelValues(outcome).Inc() }

func ObserveIngest(photos, reviews int) {
	Snapshots.Inc()
	IngestedPhotos.Add(float64(photos))
	IngestedReviews.Add(float64(reviews))
}

func ObserveCompare() { Compares.Inc() }

func ObserveCache(cache, event string) { CacheEvents.WithLabelValues(cache, event).Inc() }
