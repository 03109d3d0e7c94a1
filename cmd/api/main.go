package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"room_watch/internal/adapters/apify"
	server "room_watch/internal/adapters/http_server"
	"room_watch/internal/adapters/observability"
	redisad "room_watch/internal/adapters/redis"
	"room_watch/internal/app"
	"room_watch/internal/domain"
	"room_watch/internal/shared"
	mysqlrepo "room_watch/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ing := app.NewIngestionService(repo, cache)

	// the engine is optional at boot; runs fail with a config hint otherwise
	var engine *apify.Client
	if cfg.ApifyToken != "" {
		if engine, err = apify.New(cfg.ApifyBase, cfg.ApifyToken, cfg.ApifyRPS); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize scraping engine client")
		}
	}
	scraper := app.NewScrapeService(engineOrNil(engine), repo, ing, scrapeConfig(cfg))

	diff := app.NewDiffService(repo)
	q := app.NewQueryService(repo, diff, cache, cfg.CacheTTL)
	sources := app.NewSourceService(repo)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Sources: sources,
		Scraper: scraper,
		Ingest:  ing,
		Q:       q,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// engineOrNil avoids handing a typed-nil *apify.Client to an interface field.
func engineOrNil(c *apify.Client) domain.ScrapeEngine {
	if c == nil {
		return nil
	}
	return c
}

func scrapeConfig(cfg shared.Config) app.ScrapeConfig {
	return app.ScrapeConfig{
		RoomsActorID:    cfg.RoomsActorID,
		ReviewsActorID:  cfg.ReviewsActorID,
		BatchSize:       cfg.BatchSize,
		InterBatchDelay: cfg.InterBatchDelay,
		BatchTimeout:    cfg.BatchTimeout,
		PollInterval:    cfg.PollInterval,
		PrimaryTimeout:  cfg.PrimaryTimeout,
		MaxReviews:      cfg.MaxReviews,
		ReviewWorkers:   cfg.ReviewWorkers,
		SweepWorkers:    cfg.SweepWorkers,
	}
}
