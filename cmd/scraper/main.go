package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"room_watch/internal/adapters/apify"
	"room_watch/internal/adapters/observability"
	redisad "room_watch/internal/adapters/redis"
	"room_watch/internal/app"
	"room_watch/internal/shared"
	mysqlrepo "room_watch/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve(cfg.MetricsAddr)

	log.Info().
		Str("base", cfg.ApifyBase).
		Str("actor", cfg.RoomsActorID).
		Int("workers", cfg.SweepWorkers).
		Dur("interval", cfg.SweepInterval).
		Msg("scraper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ing := app.NewIngestionService(repo, cache)

	engine, err := apify.New(cfg.ApifyBase, cfg.ApifyToken, cfg.ApifyRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scraping engine client")
	}

	scraper := app.NewScrapeService(engine, repo, ing, app.ScrapeConfig{
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
	})

	// sweep once on boot, then on the interval until signalled
	sweep(ctx, scraper)
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scraper shutting down")
			return
		case <-ticker.C:
			sweep(ctx, scraper)
		}
	}
}

func sweep(ctx context.Context, s *app.ScrapeService) {
	start := time.Now()
	if err := s.ScheduledSweep(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("scheduled sweep completed")
}
