package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	// External scraping engine
	ApifyBase      string
	ApifyToken     string
	RoomsActorID   string
	ReviewsActorID string
	ApifyRPS       int

	// Orchestration
	BatchSize       int
	InterBatchDelay time.Duration
	BatchTimeout    time.Duration
	PollInterval    time.Duration
	PrimaryTimeout  time.Duration
	MaxReviews      int
	ReviewWorkers   int

	// Scheduled sweep
	SweepInterval time.Duration
	SweepWorkers  int
}

func Load() Config {
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	secs := func(k string, def int) time.Duration {
		return time.Duration(atoi(k, def)) * time.Second
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/roomwatch?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    secs("CACHE_TTL_SECONDS", 900),

		ApifyBase:      env("APIFY_BASE_URL", "https://api.apify.com"),
		ApifyToken:     env("APIFY_TOKEN", ""),
		RoomsActorID:   env("APIFY_ACTOR_ID_ROOMS", "tri_angle~airbnb-rooms-urls-scraper"),
		ReviewsActorID: env("APIFY_ACTOR_ID_REVIEWS", ""),
		ApifyRPS:       atoi("APIFY_RPS", 5),

		BatchSize:       atoi("BATCH_SIZE", 5),
		InterBatchDelay: secs("RATE_LIMIT_DELAY", 2),
		BatchTimeout:    secs("REVIEW_TIMEOUT", 300),
		PollInterval:    secs("REVIEW_POLL_INTERVAL", 10),
		PrimaryTimeout:  secs("PRIMARY_TIMEOUT", 900),
		MaxReviews:      atoi("MAX_REVIEWS_PER_LISTING", 50),
		ReviewWorkers:   atoi("REVIEW_CONCURRENCY", 3),

		SweepInterval: secs("SWEEP_INTERVAL_SECONDS", 86400),
		SweepWorkers:  atoi("SWEEP_WORKERS", 4),
	}
	if c.ApifyToken == "" {
		log.Warn().Msg("APIFY_TOKEN is empty; scrape runs will fail until it is set")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
