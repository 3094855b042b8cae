package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ScoreSource selects which score set feeds aggregation. The two variants are
// mutually exclusive per deployment; a post's scores never mix sources.
const (
	ScoreSourceRatings  = "ratings"
	ScoreSourceComments = "comments"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	MongoURI        string
	MongoDatabase   string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ScoreSource string

	// Notification fan-out runs detached from the triggering request; this
	// bounds how long one dispatch may take.
	NotifyTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// NYC Open Data incident feed configuration.
	FeedURL          string
	FeedTimeout      time.Duration
	FeedPageSize     int
	FeedSyncInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := parseDuration("NOTIFY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("NYC_FEED_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	feedSyncInterval, err := parseDuration("NYC_FEED_SYNC_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}

	feedPageSize, err := parsePositiveInt("NYC_FEED_PAGE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		MongoURI:        envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   envOrDefault("MONGO_DB", "dangermap"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ScoreSource:   envOrDefault("SCORE_SOURCE", ScoreSourceRatings),
		NotifyTimeout: notifyTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		FeedURL:          envOrDefault("NYC_FEED_URL", "https://data.cityofnewyork.us/resource/833y-fsy8.json"),
		FeedTimeout:      feedTimeout,
		FeedPageSize:     feedPageSize,
		FeedSyncInterval: feedSyncInterval,
	}

	if cfg.MongoURI == "" {
		return nil, errors.New("MONGO_URI is required")
	}
	if cfg.MongoDatabase == "" {
		return nil, errors.New("MONGO_DB is required")
	}
	if cfg.ScoreSource != ScoreSourceRatings && cfg.ScoreSource != ScoreSourceComments {
		return nil, fmt.Errorf("SCORE_SOURCE must be %q or %q", ScoreSourceRatings, ScoreSourceComments)
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.FeedURL == "" {
		return nil, errors.New("NYC_FEED_URL is required")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
