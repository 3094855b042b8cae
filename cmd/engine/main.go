package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	httpadapter "github.com/nycdangermap/incident-engine/internal/adapter/http"
	"github.com/nycdangermap/incident-engine/internal/adapter/mapbox"
	mongoadapter "github.com/nycdangermap/incident-engine/internal/adapter/mongo"
	"github.com/nycdangermap/incident-engine/internal/adapter/nycfeed"
	"github.com/nycdangermap/incident-engine/internal/config"
	"github.com/nycdangermap/incident-engine/internal/correlate"
	"github.com/nycdangermap/incident-engine/internal/engine"
	"github.com/nycdangermap/incident-engine/internal/notify"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"github.com/nycdangermap/incident-engine/internal/score"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := mongoadapter.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Error("mongodb connection failed", "error", err)
		os.Exit(1)
	}

	posts := store.Posts()
	comments := store.Comments()

	// Score source is fixed per deployment: rating-derived or comment-derived,
	// never both.
	var source score.Source
	switch cfg.ScoreSource {
	case config.ScoreSourceComments:
		source = score.SourceFunc(comments.CommentScores)
	default:
		source = score.SourceFunc(posts.RatingScores)
	}
	logger.Info("score aggregation configured", "source", cfg.ScoreSource)

	// Geocoder is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder mapbox.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled; address-only reports will be rejected")
	}

	index := proximity.NewIndex(posts)
	aggregator := score.NewAggregator(source, posts, metrics)
	dispatcher := notify.NewDispatcher(store.Users(), store.Notifications(), logger, metrics, cfg.NotifyTimeout)
	correlator := correlate.NewCorrelator(index, posts, comments, aggregator, logger, metrics)
	feed := nycfeed.NewClient(cfg.FeedURL, cfg.FeedPageSize, cfg.FeedTimeout, logger, metrics)

	eng := engine.New(
		posts,
		comments,
		store.Flags(),
		store.Notifications(),
		index,
		aggregator,
		dispatcher,
		geocoder,
		logger,
		metrics,
	)

	api := httpadapter.NewAPI(eng, correlator, feed, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, api, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Background feed correlation keeps the linked/unlinked metrics current.
	syncer := correlate.NewSyncer(feed, correlator, cfg.FeedSyncInterval, nil, logger)
	go func() {
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("feed sync error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("mongodb close error", "error", err)
	}

	logger.Info("shutdown complete")
}
