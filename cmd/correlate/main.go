// Command correlate audits the NYC Open Data shooting feed against a running
// deployment's posts collection. It fetches one or more feed pages, reports
// record quality (skipped rows, out-of-bounds coordinates, borough mix), and
// — when a MongoDB URI is given — resolves each incident to report how many
// already have a discussion post.
//
// Usage:
//
//	go run ./cmd/correlate \
//	  -pages 2 -page-size 500 \
//	  -mongo-uri mongodb://localhost:27017 -mongo-db dangermap
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/nycdangermap/incident-engine/internal/adapter/mongo"
	"github.com/nycdangermap/incident-engine/internal/adapter/nycfeed"
	"github.com/nycdangermap/incident-engine/internal/correlate"
	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"github.com/nycdangermap/incident-engine/internal/score"
)

func main() {
	feedURL := flag.String("feed-url", "https://data.cityofnewyork.us/resource/833y-fsy8.json", "SODA feed endpoint")
	pages := flag.Int("pages", 1, "number of feed pages to fetch")
	pageSize := flag.Int("page-size", 500, "records per page")
	mongoURI := flag.String("mongo-uri", "", "optional MongoDB URI for correlation against stored posts")
	mongoDB := flag.String("mongo-db", "dangermap", "MongoDB database name")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	flag.Parse()

	if err := run(*feedURL, *pages, *pageSize, *mongoURI, *mongoDB, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(feedURL string, pages, pageSize int, mongoURI, mongoDB string, timeout time.Duration) error {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()

	feed := nycfeed.NewClient(feedURL, pageSize, timeout, logger, metrics)

	fmt.Println("=== NYC Shooting Feed Audit ===")
	fmt.Println()

	var incidents []domain.ExternalIncident
	for page := 0; page < pages; page++ {
		batch, err := feed.FetchPage(ctx, page*pageSize)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		fmt.Printf("page %d: %d usable records\n", page, len(batch))
		incidents = append(incidents, batch...)
		if len(batch) < pageSize {
			break
		}
	}

	printFeedStats(incidents)

	if mongoURI == "" {
		fmt.Println("\nNo -mongo-uri given; skipping correlation.")
		return nil
	}
	return correlateAgainstStore(ctx, incidents, mongoURI, mongoDB, logger, metrics)
}

func printFeedStats(incidents []domain.ExternalIncident) {
	boroughs := map[string]int{}
	outOfBounds := 0
	for _, inc := range incidents {
		boroughs[inc.Borough]++
		if !domain.InNYCBounds(inc.Geo) {
			outOfBounds++
		}
	}

	fmt.Printf("\nTotal usable incidents: %d\n", len(incidents))
	fmt.Printf("Outside NYC bounds: %d\n", outOfBounds)

	names := make([]string, 0, len(boroughs))
	for b := range boroughs {
		names = append(names, b)
	}
	sort.Strings(names)
	fmt.Print("By borough: ")
	for _, b := range names {
		fmt.Printf("%s=%d ", b, boroughs[b])
	}
	fmt.Println()
}

func correlateAgainstStore(ctx context.Context, incidents []domain.ExternalIncident, uri, db string, logger *slog.Logger, metrics *observability.Metrics) error {
	store, err := mongo.Connect(ctx, uri, db, logger)
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	defer store.Close(ctx) //nolint:errcheck // audit tool exit path

	posts := store.Posts()
	aggregator := score.NewAggregator(score.SourceFunc(posts.RatingScores), posts, metrics)
	correlator := correlate.NewCorrelator(proximity.NewIndex(posts), posts, store.Comments(), aggregator, logger, metrics)

	linked, unlinked := 0, 0
	for _, inc := range incidents {
		res, err := correlator.Resolve(ctx, inc)
		if err != nil {
			return fmt.Errorf("resolve incident %s: %w", inc.Key, err)
		}
		if res.Linked {
			linked++
		} else {
			unlinked++
		}
	}

	fmt.Printf("\nCorrelation against %s/%s:\n", uri, db)
	fmt.Printf("  linked (existing discussion): %d\n", linked)
	fmt.Printf("  unlinked (no discussion yet): %d\n", unlinked)
	return nil
}
