// Package nycfeed pulls shooting incident records from the NYC Open Data
// SODA endpoint. Records are parsed into ephemeral incidents; the feed is
// never mirrored into storage.
package nycfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
)

// Client fetches incident pages from the SODA API.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a feed client. pageSize is the SODA $limit per request.
func NewClient(baseURL string, pageSize int, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:  baseURL,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchRecent returns the most recent incidents, newest occurrence first.
// Records missing usable coordinates are skipped, not errors.
func (c *Client) FetchRecent(ctx context.Context) ([]domain.ExternalIncident, error) {
	return c.FetchPage(ctx, 0)
}

// FetchPage fetches one page at the given record offset.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]domain.ExternalIncident, error) {
	params := url.Values{
		"$limit":  {strconv.Itoa(c.pageSize)},
		"$offset": {strconv.Itoa(offset)},
		"$order":  {"occur_date DESC"},
	}

	records, err := c.fetch(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.FeedRequests.WithLabelValues("ok").Inc()
	c.metrics.FeedPageSize.Observe(float64(len(records)))

	incidents := make([]domain.ExternalIncident, 0, len(records))
	skipped := 0
	for _, record := range records {
		incident, ok := domain.ParseIncidentRecord(record)
		if !ok {
			skipped++
			continue
		}
		incidents = append(incidents, incident)
	}
	if skipped > 0 {
		c.logger.Debug("skipped feed records without usable coordinates",
			"skipped", skipped,
			"kept", len(incidents),
		)
	}
	return incidents, nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) ([]domain.RawIncidentRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalError("nyc-feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewExternalError("nyc-feed",
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var records []domain.RawIncidentRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, domain.NewExternalError("nyc-feed",
			fmt.Errorf("decode response: %w", err))
	}
	return records, nil
}
