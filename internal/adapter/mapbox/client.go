// Package mapbox resolves free-text street addresses to coordinates using
// the Mapbox Geocoding API. Reports carry either a device location or an
// address; this adapter covers the address path.
package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
)

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.Geo, error)
}

// Client implements Geocoder against the Mapbox places endpoint.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:  logger,
		metrics: metrics,
	}
}

// Geocode converts an address to coordinates. Returns ErrInvalidAddress when
// Mapbox finds no feature for it.
func (c *Client) Geocode(ctx context.Context, address string) (domain.Geo, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(address))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}

	start := time.Now()
	geo, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		c.metrics.GeocodeRequests.WithLabelValues("not_found").Inc()
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("ok").Inc()
	}
	return geo, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Geo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Geo{}, domain.NewExternalError("mapbox", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Geo{}, domain.NewExternalError("mapbox",
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.Geo{}, domain.NewExternalError("mapbox",
			fmt.Errorf("decode response: %w", err))
	}

	if len(mapboxResp.Features) == 0 {
		return domain.Geo{}, domain.ErrInvalidAddress
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.Geo{}, domain.NewExternalError("mapbox",
			fmt.Errorf("feature %q has no center", f.PlaceName))
	}
	// Mapbox uses lon,lat order.
	return domain.Geo{Lat: f.Center[1], Lon: f.Center[0]}, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
}
