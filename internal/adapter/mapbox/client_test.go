package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    testMetrics(),
	}
}

func TestClient_Geocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.EscapedPath(), "350%20Fifth%20Avenue")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{-73.9857, 40.7484},
					PlaceName: "350 Fifth Avenue, New York, New York",
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	geo, err := c.Geocode(context.Background(), "350 Fifth Avenue")
	require.NoError(t, err)

	assert.Equal(t, 40.7484, geo.Lat)
	assert.Equal(t, -73.9857, geo.Lon)
}

func TestClient_Geocode_NoFeaturesIsInvalidAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{}))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Geocode(context.Background(), "asdfjkl nowhere")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestClient_Geocode_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Geocode(context.Background(), "350 Fifth Avenue")
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
}

func TestClient_Geocode_MalformedFeature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{
			Features: []feature{{PlaceName: "centerless"}},
		}))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Geocode(context.Background(), "somewhere")
	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
}
