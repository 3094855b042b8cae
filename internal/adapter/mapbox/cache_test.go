package mapbox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingGeocoder records how often the upstream is actually hit.
type countingGeocoder struct {
	calls int
	geo   domain.Geo
	err   error
}

func (g *countingGeocoder) Geocode(context.Context, string) (domain.Geo, error) {
	g.calls++
	if g.err != nil {
		return domain.Geo{}, g.err
	}
	return g.geo, nil
}

func TestCachedGeocoder_SecondLookupIsServedFromCache(t *testing.T) {
	inner := &countingGeocoder{geo: domain.Geo{Lat: 40.7484, Lon: -73.9857}}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	first, err := cached.Geocode(context.Background(), "350 Fifth Avenue")
	require.NoError(t, err)
	second, err := cached.Geocode(context.Background(), "350 Fifth Avenue")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_KeyIsCaseAndSpaceInsensitive(t *testing.T) {
	inner := &countingGeocoder{geo: domain.Geo{Lat: 40.7, Lon: -73.9}}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, err := cached.Geocode(context.Background(), "350 Fifth Avenue")
	require.NoError(t, err)
	_, err = cached.Geocode(context.Background(), "  350 FIFTH AVENUE ")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("upstream down")}
	cached := NewCachedGeocoder(inner, 10, testMetrics())

	_, err := cached.Geocode(context.Background(), "350 Fifth Avenue")
	require.Error(t, err)
	_, err = cached.Geocode(context.Background(), "350 Fifth Avenue")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingGeocoder{geo: domain.Geo{Lat: 40.7, Lon: -73.9}}
	cached := NewCachedGeocoder(inner, 2, testMetrics())

	ctx := context.Background()
	for _, addr := range []string{"a st", "b st", "a st", "c st"} {
		_, err := cached.Geocode(ctx, addr)
		require.NoError(t, err)
	}
	// "b st" was least recently used when "c st" arrived.
	require.Equal(t, 3, inner.calls)

	_, err := cached.Geocode(ctx, "b st")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)

	_, err = cached.Geocode(ctx, "c st")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)
}

func TestLRUCache_PutUpdatesExistingKey(t *testing.T) {
	c := newLRUCache(2)
	c.put("k", domain.Geo{Lat: 1})
	c.put("k", domain.Geo{Lat: 2})

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Lat)
	assert.Len(t, c.entries, 1)
}

func TestLRUCache_EvictionOrder(t *testing.T) {
	c := newLRUCache(3)
	for i := 0; i < 5; i++ {
		c.put(fmt.Sprintf("k%d", i), domain.Geo{Lat: float64(i)})
	}

	_, ok := c.get("k0")
	assert.False(t, ok)
	_, ok = c.get("k1")
	assert.False(t, ok)
	_, ok = c.get("k4")
	assert.True(t, ok)
}
