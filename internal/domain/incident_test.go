package domain_test

import (
	"testing"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIncidentRecord(t *testing.T) {
	rec := domain.RawIncidentRecord{
		IncidentKey:  "239546720",
		OccurDate:    "2024-06-15T00:00:00.000",
		OccurTime:    "22:35:00",
		Borough:      "BROOKLYN",
		LocationDesc: "",
		Latitude:     "40.6782",
		Longitude:    "-73.9442",
	}

	inc, ok := domain.ParseIncidentRecord(rec)
	require.True(t, ok)
	assert.Equal(t, "239546720", inc.Key)
	assert.Equal(t, "BROOKLYN", inc.Borough)
	assert.Equal(t, "Street", inc.LocationDesc)
	assert.Equal(t, 40.6782, inc.Geo.Lat)
	assert.Equal(t, -73.9442, inc.Geo.Lon)
}

func TestParseIncidentRecord_MissingKeyFallsBack(t *testing.T) {
	rec := domain.RawIncidentRecord{
		OccurDate: "2024-06-15T00:00:00.000",
		Latitude:  "40.6782",
		Longitude: "-73.9442",
	}

	inc, ok := domain.ParseIncidentRecord(rec)
	require.True(t, ok)
	assert.Equal(t, "2024-06-15T00:00:00.000-40.6782--73.9442", inc.Key)
}

func TestParseIncidentRecord_SkipsUnparseableCoordinates(t *testing.T) {
	for _, rec := range []domain.RawIncidentRecord{
		{Latitude: "", Longitude: "-73.9"},
		{Latitude: "40.7", Longitude: ""},
		{Latitude: "not-a-number", Longitude: "-73.9"},
	} {
		_, ok := domain.ParseIncidentRecord(rec)
		assert.False(t, ok)
	}
}

func TestDiscussionTemplates(t *testing.T) {
	inc := domain.ExternalIncident{
		Key:          "k1",
		Date:         "2024-06-15",
		Time:         "22:35:00",
		Borough:      "QUEENS",
		LocationDesc: "GROCERY/BODEGA",
		Geo:          domain.Geo{Lat: 40.72, Lon: -73.80},
	}

	title := domain.DiscussionTitle(inc)
	assert.Equal(t, "NYC Shooting Incident - 2024-06-15 - QUEENS", title)
	assert.Contains(t, title, domain.IncidentTitleMarker)

	body := domain.DiscussionBody(inc)
	assert.Contains(t, body, "Time: 22:35:00")
	assert.Contains(t, body, "Borough: QUEENS")
	assert.Contains(t, body, "Location: GROCERY/BODEGA")
}

func TestMatchesIncident(t *testing.T) {
	inc := domain.ExternalIncident{
		Date: "2024-06-15", Borough: "QUEENS",
		Geo: domain.Geo{Lat: 40.72, Lon: -73.80},
	}

	match := domain.Post{
		Title:    domain.DiscussionTitle(inc),
		Location: domain.Geo{Lat: 40.72 + 0.00005, Lon: -73.80 - 0.00005},
	}
	assert.True(t, domain.MatchesIncident(match, inc))

	// Same spot, no marker: an unrelated community post.
	community := domain.Post{
		Title:    "Heard gunshots last night",
		Location: inc.Geo,
	}
	assert.False(t, domain.MatchesIncident(community, inc))

	// Marker present but outside the coordinate tolerance.
	tooFar := domain.Post{
		Title:    domain.DiscussionTitle(inc),
		Location: domain.Geo{Lat: 40.72 + 0.0005, Lon: -73.80},
	}
	assert.False(t, domain.MatchesIncident(tooFar, inc))
}
