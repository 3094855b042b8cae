package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// IncidentTitleMarker tags discussion posts derived from feed incidents and
// disambiguates them from unrelated community posts at nearby coordinates.
const IncidentTitleMarker = "NYC Shooting Incident"

// CoordinateTolerance is the per-axis coordinate tolerance for matching an
// incident to its discussion post, tied to the persisted field precision.
const CoordinateTolerance = 0.0001

// CorrelationDegreeRadius is the bounding-box half-width used when searching
// for an incident's discussion post. Deliberately far tighter than the
// user-facing notification default.
const CorrelationDegreeRadius = 0.001

// RawIncidentRecord is one row of the SODA shooting-incident feed. Numeric
// fields arrive as strings.
type RawIncidentRecord struct {
	IncidentKey  string `json:"incident_key"`
	OccurDate    string `json:"occur_date"`
	OccurTime    string `json:"occur_time"`
	Borough      string `json:"boro"`
	LocationDesc string `json:"location_desc"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
}

// ParseIncidentRecord converts a raw feed row into an ExternalIncident.
// Returns false when the coordinates are missing or unparseable; such rows
// are skipped, never fatal.
func ParseIncidentRecord(rec RawIncidentRecord) (ExternalIncident, bool) {
	lat, okLat := parseCoord(rec.Latitude)
	lon, okLon := parseCoord(rec.Longitude)
	if !okLat || !okLon {
		return ExternalIncident{}, false
	}

	inc := ExternalIncident{
		Key:          rec.IncidentKey,
		Date:         rec.OccurDate,
		Time:         rec.OccurTime,
		Borough:      rec.Borough,
		LocationDesc: locationDescOrDefault(rec.LocationDesc),
		Geo:          Geo{Lat: lat, Lon: lon},
	}
	if inc.Key == "" {
		inc.Key = fmt.Sprintf("%s-%v-%v", inc.Date, lat, lon)
	}
	return inc, true
}

func parseCoord(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func locationDescOrDefault(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "Street"
	}
	return desc
}

// DiscussionTitle templates the synthetic post title for an incident.
// Contains IncidentTitleMarker so correlation can find it again.
func DiscussionTitle(inc ExternalIncident) string {
	return fmt.Sprintf("%s - %s - %s", IncidentTitleMarker, inc.Date, inc.Borough)
}

// DiscussionBody templates the synthetic post body for an incident.
func DiscussionBody(inc ExternalIncident) string {
	return fmt.Sprintf(
		"Official NYC Shooting Incident\n\nDate: %s\nTime: %s\nBorough: %s\nLocation: %s",
		inc.Date, inc.Time, inc.Borough, inc.LocationDesc,
	)
}

// MatchesIncident reports whether post is the discussion thread for inc:
// title carries the marker and both coordinate axes agree within
// CoordinateTolerance.
func MatchesIncident(post Post, inc ExternalIncident) bool {
	if !strings.Contains(post.Title, IncidentTitleMarker) {
		return false
	}
	return within(post.Location.Lat, inc.Geo.Lat, CoordinateTolerance) &&
		within(post.Location.Lon, inc.Geo.Lon, CoordinateTolerance)
}

func within(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < tol
}
