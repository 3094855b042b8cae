// Package proximity finds stored posts near a coordinate.
//
// At this deployment's scale (hundreds of posts, not millions) a bounding-box
// prefilter pushed to the store plus an exact haversine confirmation beats a
// spatial index on simplicity; the trade-off is deliberate.
package proximity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nycdangermap/incident-engine/internal/domain"
)

// Box is a latitude/longitude bounding rectangle.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoxAround returns the box extending degRadius degrees from center on both axes.
func BoxAround(center domain.Geo, degRadius float64) Box {
	return Box{
		MinLat: center.Lat - degRadius,
		MaxLat: center.Lat + degRadius,
		MinLon: center.Lon - degRadius,
		MaxLon: center.Lon + degRadius,
	}
}

// BoxFinder returns visible posts whose stored coordinates fall inside the box.
type BoxFinder interface {
	FindInBox(ctx context.Context, box Box) ([]domain.Post, error)
}

// Match pairs a post with its exact distance from the query origin.
type Match struct {
	Post     domain.Post
	Distance float64 // miles
}

// Index answers radius queries over stored posts.
type Index struct {
	finder BoxFinder
}

// NewIndex creates an Index over the given post source.
func NewIndex(finder BoxFinder) *Index {
	return &Index{finder: finder}
}

// FindNearby returns posts within radiusMiles of origin. Candidates come from
// a bounding-box prefilter (1° latitude ≈ 69 mi, longitude widened by
// 1/cos(lat)) and are confirmed with the exact great-circle distance. An
// empty result is not an error. Matches are unordered unless sortByDistance
// is set.
func (idx *Index) FindNearby(ctx context.Context, origin domain.Geo, radiusMiles float64, sortByDistance bool) ([]Match, error) {
	if radiusMiles <= 0 {
		return nil, domain.NewValidationError("radius", "must be positive")
	}

	latRadius := radiusMiles / domain.MilesPerDegree
	// A longitude degree spans cos(lat) fewer miles than a latitude degree, so
	// the east-west half-width must widen by the same factor to keep the box a
	// superset of the true radius. The exact check below discards the extras.
	lonRadius := latRadius
	if c := math.Cos(origin.Lat * math.Pi / 180); c > 0.01 {
		lonRadius = latRadius / c
	}
	box := Box{
		MinLat: origin.Lat - latRadius,
		MaxLat: origin.Lat + latRadius,
		MinLon: origin.Lon - lonRadius,
		MaxLon: origin.Lon + lonRadius,
	}
	candidates, err := idx.finder.FindInBox(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("proximity prefilter: %w", err)
	}

	matches := make([]Match, 0, len(candidates))
	for _, post := range candidates {
		d := domain.Distance(origin, post.Location)
		if d <= radiusMiles {
			matches = append(matches, Match{Post: post, Distance: d})
		}
	}

	if sortByDistance {
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].Distance < matches[j].Distance
		})
	}
	return matches, nil
}

// FindWithinDegrees returns posts inside a raw degree-radius box around
// origin, with no distance confirmation. Used by the incident correlator,
// whose 0.001° lookups are tighter than any mile-based radius.
func (idx *Index) FindWithinDegrees(ctx context.Context, origin domain.Geo, degRadius float64) ([]domain.Post, error) {
	if degRadius <= 0 {
		return nil, domain.NewValidationError("radius", "must be positive")
	}
	posts, err := idx.finder.FindInBox(ctx, BoxAround(origin, degRadius))
	if err != nil {
		return nil, fmt.Errorf("degree-box lookup: %w", err)
	}
	return posts, nil
}
