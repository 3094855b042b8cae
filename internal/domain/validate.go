package domain

import (
	"math"
	"strings"
)

// NYC bounding region. Post locations outside it are rejected.
const (
	MinLat = 40.496
	MaxLat = 40.916
	MinLon = -74.258
	MaxLon = -73.699
)

const (
	minTitleLen = 3
	maxTitleLen = 30
	maxBodyLen  = 500
)

// InNYCBounds reports whether g lies inside the NYC bounding region.
func InNYCBounds(g Geo) bool {
	return g.Lat >= MinLat && g.Lat <= MaxLat && g.Lon >= MinLon && g.Lon <= MaxLon
}

// ValidateLocation rejects NaN coordinates and locations outside NYC.
func ValidateLocation(g Geo) error {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lon) {
		return NewValidationError("location", "coordinates must be numbers")
	}
	if !InNYCBounds(g) {
		return NewValidationError("location", "must be in NYC")
	}
	return nil
}

// ValidateTitle enforces the 3-30 character post title constraint.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return NewValidationError("title", "length must be between 3 and 30 characters")
	}
	return nil
}

// ValidateBody enforces the 500 character post body limit. Empty is allowed.
func ValidateBody(body string) error {
	if len(body) > maxBodyLen {
		return NewValidationError("body", "cannot be over 500 characters")
	}
	return nil
}

// ValidateCommentScore enforces the 0-5 comment score range.
func ValidateCommentScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 5 {
		return NewValidationError("score", "must be a number between 0 and 5")
	}
	return nil
}

// ValidateRating enforces the 1-5 rating range.
func ValidateRating(value float64) error {
	if math.IsNaN(value) || value < 1 || value > 5 {
		return NewValidationError("rating", "must be a number between 1 and 5")
	}
	return nil
}
