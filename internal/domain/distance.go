package domain

import "math"

// earthRadiusMiles is the mean Earth radius used by the haversine formula.
const earthRadiusMiles = 3959.0

// MilesPerDegree approximates one degree of latitude, used to widen a radius
// in miles into a bounding-box prefilter in degrees.
const MilesPerDegree = 69.0

// Distance returns the great-circle distance in miles between two coordinate
// pairs. Pure and symmetric; NaN inputs propagate as NaN.
func Distance(a, b Geo) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMiles * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
