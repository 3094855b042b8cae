// Package domain models geo-tagged incident data for the NYC danger map.
//
// # Data Sources
//
// Two streams feed the engine. Community reports are submitted by registered
// users and stored as posts. Official shooting incidents come from the NYC
// Open Data SODA endpoint (dataset 833y-fsy8), consumed read-only and never
// persisted: an incident record exists only long enough to locate or create
// the discussion post for it.
//
// # NYC Data Conventions
//
// Coordinates:
//
//	All post locations must fall inside the NYC bounding region:
//	latitude 40.496–40.916, longitude -74.258–-73.699.
//	The region never crosses the antimeridian, so distance math needs no
//	wraparound handling.
//	SODA records carry latitude/longitude as strings ("40.7128"); records
//	whose coordinates do not parse are skipped.
//
// Incident keys:
//
//	The feed's incident_key uniquely identifies a shooting record. Older rows
//	omit it; the fallback key is "<occur_date>-<lat>-<lon>".
//
// Discussion correlation:
//
//	A post is the discussion thread for an incident when its title contains
//	the marker "NYC Shooting Incident" and its coordinates match the
//	incident's within 0.0001° on both axes — the precision at which post
//	coordinates are persisted. Candidate posts are found with a 0.001°
//	bounding-box query, deliberately far tighter than any user-facing radius,
//	so unrelated community posts a block away never match.
//
// Scores:
//
//	A post's score is the arithmetic mean of its valid score set, rounded to
//	one decimal, or 0 when the set is empty. The score set comes from exactly
//	one source per deployment: the dedicated per-user ratings array
//	(values 1–5, one entry per user) or comment-embedded scores (values 0–5).
//	The two are never mixed for a single post.
//
// Distances:
//
//	Great-circle miles via the haversine formula with Earth radius 3959 mi.
//	One degree of latitude is treated as 69 miles when deriving bounding-box
//	prefilters.
package domain
