// Package geo provides great-circle distance math and an in-memory
// geospatial index over responder positions. The index owns the radius
// semantics of candidate discovery instead of delegating them to the
// database.
package geo

import "math"

const earthRadiusMeters = 6371000

// Default query radii. A responder's home address is a weaker, longer
// lived signal of availability than a live position, so it gets the
// wider radius.
const (
	DefaultCurrentRadiusMeters = 5000
	DefaultHomeRadiusMeters    = 15000
)

// Point is a longitude/latitude pair in degrees.
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// IsZero reports whether the point is at the (0,0) origin, which is
// treated as "position unknown".
func (p Point) IsZero() bool {
	return p.Longitude == 0 && p.Latitude == 0
}

// Valid reports whether the coordinates lie within [-90,90] latitude and
// [-180,180] longitude.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula. No projection correction is
// applied; at dispatch scales the error is negligible.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
