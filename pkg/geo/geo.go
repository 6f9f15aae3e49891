// Package geo holds the coordinate type shared by the station model and the
// view pipeline, and the great-circle distance between two coordinates.
package geo

import (
	"fmt"
	"math"

	"github.com/tkrajina/gpxgo/gpx"
)

const MetersPerKm = 1000.0

// halfCircumference is the haversine distance between two antipodal points.
var halfCircumference = gpx.Distance2D(0, 0, 0, 180, true)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// Valid reports whether p is finite and inside the latitude/longitude ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters returns the haversine distance between a and b in meters.
// The result does not depend on argument order and is 0 when a == b.
func DistanceMeters(a, b Point) float64 {
	if a == b {
		return 0
	}
	if less(b, a) {
		a, b = b, a
	}
	d := gpx.Distance2D(a.Lat, a.Lng, b.Lat, b.Lng, true)
	if math.IsNaN(d) {
		// rounding pushed the haversine term past 1 for (nearly) antipodal points
		return halfCircumference
	}
	return d
}

// DistanceKm is DistanceMeters expressed in kilometers.
func DistanceKm(a, b Point) float64 {
	return DistanceMeters(a, b) / MetersPerKm
}

func less(a, b Point) bool {
	if a.Lat != b.Lat {
		return a.Lat < b.Lat
	}
	return a.Lng < b.Lng
}
