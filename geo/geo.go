// Package geo holds the distance and sampling helpers used for spawn placement
// and proximity queries. The approximations are fine at city scale and break
// down near the poles.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by every distance check.
const EarthRadiusMeters = 6371000.0

const metersPerDegreeLat = math.Pi * EarthRadiusMeters / 180

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether p is inside the lat/lng domain.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the haversine great-circle distance between a and b, in meters.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset moves p by north/east meters using the equirectangular approximation.
func Offset(p Point, northMeters, eastMeters float64) Point {
	dLat := northMeters / metersPerDegreeLat
	dLng := eastMeters / (metersPerDegreeLat * math.Cos(radians(p.Lat)))
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

// SamplePointInRadius draws a point uniformly from the disk of radiusMeters
// around center. rnd must return values in [0, 1).
func SamplePointInRadius(center Point, radiusMeters float64, rnd func() float64) Point {
	// r = R*sqrt(u) gives uniform density over the disk area
	r := radiusMeters * math.Sqrt(rnd())
	theta := 2 * math.Pi * rnd()
	return Offset(center, r*math.Cos(theta), r*math.Sin(theta))
}

// BoundingBox is a lat/lng rectangle used as a coarse index prefilter.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoxAround returns a box that contains every point within radiusMeters of
// center. It overshoots at the corners; callers filter with Distance.
func BoxAround(center Point, radiusMeters float64) BoundingBox {
	dLat := radiusMeters / metersPerDegreeLat
	cos := math.Cos(radians(center.Lat))
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(180, radiusMeters/(metersPerDegreeLat*cos))
	}
	return BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLng: center.Lng - dLng,
		MaxLng: center.Lng + dLng,
	}
}

// Contains reports whether p lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
