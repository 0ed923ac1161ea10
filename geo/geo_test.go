package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	nyc := Point{Lat: 40.7128, Lng: -74.0060}
	la := Point{Lat: 34.0522, Lng: -118.2437}

	assert.Equal(t, 0.0, Distance(nyc, nyc))
	// ~3936 km great-circle
	assert.InDelta(t, 3935746, Distance(nyc, la), 5000)
	assert.InDelta(t, Distance(nyc, la), Distance(la, nyc), 1e-6)

	// one degree of latitude
	assert.InDelta(t, 111195, Distance(Point{0, 0}, Point{1, 0}), 1)
}

func TestOffsetRoundTrip(t *testing.T) {
	center := Point{Lat: 41.8781, Lng: -87.6298}

	north := Offset(center, 300, 0)
	assert.InDelta(t, 300, Distance(center, north), 0.5)

	east := Offset(center, 0, 400)
	assert.InDelta(t, 400, Distance(center, east), 0.5)
	assert.InDelta(t, center.Lat, east.Lat, 1e-12)
}

func TestSamplePointInRadius(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	center := Point{Lat: 29.7604, Lng: -95.3698}

	inner := 0
	for i := 0; i < 5000; i++ {
		p := SamplePointInRadius(center, 500, r.Float64)
		d := Distance(center, p)
		assert.LessOrEqual(t, d, 501.0)
		if d <= 250 {
			inner++
		}
	}
	// uniform in area: a quarter of the points land in the inner half radius
	assert.InDelta(t, 0.25, float64(inner)/5000, 0.03)
}

func TestBoxAround(t *testing.T) {
	center := Point{Lat: 33.4484, Lng: -112.0740}
	box := BoxAround(center, 1000)

	assert.True(t, box.Contains(center))
	assert.True(t, box.Contains(Offset(center, 990, 0)))
	assert.True(t, box.Contains(Offset(center, 0, -990)))
	assert.False(t, box.Contains(Offset(center, 1100, 0)))
	assert.False(t, box.Contains(Offset(center, 0, 1100)))
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 90, Lng: -180}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: 181}.Valid())
}
