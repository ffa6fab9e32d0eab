package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, DistanceKm(50.85, 4.35, 50.85, 4.35))

	// Brussels -> Liège, roughly 89 km as the crow flies.
	d := Distance(Point{Lat: 50.8503, Lon: 4.3517}, Point{Lat: 50.6326, Lon: 5.5797})
	assert.InDelta(t, 89, d, 3)

	assert.InDelta(t, d, Distance(Point{Lat: 50.6326, Lon: 5.5797}, Point{Lat: 50.8503, Lon: 4.3517}), 1e-9)
}

func TestPointValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Point{Lat: 50.85, Lon: 4.35}.Valid())
	assert.False(t, Point{}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 4}.Valid())
	assert.False(t, Point{Lat: 50, Lon: 181}.Valid())
}
