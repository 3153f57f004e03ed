package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	// One degree of longitude on the equator is roughly 111.2 km.
	d := DistanceMeters(0, 0, 0, 1)
	assert.InEpsilon(t, 111195.0, d, 0.01)

	assert.Zero(t, DistanceMeters(48.8566, 2.3522, 48.8566, 2.3522))

	// Distance is symmetric.
	a := DistanceMeters(51.5074, -0.1278, 48.8566, 2.3522)
	b := DistanceMeters(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, a, b, 1e-6)
}

func TestWithinRadius(t *testing.T) {
	// ~111195 m apart.
	assert.True(t, WithinRadius(0, 1, 0, 0, 120000))
	assert.False(t, WithinRadius(0, 1, 0, 0, 100000))

	// A point exactly on the boundary is inside.
	d := DistanceMeters(0, 1, 0, 0)
	assert.True(t, WithinRadius(0, 1, 0, 0, d))

	assert.True(t, WithinRadius(52.52, 13.405, 52.52, 13.405, 0))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(0, 0))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.True(t, ValidCoordinate(90, -180))

	assert.False(t, ValidCoordinate(90.1, 0))
	assert.False(t, ValidCoordinate(0, -180.5))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.NaN()))
}
