package domain

import "math"

// Region is a lat/lng rectangle on a 1° integer grid. Bounds are inclusive.
type Region struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// CONUS is the region the pipeline ingests and the renderer draws.
var CONUS = Region{MinLat: 24, MaxLat: 50, MinLng: -125, MaxLng: -66}

// Rows is the number of grid rows (latitudes).
func (r Region) Rows() int { return int(r.MaxLat-r.MinLat) + 1 }

// Cols is the number of grid columns (longitudes).
func (r Region) Cols() int { return int(r.MaxLng-r.MinLng) + 1 }

// Size is the number of grid points.
func (r Region) Size() int { return r.Rows() * r.Cols() }

// Contains reports whether (lat, lng) lies inside the region.
func (r Region) Contains(lat, lng float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lng >= r.MinLng && lng <= r.MaxLng
}

// Overlaps reports whether the box shares any area with the region.
func (r Region) Overlaps(minLat, maxLat, minLng, maxLng float64) bool {
	return !(maxLat < r.MinLat || minLat > r.MaxLat || maxLng < r.MinLng || minLng > r.MaxLng)
}

// Index returns the flat row-major grid index of the cell nearest to
// (lat, lng), or false if it falls outside the grid.
func (r Region) Index(lat, lng float64) (int, bool) {
	row := int(math.Round(lat - r.MinLat))
	col := int(math.Round(lng - r.MinLng))
	if row < 0 || row >= r.Rows() || col < 0 || col >= r.Cols() {
		return 0, false
	}
	return row*r.Cols() + col, true
}
