package tiles

import "math"

// TileSize is the edge length of a tile in pixels.
const TileSize = 256

// LngFromPixel converts a global Web Mercator pixel x to longitude.
func LngFromPixel(globalX, totalPixels float64) float64 {
	return globalX/totalPixels*360 - 180
}

// LatFromPixel converts a global Web Mercator pixel y to latitude.
func LatFromPixel(globalY, totalPixels float64) float64 {
	n := math.Pi - 2*math.Pi*globalY/totalPixels
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

// PixelFromLat is the inverse of LatFromPixel.
func PixelFromLat(lat, totalPixels float64) float64 {
	rad := lat * math.Pi / 180
	n := math.Log(math.Tan(math.Pi/4 + rad/2))
	return (math.Pi - n) * totalPixels / (2 * math.Pi)
}

// TotalPixels is the world width in pixels at zoom z.
func TotalPixels(z int) float64 {
	return float64(int(TileSize) << z)
}

// Bounds is a tile's lat/lng box.
type Bounds struct {
	MinLat, MaxLat, MinLng, MaxLng float64
}

// TileBounds returns the box covered by tile (z, x, y). y=0 is the northern
// edge of the map.
func TileBounds(z, x, y int) Bounds {
	n := float64(int(1) << z)
	total := TotalPixels(z)
	return Bounds{
		MinLng: float64(x)/n*360 - 180,
		MaxLng: float64(x+1)/n*360 - 180,
		MaxLat: LatFromPixel(float64(y*TileSize), total),
		MinLat: LatFromPixel(float64((y+1)*TileSize), total),
	}
}
