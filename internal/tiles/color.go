package tiles

import (
	"image/color"
	"math"

	"github.com/couchcryptid/hrrr-tile-service/internal/raster"
)

var (
	transparent = color.NRGBA{}

	colorMVFR = color.NRGBA{R: 33, G: 150, B: 243, A: 160}
	colorIFR  = color.NRGBA{R: 255, G: 23, B: 68, A: 160}
	colorLIFR = color.NRGBA{R: 224, G: 64, B: 251, A: 160}

	colorVisBelow1 = color.NRGBA{R: 255, G: 23, B: 68, A: 180}
	colorVisBelow3 = color.NRGBA{R: 255, G: 152, B: 0, A: 150}
	colorVisBelow5 = color.NRGBA{R: 255, G: 235, B: 59, A: 120}
)

// maxCloudAlpha is the alpha of fully covered (100%) cells.
const maxCloudAlpha = 210

// minAlpha is the smallest alpha worth drawing.
const minAlpha = 5

// FlightCategoryColor maps a raster category code. VFR and unknown are
// transparent.
func FlightCategoryColor(code uint8) color.NRGBA {
	switch code {
	case raster.CategoryMVFR:
		return colorMVFR
	case raster.CategoryIFR:
		return colorIFR
	case raster.CategoryLIFR:
		return colorLIFR
	default:
		return transparent
	}
}

// CloudColor maps a cloud fraction (0-100) to white with linear alpha.
func CloudColor(v float32) color.NRGBA {
	if raster.IsNoData(v) || v < 0 {
		return transparent
	}
	coverage := min(100, float64(v))
	return white(coverage / 100)
}

// VisibilityColor maps statute miles to a warning color. 5 sm and above is
// transparent.
func VisibilityColor(v float32) color.NRGBA {
	switch {
	case raster.IsNoData(v) || v < 0:
		return transparent
	case v < 1:
		return colorVisBelow1
	case v < 3:
		return colorVisBelow3
	case v < 5:
		return colorVisBelow5
	default:
		return transparent
	}
}

// HumidityColor is the cloud proxy: relative humidity between 50 and 100
// percent maps linearly to white alpha.
func HumidityColor(rh float32) color.NRGBA {
	if raster.IsNoData(rh) || rh < 50 {
		return transparent
	}
	return white(min(1, float64(rh-50)/50))
}

func white(frac float64) color.NRGBA {
	alpha := math.Round(frac * maxCloudAlpha)
	if alpha < minAlpha {
		return transparent
	}
	return color.NRGBA{R: 255, G: 255, B: 255, A: uint8(alpha)}
}
