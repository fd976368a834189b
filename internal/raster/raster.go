// Package raster holds dense in-memory grids built from the active cycle's
// rows, one per forecast hour (and per pressure level for upper-air data),
// and samples them by lat/lng.
package raster

import (
	"math"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
)

// NoData marks a float cell with no value. It lies outside the range of
// every channel, including temperature.
const NoData float32 = -9999

// Flight category codes in a raster's categorical channel.
const (
	CategoryVFR     uint8 = 0
	CategoryMVFR    uint8 = 1
	CategoryIFR     uint8 = 2
	CategoryLIFR    uint8 = 3
	CategoryUnknown uint8 = 255
)

// IsNoData reports whether v is the no-data marker.
func IsNoData(v float32) bool { return v == NoData }

// CategoryCode maps a decoder flight category to its raster code.
func CategoryCode(s *string) uint8 {
	if s == nil {
		return CategoryUnknown
	}
	switch *s {
	case domain.FlightCategoryVFR:
		return CategoryVFR
	case domain.FlightCategoryMVFR:
		return CategoryMVFR
	case domain.FlightCategoryIFR:
		return CategoryIFR
	case domain.FlightCategoryLIFR:
		return CategoryLIFR
	default:
		return CategoryUnknown
	}
}

// CategoryName is the inverse of CategoryCode. Unknown codes return "".
func CategoryName(code uint8) string {
	switch code {
	case CategoryVFR:
		return domain.FlightCategoryVFR
	case CategoryMVFR:
		return domain.FlightCategoryMVFR
	case CategoryIFR:
		return domain.FlightCategoryIFR
	case CategoryLIFR:
		return domain.FlightCategoryLIFR
	default:
		return ""
	}
}

// Raster is the surface grid for one forecast hour. Channels are row-major,
// row 0 at the region's minimum latitude.
type Raster struct {
	Region       domain.Region
	InitTime     time.Time
	ForecastHour int

	CloudTotal  []float32
	CloudLow    []float32
	CloudMid    []float32
	CloudHigh   []float32
	Visibility  []float32
	WindSpeed   []float32
	WindGust    []float32
	Temperature []float32

	FlightCategory []uint8
}

// PressureRaster is the grid for one forecast hour at one pressure level.
type PressureRaster struct {
	Region       domain.Region
	InitTime     time.Time
	ForecastHour int
	Level        int

	RelativeHumidity []float32
	WindSpeed        []float32
	Temperature      []float32
}

func newChannel(n int) []float32 {
	ch := make([]float32, n)
	for i := range ch {
		ch[i] = NoData
	}
	return ch
}

func set(ch []float32, i int, v *float64) {
	if v != nil {
		ch[i] = float32(*v)
	}
}

// BuildSurface allocates a raster for region and writes rows into it. Rows
// whose nearest cell falls outside the grid are dropped.
func BuildSurface(region domain.Region, initTime time.Time, fh int, rows []domain.SurfaceRow) *Raster {
	n := region.Size()
	r := &Raster{
		Region:         region,
		InitTime:       initTime,
		ForecastHour:   fh,
		CloudTotal:     newChannel(n),
		CloudLow:       newChannel(n),
		CloudMid:       newChannel(n),
		CloudHigh:      newChannel(n),
		Visibility:     newChannel(n),
		WindSpeed:      newChannel(n),
		WindGust:       newChannel(n),
		Temperature:    newChannel(n),
		FlightCategory: make([]uint8, n),
	}
	for i := range r.FlightCategory {
		r.FlightCategory[i] = CategoryUnknown
	}

	for _, row := range rows {
		i, ok := region.Index(row.Lat, row.Lng)
		if !ok {
			continue
		}
		set(r.CloudTotal, i, row.CloudTotal)
		set(r.CloudLow, i, row.CloudLow)
		set(r.CloudMid, i, row.CloudMid)
		set(r.CloudHigh, i, row.CloudHigh)
		set(r.Visibility, i, row.VisibilitySM)
		set(r.WindSpeed, i, row.WindSpeedKt)
		set(r.WindGust, i, row.WindGustKt)
		set(r.Temperature, i, row.TemperatureC)
		r.FlightCategory[i] = CategoryCode(row.FlightCategory)
	}
	return r
}

// BuildPressure is BuildSurface for pressure-level rows.
func BuildPressure(region domain.Region, initTime time.Time, fh, level int, rows []domain.PressureRow) *PressureRaster {
	n := region.Size()
	r := &PressureRaster{
		Region:           region,
		InitTime:         initTime,
		ForecastHour:     fh,
		Level:            level,
		RelativeHumidity: newChannel(n),
		WindSpeed:        newChannel(n),
		Temperature:      newChannel(n),
	}
	for _, row := range rows {
		i, ok := region.Index(row.Lat, row.Lng)
		if !ok {
			continue
		}
		set(r.RelativeHumidity, i, row.RelativeHumidity)
		set(r.WindSpeed, i, row.WindSpeedKt)
		set(r.Temperature, i, row.TemperatureC)
	}
	return r
}

// Bilinear interpolates ch at (lat, lng). Corners are clamped to the grid.
// If any of the four corners is NoData the nearest cell is returned instead,
// which may itself be NoData.
func Bilinear(region domain.Region, ch []float32, lat, lng float64) float32 {
	rows, cols := region.Rows(), region.Cols()
	fy := lat - region.MinLat
	fx := lng - region.MinLng

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	cx0, cx1 := clamp(x0, cols), clamp(x0+1, cols)
	cy0, cy1 := clamp(y0, rows), clamp(y0+1, rows)
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	v00 := ch[cy0*cols+cx0]
	v10 := ch[cy0*cols+cx1]
	v01 := ch[cy1*cols+cx0]
	v11 := ch[cy1*cols+cx1]

	if IsNoData(v00) || IsNoData(v10) || IsNoData(v01) || IsNoData(v11) {
		ny := clamp(int(math.Round(fy)), rows)
		nx := clamp(int(math.Round(fx)), cols)
		return ch[ny*cols+nx]
	}

	return float32(float64(v00)*(1-dx)*(1-dy) +
		float64(v10)*dx*(1-dy) +
		float64(v01)*(1-dx)*dy +
		float64(v11)*dx*dy)
}

// Category returns the flight category code of the cell nearest (lat, lng),
// or CategoryUnknown outside the grid.
func (r *Raster) Category(lat, lng float64) uint8 {
	i, ok := r.Region.Index(lat, lng)
	if !ok {
		return CategoryUnknown
	}
	return r.FlightCategory[i]
}

func clamp(i, n int) int {
	return max(0, min(n-1, i))
}
