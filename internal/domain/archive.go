package domain

import (
	"fmt"
	"time"
)

// Product selects one of the two HRRR file families.
type Product string

const (
	ProductSurface  Product = "wrfsfc"
	ProductPressure Product = "wrfprs"
)

// Archive builds object URLs for the NOAA HRRR bucket layout:
//
//	{base}/hrrr.YYYYMMDD/conus/hrrr.tHHz.{product}fNN.grib2
type Archive struct {
	BaseURL string
}

// FileURL returns the GRIB2 URL for a cycle, product and forecast hour.
func (a Archive) FileURL(initTime time.Time, product Product, forecastHour int) string {
	t := initTime.UTC()
	return fmt.Sprintf("%s/hrrr.%s/conus/hrrr.t%02dz.%sf%02d.grib2",
		a.BaseURL, t.Format("20060102"), t.Hour(), product, forecastHour)
}

// IndexURL returns the .idx sidecar URL for the same file.
func (a Archive) IndexURL(initTime time.Time, product Product, forecastHour int) string {
	return a.FileURL(initTime, product, forecastHour) + ".idx"
}

// LocalName is the file name used for a downloaded subset.
func LocalName(initTime time.Time, product Product, forecastHour int) string {
	t := initTime.UTC()
	return fmt.Sprintf("hrrr_%s_%s_%02d_f%02d.grib2", product, t.Format("20060102"), t.Hour(), forecastHour)
}
