// Package tiles renders 256x256 PNG map tiles from cached rasters.
package tiles

import (
	"fmt"
	"strconv"
)

// Product is a renderable tile layer.
type Product string

const (
	ProductFlightCategory Product = "flight-cat"
	ProductCloudsTotal    Product = "clouds-total"
	ProductCloudsLow      Product = "clouds-low"
	ProductCloudsMid      Product = "clouds-mid"
	ProductCloudsHigh     Product = "clouds-high"
	ProductVisibility     Product = "visibility"
	// ProductClouds is the relative-humidity cloud proxy at a pressure level.
	ProductClouds Product = "clouds"
)

// DefaultLevel is the pressure level used for ProductClouds when none is given.
const DefaultLevel = 850

// Products lists every product in display order.
var Products = []Product{
	ProductFlightCategory,
	ProductCloudsTotal,
	ProductCloudsLow,
	ProductCloudsMid,
	ProductCloudsHigh,
	ProductVisibility,
	ProductClouds,
}

// ParseProduct validates s.
func ParseProduct(s string) (Product, error) {
	for _, p := range Products {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid product %q", s)
}

// UsesLevel reports whether the product is drawn from a pressure level.
func (p Product) UsesLevel() bool { return p == ProductClouds }

// Request identifies one tile.
type Request struct {
	Product      Product
	Z, X, Y      int
	ForecastHour int
	// Level is the pressure level in hPa; ignored unless Product.UsesLevel.
	Level int
}

// Key is the rendered-tile cache key.
func (r Request) Key() string {
	key := string(r.Product) + ":" + strconv.Itoa(r.ForecastHour)
	if r.Product.UsesLevel() {
		key += ":" + strconv.Itoa(r.Level)
	}
	return fmt.Sprintf("%s:%d:%d:%d", key, r.Z, r.X, r.Y)
}
