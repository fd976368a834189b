package raster

// SurfacePoint is the interpolated surface weather at one location. Nil
// fields had no data.
type SurfacePoint struct {
	CloudTotal     *float64 `json:"cloud_total"`
	CloudLow       *float64 `json:"cloud_low"`
	CloudMid       *float64 `json:"cloud_mid"`
	CloudHigh      *float64 `json:"cloud_high"`
	VisibilitySM   *float64 `json:"visibility_sm"`
	WindSpeedKt    *float64 `json:"wind_speed_kt"`
	WindGustKt     *float64 `json:"wind_gust_kt"`
	TemperatureC   *float64 `json:"temperature_c"`
	FlightCategory *string  `json:"flight_category"`
}

// PressurePoint is the interpolated upper-air weather at one location.
type PressurePoint struct {
	PressureLevel    int      `json:"pressure_level"`
	RelativeHumidity *float64 `json:"relative_humidity"`
	WindSpeedKt      *float64 `json:"wind_speed_kt"`
	TemperatureC     *float64 `json:"temperature_c"`
}

// Sample reads every channel at (lat, lng). Callers should check the region
// first; points outside it are clamped to the edge.
func (r *Raster) Sample(lat, lng float64) SurfacePoint {
	p := SurfacePoint{
		CloudTotal:   r.value(r.CloudTotal, lat, lng),
		CloudLow:     r.value(r.CloudLow, lat, lng),
		CloudMid:     r.value(r.CloudMid, lat, lng),
		CloudHigh:    r.value(r.CloudHigh, lat, lng),
		VisibilitySM: r.value(r.Visibility, lat, lng),
		WindSpeedKt:  r.value(r.WindSpeed, lat, lng),
		WindGustKt:   r.value(r.WindGust, lat, lng),
		TemperatureC: r.value(r.Temperature, lat, lng),
	}
	if name := CategoryName(r.Category(lat, lng)); name != "" {
		p.FlightCategory = &name
	}
	return p
}

func (r *Raster) value(ch []float32, lat, lng float64) *float64 {
	return optional(Bilinear(r.Region, ch, lat, lng))
}

// Sample reads every channel at (lat, lng).
func (r *PressureRaster) Sample(lat, lng float64) PressurePoint {
	return PressurePoint{
		PressureLevel:    r.Level,
		RelativeHumidity: optional(Bilinear(r.Region, r.RelativeHumidity, lat, lng)),
		WindSpeedKt:      optional(Bilinear(r.Region, r.WindSpeed, lat, lng)),
		TemperatureC:     optional(Bilinear(r.Region, r.Temperature, lat, lng)),
	}
}

func optional(v float32) *float64 {
	if IsNoData(v) {
		return nil
	}
	f := float64(v)
	return &f
}
