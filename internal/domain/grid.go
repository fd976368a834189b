package domain

import "time"

// Flight categories as emitted by the decoder.
const (
	FlightCategoryVFR  = "VFR"
	FlightCategoryMVFR = "MVFR"
	FlightCategoryIFR  = "IFR"
	FlightCategoryLIFR = "LIFR"
)

// SurfaceRow is one surface grid point for a cycle and forecast hour. The
// decoder emits Lat, Lng and the value fields; the ingestor stamps the cycle
// fields before persisting.
type SurfaceRow struct {
	InitTime     time.Time `json:"-"`
	ForecastHour int       `json:"-"`
	ValidTime    time.Time `json:"-"`

	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`

	CloudTotal *float64 `json:"cloud_total"`
	CloudLow   *float64 `json:"cloud_low"`
	CloudMid   *float64 `json:"cloud_mid"`
	CloudHigh  *float64 `json:"cloud_high"`

	CeilingFt   *float64 `json:"ceiling_ft"`
	CloudBaseFt *float64 `json:"cloud_base_ft"`
	CloudTopFt  *float64 `json:"cloud_top_ft"`

	FlightCategory *string  `json:"flight_category"`
	VisibilitySM   *float64 `json:"visibility_sm"`

	WindDir      *float64 `json:"wind_dir"`
	WindSpeedKt  *float64 `json:"wind_speed_kt"`
	WindGustKt   *float64 `json:"wind_gust_kt"`
	TemperatureC *float64 `json:"temperature_c"`
}

// PressureRow is one grid point at one pressure level.
type PressureRow struct {
	InitTime     time.Time `json:"-"`
	ForecastHour int       `json:"-"`
	ValidTime    time.Time `json:"-"`

	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	PressureLevel int     `json:"pressure_level"`
	AltitudeFt    int     `json:"altitude_ft"`

	RelativeHumidity *float64 `json:"relative_humidity"`
	WindDir          *float64 `json:"wind_dir"`
	WindSpeedKt      *float64 `json:"wind_speed_kt"`
	TemperatureC     *float64 `json:"temperature_c"`
}

// LevelAltitudes maps pressure levels (hPa) to approximate feet MSL.
var LevelAltitudes = map[int]int{
	1000: 360,
	950:  1640,
	925:  2500,
	900:  3200,
	850:  5000,
	800:  6200,
	700:  10000,
	600:  14000,
	500:  18000,
	400:  24000,
	300:  30000,
	250:  34000,
	200:  39000,
	150:  44000,
}
