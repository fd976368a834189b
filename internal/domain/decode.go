package domain

// DecodeRequest asks the decoder to sample one forecast hour's GRIB2 files
// onto a regular grid. Either path may be empty, not both.
type DecodeRequest struct {
	SurfacePath    string
	PressurePath   string
	Region         Region
	GridSpacing    float64
	PressureLevels []int
}

// DecodeResult is the decoder's output for one forecast hour.
type DecodeResult struct {
	Surface  []SurfaceRow  `json:"surface"`
	Pressure []PressureRow `json:"pressure"`
}

// Empty reports whether the decoder produced no rows at all.
func (r DecodeResult) Empty() bool {
	return len(r.Surface) == 0 && len(r.Pressure) == 0
}
