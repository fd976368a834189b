package http

import (
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/raster"
	"github.com/couchcryptid/hrrr-tile-service/internal/tiles"
)

type cyclesView struct {
	ActiveCycle *time.Time  `json:"active_cycle"`
	Cycles      []cycleView `json:"cycles"`
}

type cycleView struct {
	InitTime   time.Time          `json:"init_time"`
	Status     domain.CycleStatus `json:"status"`
	IsActive   bool               `json:"is_active"`
	Download   downloadView       `json:"download"`
	Processing stageView          `json:"processing"`
	Ingest     ingestView         `json:"ingest"`
	Timing     timingView         `json:"timing"`
	Errors     errorsView         `json:"errors"`
}

type stageView struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

type downloadView struct {
	stageView
	Bytes int64 `json:"bytes"`
}

type ingestView struct {
	SurfaceRows  int `json:"surface_rows"`
	PressureRows int `json:"pressure_rows"`
}

type timingView struct {
	DownloadStartedAt   *time.Time `json:"download_started_at"`
	DownloadCompletedAt *time.Time `json:"download_completed_at"`
	ProcessStartedAt    *time.Time `json:"process_started_at"`
	ProcessCompletedAt  *time.Time `json:"process_completed_at"`
	IngestCompletedAt   *time.Time `json:"ingest_completed_at"`
	ActivatedAt         *time.Time `json:"activated_at"`
	SupersededAt        *time.Time `json:"superseded_at"`
	TotalDurationMS     *int64     `json:"total_duration_ms"`
}

type errorsView struct {
	Total     int     `json:"total"`
	LastError *string `json:"last_error"`
}

func newCyclesView(cycles []domain.Cycle) cyclesView {
	out := cyclesView{Cycles: make([]cycleView, 0, len(cycles))}
	for _, c := range cycles {
		if c.IsActive {
			initTime := c.InitTime
			out.ActiveCycle = &initTime
		}
		out.Cycles = append(out.Cycles, cycleView{
			InitTime: c.InitTime,
			Status:   c.Status,
			IsActive: c.IsActive,
			Download: downloadView{
				stageView: stageView{Completed: c.DownloadCompleted, Failed: c.DownloadFailed, Total: c.DownloadTotal},
				Bytes:     c.DownloadBytes,
			},
			Processing: stageView{Completed: c.ProcessCompleted, Failed: c.ProcessFailed, Total: c.ProcessTotal},
			Ingest:     ingestView{SurfaceRows: c.IngestSurfaceRows, PressureRows: c.IngestPressureRows},
			Timing: timingView{
				DownloadStartedAt:   c.DownloadStartedAt,
				DownloadCompletedAt: c.DownloadCompletedAt,
				ProcessStartedAt:    c.ProcessStartedAt,
				ProcessCompletedAt:  c.ProcessCompletedAt,
				IngestCompletedAt:   c.IngestCompletedAt,
				ActivatedAt:         c.ActivatedAt,
				SupersededAt:        c.SupersededAt,
				TotalDurationMS:     c.TotalDurationMS,
			},
			Errors: errorsView{Total: c.TotalErrors, LastError: c.LastError},
		})
	}
	return out
}

type metaView struct {
	Model          string                        `json:"model"`
	LatestInit     *time.Time                    `json:"latest_init"`
	ForecastHours  []int                         `json:"forecast_hours,omitempty"`
	PressureLevels []int                         `json:"pressure_levels,omitempty"`
	Products       map[tiles.Product]productView `json:"products"`
	LevelAltitudes map[int]int                   `json:"level_altitudes,omitempty"`
}

type productView struct {
	ForecastHours []int `json:"forecast_hours"`
	Levels        []int `json:"levels,omitempty"`
}

func newMetaView(initTime time.Time, hours, levels []int) metaView {
	products := make(map[tiles.Product]productView, len(tiles.Products))
	for _, p := range tiles.Products {
		v := productView{ForecastHours: hours}
		if p.UsesLevel() {
			v.Levels = levels
		}
		products[p] = v
	}
	altitudes := make(map[int]int, len(levels))
	for _, l := range levels {
		if ft, ok := domain.LevelAltitudes[l]; ok {
			altitudes[l] = ft
		}
	}
	return metaView{
		Model:          "hrrr",
		LatestInit:     &initTime,
		ForecastHours:  hours,
		PressureLevels: levels,
		Products:       products,
		LevelAltitudes: altitudes,
	}
}

type pointView struct {
	Lat          float64               `json:"lat"`
	Lng          float64               `json:"lng"`
	ForecastHour int                   `json:"forecast_hour"`
	InitTime     *time.Time            `json:"init_time"`
	Surface      *raster.SurfacePoint  `json:"surface"`
	Pressure     *raster.PressurePoint `json:"pressure"`
}
