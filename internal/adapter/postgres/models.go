package postgres

import (
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
)

type cycleModel struct {
	InitTime time.Time `gorm:"primaryKey"`
	Status   string    `gorm:"size:32;not null;index"`
	IsActive bool      `gorm:"not null;default:false;uniqueIndex:idx_hrrr_cycles_single_active,where:is_active = true"`

	DownloadTotal       int   `gorm:"not null;default:0"`
	DownloadCompleted   int   `gorm:"not null;default:0"`
	DownloadFailed      int   `gorm:"not null;default:0"`
	DownloadBytes       int64 `gorm:"not null;default:0"`
	DownloadStartedAt   *time.Time
	DownloadCompletedAt *time.Time

	ProcessTotal       int `gorm:"not null;default:0"`
	ProcessCompleted   int `gorm:"not null;default:0"`
	ProcessFailed      int `gorm:"not null;default:0"`
	ProcessStartedAt   *time.Time
	ProcessCompletedAt *time.Time

	IngestSurfaceRows  int `gorm:"not null;default:0"`
	IngestPressureRows int `gorm:"not null;default:0"`
	IngestCompletedAt  *time.Time

	ActivatedAt  *time.Time
	SupersededAt *time.Time

	TotalErrors     int `gorm:"not null;default:0"`
	LastError       *string
	TotalDurationMS *int64 `gorm:"column:total_duration_ms"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cycleModel) TableName() string { return "a_hrrr_cycles" }

type surfaceModel struct {
	InitTime     time.Time `gorm:"primaryKey"`
	ForecastHour int       `gorm:"primaryKey"`
	Lat          float64   `gorm:"primaryKey"`
	Lng          float64   `gorm:"primaryKey"`
	ValidTime    time.Time `gorm:"not null"`

	CloudTotal     *float64
	CloudLow       *float64
	CloudMid       *float64
	CloudHigh      *float64
	CeilingFt      *float64
	CloudBaseFt    *float64
	CloudTopFt     *float64
	FlightCategory *string  `gorm:"size:4"`
	VisibilitySM   *float64 `gorm:"column:visibility_sm"`
	WindDir        *float64
	WindSpeedKt    *float64
	WindGustKt     *float64
	TemperatureC   *float64
}

func (surfaceModel) TableName() string { return "a_hrrr_surface" }

type pressureModel struct {
	InitTime      time.Time `gorm:"primaryKey"`
	ForecastHour  int       `gorm:"primaryKey"`
	Lat           float64   `gorm:"primaryKey"`
	Lng           float64   `gorm:"primaryKey"`
	PressureLevel int       `gorm:"primaryKey"`
	ValidTime     time.Time `gorm:"not null"`
	AltitudeFt    int

	RelativeHumidity *float64
	WindDir          *float64
	WindSpeedKt      *float64
	TemperatureC     *float64
}

func (pressureModel) TableName() string { return "a_hrrr_pressure" }

func toCycleModel(c *domain.Cycle) cycleModel {
	return cycleModel{
		InitTime:            c.InitTime.UTC(),
		Status:              string(c.Status),
		IsActive:            c.IsActive,
		DownloadTotal:       c.DownloadTotal,
		DownloadCompleted:   c.DownloadCompleted,
		DownloadFailed:      c.DownloadFailed,
		DownloadBytes:       c.DownloadBytes,
		DownloadStartedAt:   c.DownloadStartedAt,
		DownloadCompletedAt: c.DownloadCompletedAt,
		ProcessTotal:        c.ProcessTotal,
		ProcessCompleted:    c.ProcessCompleted,
		ProcessFailed:       c.ProcessFailed,
		ProcessStartedAt:    c.ProcessStartedAt,
		ProcessCompletedAt:  c.ProcessCompletedAt,
		IngestSurfaceRows:   c.IngestSurfaceRows,
		IngestPressureRows:  c.IngestPressureRows,
		IngestCompletedAt:   c.IngestCompletedAt,
		ActivatedAt:         c.ActivatedAt,
		SupersededAt:        c.SupersededAt,
		TotalErrors:         c.TotalErrors,
		LastError:           c.LastError,
		TotalDurationMS:     c.TotalDurationMS,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (m cycleModel) toDomain() domain.Cycle {
	return domain.Cycle{
		InitTime:            m.InitTime.UTC(),
		Status:              domain.CycleStatus(m.Status),
		IsActive:            m.IsActive,
		DownloadTotal:       m.DownloadTotal,
		DownloadCompleted:   m.DownloadCompleted,
		DownloadFailed:      m.DownloadFailed,
		DownloadBytes:       m.DownloadBytes,
		DownloadStartedAt:   m.DownloadStartedAt,
		DownloadCompletedAt: m.DownloadCompletedAt,
		ProcessTotal:        m.ProcessTotal,
		ProcessCompleted:    m.ProcessCompleted,
		ProcessFailed:       m.ProcessFailed,
		ProcessStartedAt:    m.ProcessStartedAt,
		ProcessCompletedAt:  m.ProcessCompletedAt,
		IngestSurfaceRows:   m.IngestSurfaceRows,
		IngestPressureRows:  m.IngestPressureRows,
		IngestCompletedAt:   m.IngestCompletedAt,
		ActivatedAt:         m.ActivatedAt,
		SupersededAt:        m.SupersededAt,
		TotalErrors:         m.TotalErrors,
		LastError:           m.LastError,
		TotalDurationMS:     m.TotalDurationMS,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toSurfaceModels(rows []domain.SurfaceRow) []surfaceModel {
	out := make([]surfaceModel, len(rows))
	for i, r := range rows {
		out[i] = surfaceModel{
			InitTime:       r.InitTime.UTC(),
			ForecastHour:   r.ForecastHour,
			Lat:            r.Lat,
			Lng:            r.Lng,
			ValidTime:      r.ValidTime.UTC(),
			CloudTotal:     r.CloudTotal,
			CloudLow:       r.CloudLow,
			CloudMid:       r.CloudMid,
			CloudHigh:      r.CloudHigh,
			CeilingFt:      r.CeilingFt,
			CloudBaseFt:    r.CloudBaseFt,
			CloudTopFt:     r.CloudTopFt,
			FlightCategory: r.FlightCategory,
			VisibilitySM:   r.VisibilitySM,
			WindDir:        r.WindDir,
			WindSpeedKt:    r.WindSpeedKt,
			WindGustKt:     r.WindGustKt,
			TemperatureC:   r.TemperatureC,
		}
	}
	return out
}

func (m surfaceModel) toDomain() domain.SurfaceRow {
	return domain.SurfaceRow{
		InitTime:       m.InitTime.UTC(),
		ForecastHour:   m.ForecastHour,
		ValidTime:      m.ValidTime.UTC(),
		Lat:            m.Lat,
		Lng:            m.Lng,
		CloudTotal:     m.CloudTotal,
		CloudLow:       m.CloudLow,
		CloudMid:       m.CloudMid,
		CloudHigh:      m.CloudHigh,
		CeilingFt:      m.CeilingFt,
		CloudBaseFt:    m.CloudBaseFt,
		CloudTopFt:     m.CloudTopFt,
		FlightCategory: m.FlightCategory,
		VisibilitySM:   m.VisibilitySM,
		WindDir:        m.WindDir,
		WindSpeedKt:    m.WindSpeedKt,
		WindGustKt:     m.WindGustKt,
		TemperatureC:   m.TemperatureC,
	}
}

func toPressureModels(rows []domain.PressureRow) []pressureModel {
	out := make([]pressureModel, len(rows))
	for i, r := range rows {
		out[i] = pressureModel{
			InitTime:         r.InitTime.UTC(),
			ForecastHour:     r.ForecastHour,
			Lat:              r.Lat,
			Lng:              r.Lng,
			PressureLevel:    r.PressureLevel,
			ValidTime:        r.ValidTime.UTC(),
			AltitudeFt:       r.AltitudeFt,
			RelativeHumidity: r.RelativeHumidity,
			WindDir:          r.WindDir,
			WindSpeedKt:      r.WindSpeedKt,
			TemperatureC:     r.TemperatureC,
		}
	}
	return out
}

func (m pressureModel) toDomain() domain.PressureRow {
	return domain.PressureRow{
		InitTime:         m.InitTime.UTC(),
		ForecastHour:     m.ForecastHour,
		ValidTime:        m.ValidTime.UTC(),
		Lat:              m.Lat,
		Lng:              m.Lng,
		PressureLevel:    m.PressureLevel,
		AltitudeFt:       m.AltitudeFt,
		RelativeHumidity: m.RelativeHumidity,
		WindDir:          m.WindDir,
		WindSpeedKt:      m.WindSpeedKt,
		TemperatureC:     m.TemperatureC,
	}
}
