package domain

import "time"

// CycleStatus is the pipeline stage a cycle is in.
type CycleStatus string

const (
	StatusDiscovered      CycleStatus = "discovered"
	StatusDownloading     CycleStatus = "downloading"
	StatusProcessing      CycleStatus = "processing"
	StatusIngesting       CycleStatus = "ingesting"
	StatusGeneratingTiles CycleStatus = "generating_tiles"
	StatusActive          CycleStatus = "active"
	StatusSuperseded      CycleStatus = "superseded"
	StatusFailed          CycleStatus = "failed"
)

// Cycle is the persisted state of one ingestion run, keyed by model
// initialization time.
type Cycle struct {
	InitTime time.Time
	Status   CycleStatus
	IsActive bool

	DownloadTotal       int
	DownloadCompleted   int
	DownloadFailed      int
	DownloadBytes       int64
	DownloadStartedAt   *time.Time
	DownloadCompletedAt *time.Time

	ProcessTotal       int
	ProcessCompleted   int
	ProcessFailed      int
	ProcessStartedAt   *time.Time
	ProcessCompletedAt *time.Time

	IngestSurfaceRows  int
	IngestPressureRows int
	IngestCompletedAt  *time.Time

	ActivatedAt  *time.Time
	SupersededAt *time.Time

	TotalErrors     int
	LastError       *string
	TotalDurationMS *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCycle returns a freshly discovered cycle for initTime.
func NewCycle(initTime time.Time) *Cycle {
	return &Cycle{InitTime: initTime.UTC(), Status: StatusDiscovered}
}

// Processed reports whether the cycle has already made it through ingestion
// and should not be run again.
func (c *Cycle) Processed() bool {
	return c.Status == StatusActive || c.Status == StatusGeneratingTiles
}

// Reset returns a previously seen cycle to discovered so a retry starts from
// clean counters instead of accumulating stale state.
func (c *Cycle) Reset() {
	*c = Cycle{
		InitTime:  c.InitTime,
		Status:    StatusDiscovered,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}

// Fail records err as the last error and bumps the error counter.
func (c *Cycle) Fail(err error) {
	msg := err.Error()
	c.LastError = &msg
	c.TotalErrors++
}

// MaxForecastHour is the longest hourly forecast the service ingests or serves.
const MaxForecastHour = 18

// ValidTime returns the time a forecast hour of this cycle is valid for.
func ValidTime(initTime time.Time, forecastHour int) time.Time {
	return initTime.Add(time.Duration(forecastHour) * time.Hour)
}
