// Package pipeline drives HRRR cycles from the object store into the grid
// store: discover, download, decode, ingest, activate, clean up.
package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/idx"
)

// ObjectStore reads HRRR files from the remote bucket.
type ObjectStore interface {
	Exists(ctx context.Context, url string) error
	IndexRanges(ctx context.Context, idxURL string, patterns []string) ([]idx.ByteRange, error)
	DownloadRanges(ctx context.Context, fileURL string, ranges []idx.ByteRange, outPath string) (int64, error)
}

// Decoder turns downloaded GRIB2 subsets into grid rows.
type Decoder interface {
	Decode(ctx context.Context, req domain.DecodeRequest) (domain.DecodeResult, error)
}

// CycleStore persists cycle records. FindCycle returns domain.ErrNotFound
// for unknown init times.
type CycleStore interface {
	FindCycle(ctx context.Context, initTime time.Time) (*domain.Cycle, error)
	SaveCycle(ctx context.Context, c *domain.Cycle) error
	// ActivateCycle supersedes the active cycle and activates initTime in
	// one transaction.
	ActivateCycle(ctx context.Context, initTime, at time.Time) error
	// StaleCycles lists superseded cycles whose superseded_at is before cutoff.
	StaleCycles(ctx context.Context, cutoff time.Time) ([]time.Time, error)
	// DeleteCycle removes a cycle record and all of its grid rows.
	DeleteCycle(ctx context.Context, initTime time.Time) error
}

// GridWriter inserts grid rows, ignoring rows that already exist.
type GridWriter interface {
	InsertSurfaceRows(ctx context.Context, rows []domain.SurfaceRow) error
	InsertPressureRows(ctx context.Context, rows []domain.PressureRow) error
}

// Notifier is told about newly activated cycles.
type Notifier interface {
	CycleActivated(ctx context.Context, c domain.Cycle) error
}
