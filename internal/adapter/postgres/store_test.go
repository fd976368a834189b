package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	initA = time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	initB = time.Date(2026, 2, 13, 11, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: NewGormLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s := New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	return s
}

func ptr[T any](v T) *T { return &v }

func saveCycle(t *testing.T, s *Store, c *domain.Cycle) {
	t.Helper()
	require.NoError(t, s.SaveCycle(context.Background(), c))
}

func TestStore_FindCycle_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindCycle(context.Background(), initA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SaveAndFindCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := domain.NewCycle(initA)
	saveCycle(t, s, c)
	assert.False(t, c.CreatedAt.IsZero())

	c.Status = domain.StatusDownloading
	c.DownloadTotal = 18
	c.DownloadCompleted = 3
	c.DownloadBytes = 12345
	c.Fail(assert.AnError)
	saveCycle(t, s, c)

	got, err := s.FindCycle(ctx, initA)
	require.NoError(t, err)
	assert.True(t, got.InitTime.Equal(initA))
	assert.Equal(t, domain.StatusDownloading, got.Status)
	assert.Equal(t, 18, got.DownloadTotal)
	assert.Equal(t, 3, got.DownloadCompleted)
	assert.Equal(t, int64(12345), got.DownloadBytes)
	assert.Equal(t, 1, got.TotalErrors)
	require.NotNil(t, got.LastError)
	assert.Equal(t, assert.AnError.Error(), *got.LastError)
	assert.WithinDuration(t, c.CreatedAt, got.CreatedAt, time.Second)
}

func TestStore_ActivateCycle_SupersedesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveCycle(t, s, domain.NewCycle(initA))
	saveCycle(t, s, domain.NewCycle(initB))

	first := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.ActivateCycle(ctx, initA, first))

	active, err := s.ActiveCycle(ctx)
	require.NoError(t, err)
	assert.True(t, active.InitTime.Equal(initA))

	second := first.Add(time.Hour)
	require.NoError(t, s.ActivateCycle(ctx, initB, second))

	cycles, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)

	activeCount := 0
	for _, c := range cycles {
		if c.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	a, err := s.FindCycle(ctx, initA)
	require.NoError(t, err)
	assert.False(t, a.IsActive)
	assert.Equal(t, domain.StatusSuperseded, a.Status)
	require.NotNil(t, a.SupersededAt)
	assert.True(t, a.SupersededAt.Equal(second))

	b, err := s.FindCycle(ctx, initB)
	require.NoError(t, err)
	assert.True(t, b.IsActive)
	assert.Equal(t, domain.StatusActive, b.Status)
	require.NotNil(t, b.ActivatedAt)
}

func TestStore_ActivateCycle_UnknownRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveCycle(t, s, domain.NewCycle(initA))
	require.NoError(t, s.ActivateCycle(ctx, initA, initA))

	err := s.ActivateCycle(ctx, initB, initB)
	require.ErrorIs(t, err, domain.ErrNotFound)

	active, err := s.ActiveCycle(ctx)
	require.NoError(t, err)
	assert.True(t, active.InitTime.Equal(initA), "failed activation must not supersede the active cycle")
}

func TestStore_ActiveCycle_None(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ActiveCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListCyclesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for i := range 5 {
		saveCycle(t, s, domain.NewCycle(initA.Add(time.Duration(i)*time.Hour)))
	}

	cycles, err := s.ListCycles(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, cycles, 3)
	assert.True(t, cycles[0].InitTime.Equal(initA.Add(4*time.Hour)))
	assert.True(t, cycles[2].InitTime.Equal(initA.Add(2*time.Hour)))
}

func TestStore_InsertRowsIgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []domain.SurfaceRow{
		{InitTime: initA, ForecastHour: 1, ValidTime: initA.Add(time.Hour), Lat: 24, Lng: -125, CloudTotal: ptr(85.0), FlightCategory: ptr("IFR")},
		{InitTime: initA, ForecastHour: 1, ValidTime: initA.Add(time.Hour), Lat: 24, Lng: -124},
	}
	require.NoError(t, s.InsertSurfaceRows(ctx, rows))
	require.NoError(t, s.InsertSurfaceRows(ctx, rows))
	require.NoError(t, s.InsertSurfaceRows(ctx, nil))

	got, err := s.SurfaceRows(ctx, initA, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	var first domain.SurfaceRow
	for _, r := range got {
		if r.Lng == -125 {
			first = r
		}
	}
	require.NotNil(t, first.CloudTotal)
	assert.InDelta(t, 85, *first.CloudTotal, 1e-9)
	require.NotNil(t, first.FlightCategory)
	assert.Equal(t, "IFR", *first.FlightCategory)
	assert.Nil(t, first.VisibilitySM)

	none, err := s.SurfaceRows(ctx, initA, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_PressureRowsByLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []domain.PressureRow{
		{InitTime: initA, ForecastHour: 1, ValidTime: initA, Lat: 30, Lng: -100, PressureLevel: 850, AltitudeFt: 5000, RelativeHumidity: ptr(90.0)},
		{InitTime: initA, ForecastHour: 1, ValidTime: initA, Lat: 30, Lng: -100, PressureLevel: 700, AltitudeFt: 10000},
		{InitTime: initA, ForecastHour: 2, ValidTime: initA, Lat: 30, Lng: -100, PressureLevel: 850, AltitudeFt: 5000},
	}
	require.NoError(t, s.InsertPressureRows(ctx, rows))
	require.NoError(t, s.InsertPressureRows(ctx, rows[:1]))

	got, err := s.PressureRows(ctx, initA, 1, 850)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5000, got[0].AltitudeFt)
	require.NotNil(t, got[0].RelativeHumidity)
	assert.InDelta(t, 90, *got[0].RelativeHumidity, 1e-9)

	levels, err := s.PressureLevels(ctx, initA)
	require.NoError(t, err)
	assert.Equal(t, []int{850, 700}, levels)
}

func TestStore_ForecastHours(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var rows []domain.SurfaceRow
	for _, fh := range []int{3, 1, 2, 1} {
		rows = append(rows, domain.SurfaceRow{InitTime: initA, ForecastHour: fh, ValidTime: initA, Lat: 24 + float64(len(rows)), Lng: -125})
	}
	require.NoError(t, s.InsertSurfaceRows(ctx, rows))

	hours, err := s.ForecastHours(ctx, initA)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, hours)
}

func TestStore_StaleAndDeleteCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := domain.NewCycle(initA)
	old.Status = domain.StatusSuperseded
	old.SupersededAt = ptr(initA.Add(time.Hour))
	saveCycle(t, s, old)

	recent := domain.NewCycle(initB)
	recent.Status = domain.StatusSuperseded
	recent.SupersededAt = ptr(initB.Add(48 * time.Hour))
	saveCycle(t, s, recent)

	require.NoError(t, s.InsertSurfaceRows(ctx, []domain.SurfaceRow{{InitTime: initA, ForecastHour: 1, ValidTime: initA, Lat: 24, Lng: -125}}))
	require.NoError(t, s.InsertPressureRows(ctx, []domain.PressureRow{{InitTime: initA, ForecastHour: 1, ValidTime: initA, Lat: 24, Lng: -125, PressureLevel: 850}}))
	require.NoError(t, s.InsertSurfaceRows(ctx, []domain.SurfaceRow{{InitTime: initB, ForecastHour: 1, ValidTime: initB, Lat: 24, Lng: -125}}))

	stale, err := s.StaleCycles(ctx, initA.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.True(t, stale[0].Equal(initA))

	require.NoError(t, s.DeleteCycle(ctx, initA))

	_, err = s.FindCycle(ctx, initA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	rows, err := s.SurfaceRows(ctx, initA, 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
	prs, err := s.PressureRows(ctx, initA, 1, 850)
	require.NoError(t, err)
	assert.Empty(t, prs)

	kept, err := s.SurfaceRows(ctx, initB, 1)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestStore_CheckReadiness(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.CheckReadiness(context.Background()))
}
