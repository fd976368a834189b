package raster

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu            sync.Mutex
	active        *domain.Cycle
	activeErr     error
	surface       []domain.SurfaceRow
	pressure      []domain.PressureRow
	rowsErr       error
	activeCalls   int
	surfaceCalls  int
	pressureCalls int
}

func (s *fakeStore) ActiveCycle(_ context.Context) (*domain.Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCalls++
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	if s.active == nil {
		return nil, domain.ErrNotFound
	}
	c := *s.active
	return &c, nil
}

func (s *fakeStore) SurfaceRows(_ context.Context, _ time.Time, _ int) ([]domain.SurfaceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaceCalls++
	return s.surface, s.rowsErr
}

func (s *fakeStore) PressureRows(_ context.Context, _ time.Time, _, _ int) ([]domain.PressureRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressureCalls++
	return s.pressure, s.rowsErr
}

func (s *fakeStore) setActive(initTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &domain.Cycle{InitTime: initTime, Status: domain.StatusActive, IsActive: true}
}

func (s *fakeStore) calls() (active, surface, pressure int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCalls, s.surfaceCalls, s.pressureCalls
}

func newTestCache(store Store, clock clockwork.Clock) (*Cache, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewCache(store, smallRegion, time.Minute, clock, slog.Default(), m), m
}

func seededStore() *fakeStore {
	s := &fakeStore{
		surface:  []domain.SurfaceRow{{Lat: 10, Lng: 20, CloudTotal: ptr(60.0)}},
		pressure: []domain.PressureRow{{Lat: 10, Lng: 20, PressureLevel: 850, RelativeHumidity: ptr(90.0)}},
	}
	s.setActive(testInit)
	return s
}

func TestCache_LoadCachesRaster(t *testing.T) {
	store := seededStore()
	c, m := newTestCache(store, clockwork.NewFakeClock())

	r1, err := c.Load(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, r1)
	assert.Equal(t, testInit, r1.InitTime)

	r2, err := c.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	_, surface, _ := store.calls()
	assert.Equal(t, 1, surface)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RasterLoads.WithLabelValues("surface", "loaded")), 0)
}

func TestCache_LoadPressureKeyedByLevel(t *testing.T) {
	store := seededStore()
	c, _ := newTestCache(store, clockwork.NewFakeClock())
	ctx := context.Background()

	a, err := c.LoadPressure(ctx, 1, 850)
	require.NoError(t, err)
	require.NotNil(t, a)
	b, err := c.LoadPressure(ctx, 1, 700)
	require.NoError(t, err)
	require.NotNil(t, b)
	again, err := c.LoadPressure(ctx, 1, 850)
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.Equal(t, 700, b.Level)
	_, _, pressure := store.calls()
	assert.Equal(t, 2, pressure)

	surface, press := c.Len()
	assert.Equal(t, 0, surface)
	assert.Equal(t, 2, press)
}

func TestCache_LoadNoActiveCycle(t *testing.T) {
	store := &fakeStore{}
	c, _ := newTestCache(store, clockwork.NewFakeClock())

	r, err := c.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, r)

	p, err := c.LoadPressure(context.Background(), 1, 850)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, surface, pressure := store.calls()
	assert.Zero(t, surface)
	assert.Zero(t, pressure)
}

func TestCache_LoadNoRowsIsNotCached(t *testing.T) {
	store := &fakeStore{}
	store.setActive(testInit)
	c, m := newTestCache(store, clockwork.NewFakeClock())

	for range 2 {
		r, err := c.Load(context.Background(), 4)
		require.NoError(t, err)
		assert.Nil(t, r)
	}
	_, surface, _ := store.calls()
	assert.Equal(t, 2, surface)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RasterLoads.WithLabelValues("surface", "empty")), 0)
}

func TestCache_LoadStoreError(t *testing.T) {
	store := seededStore()
	store.rowsErr = errors.New("connection reset")
	c, m := newTestCache(store, clockwork.NewFakeClock())

	_, err := c.Load(context.Background(), 1)
	require.ErrorContains(t, err, "connection reset")

	store.activeErr = errors.New("db down")
	_, err = c.LoadPressure(context.Background(), 1, 850)
	require.ErrorContains(t, err, "db down")
	assert.InDelta(t, 1, testutil.ToFloat64(m.RasterLoads.WithLabelValues("surface", "error")), 0)
}

func TestCache_ConcurrentLoadsShareOneQuery(t *testing.T) {
	store := seededStore()
	c, _ := newTestCache(store, clockwork.NewFakeClock())

	var wg sync.WaitGroup
	results := make([]*Raster, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Load(context.Background(), 2)
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	_, surface, _ := store.calls()
	assert.Equal(t, 1, surface)
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCache_CheckCycleChange(t *testing.T) {
	store := seededStore()
	clock := clockwork.NewFakeClockAt(testInit)
	c, _ := newTestCache(store, clock)
	ctx := context.Background()

	// First check adopts the active cycle.
	changed, err := c.CheckCycleChange(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = c.Load(ctx, 1)
	require.NoError(t, err)
	_, err = c.LoadPressure(ctx, 1, 850)
	require.NoError(t, err)

	// A newer cycle becomes active, but the check is throttled.
	newer := testInit.Add(time.Hour)
	store.setActive(newer)
	activeBefore, _, _ := store.calls()
	changed, err = c.CheckCycleChange(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	activeAfter, _, _ := store.calls()
	assert.Equal(t, activeBefore, activeAfter, "throttled check must not query")

	clock.Advance(time.Minute)
	changed, err = c.CheckCycleChange(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	surface, pressure := c.Len()
	assert.Zero(t, surface)
	assert.Zero(t, pressure)

	r, err := c.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, newer, r.InitTime)

	// Same cycle on the next check.
	clock.Advance(2 * time.Minute)
	changed, err = c.CheckCycleChange(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCache_CheckCycleChangeNoActive(t *testing.T) {
	c, _ := newTestCache(&fakeStore{}, clockwork.NewFakeClock())
	changed, err := c.CheckCycleChange(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCache_CheckCycleChangeError(t *testing.T) {
	store := &fakeStore{activeErr: errors.New("timeout")}
	c, _ := newTestCache(store, clockwork.NewFakeClock())
	_, err := c.CheckCycleChange(context.Background())
	require.ErrorContains(t, err, "timeout")
}

// gatedStore blocks the first surface query until gate is closed or the
// query's context ends.
type gatedStore struct {
	*fakeStore
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *gatedStore) SurfaceRows(ctx context.Context, initTime time.Time, fh int) ([]domain.SurfaceRow, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.fakeStore.SurfaceRows(ctx, initTime, fh)
}

func TestCache_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	store := &gatedStore{fakeStore: seededStore(), started: make(chan struct{}), gate: make(chan struct{})}
	c, _ := newTestCache(store, clockwork.NewFakeClock())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Load(leaderCtx, 1)
		leaderErr <- err
	}()
	<-store.started

	type result struct {
		r   *Raster
		err error
	}
	follower := make(chan result, 1)
	go func() {
		r, err := c.Load(context.Background(), 1)
		follower <- result{r, err}
	}()
	time.Sleep(20 * time.Millisecond) // let the follower join the in-flight load

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(store.gate)
	got := <-follower
	require.NoError(t, got.err)
	require.NotNil(t, got.r)

	_, surface, _ := store.calls()
	assert.Equal(t, 1, surface)
}
