package raster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Store reads the active cycle and its grid rows. ActiveCycle returns
// domain.ErrNotFound when no cycle is active.
type Store interface {
	ActiveCycle(ctx context.Context) (*domain.Cycle, error)
	SurfaceRows(ctx context.Context, initTime time.Time, forecastHour int) ([]domain.SurfaceRow, error)
	PressureRows(ctx context.Context, initTime time.Time, forecastHour, level int) ([]domain.PressureRow, error)
}

// Cache builds rasters on demand from the active cycle and keeps them until
// the active cycle changes. Concurrent loads of the same key share one query.
type Cache struct {
	store         Store
	region        domain.Region
	checkInterval time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics

	group singleflight.Group

	mu        sync.Mutex
	surface   map[string]*Raster
	pressure  map[string]*PressureRaster
	lastInit  time.Time
	lastCheck time.Time
	// generation is bumped on every clear so loads that started before a
	// cycle change don't repopulate the maps with stale rasters.
	generation uint64
}

// NewCache creates an empty raster cache. checkInterval throttles
// CheckCycleChange.
func NewCache(store Store, region domain.Region, checkInterval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		store:         store,
		region:        region,
		checkInterval: checkInterval,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		surface:       make(map[string]*Raster),
		pressure:      make(map[string]*PressureRaster),
	}
}

// LoadTimeout bounds a shared load once it no longer follows the caller's
// cancellation.
const LoadTimeout = 30 * time.Second

func surfaceKey(fh int) string { return strconv.Itoa(fh) }

func pressureKey(fh, level int) string { return fmt.Sprintf("%d:%d", fh, level) }

// flightKey scopes in-flight loads to a generation so callers arriving after
// a clear never join a load of the previous cycle.
func flightKey(kind, key string, gen uint64) string {
	return kind + ":" + key + "@" + strconv.FormatUint(gen, 10)
}

// Load returns the surface raster for forecast hour fh of the active cycle.
// It returns nil, nil when there is no active cycle or the hour has no rows.
func (c *Cache) Load(ctx context.Context, fh int) (*Raster, error) {
	key := surfaceKey(fh)

	c.mu.Lock()
	if r, ok := c.surface[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	gen := c.generation
	c.mu.Unlock()

	return share(ctx, &c.group, flightKey("surface", key, gen), func(ctx context.Context) (*Raster, error) {
		cycle, err := c.activeCycle(ctx)
		if err != nil || cycle == nil {
			return nil, err
		}
		rows, err := c.store.SurfaceRows(ctx, cycle.InitTime, fh)
		if err != nil {
			c.metrics.RasterLoads.WithLabelValues("surface", "error").Inc()
			return nil, fmt.Errorf("load surface rows for f%02d: %w", fh, err)
		}
		if len(rows) == 0 {
			c.metrics.RasterLoads.WithLabelValues("surface", "empty").Inc()
			return nil, nil
		}

		r := BuildSurface(c.region, cycle.InitTime, fh, rows)
		c.mu.Lock()
		if c.generation == gen {
			c.surface[key] = r
			c.remember(cycle.InitTime)
		}
		c.mu.Unlock()

		c.metrics.RasterLoads.WithLabelValues("surface", "loaded").Inc()
		c.logger.Debug("surface raster loaded",
			"init_time", cycle.InitTime,
			"forecast_hour", fh,
			"rows", len(rows),
		)
		return r, nil
	})
}

// LoadPressure returns the raster for forecast hour fh at a pressure level.
// It returns nil, nil when there is no active cycle or no rows.
func (c *Cache) LoadPressure(ctx context.Context, fh, level int) (*PressureRaster, error) {
	key := pressureKey(fh, level)

	c.mu.Lock()
	if r, ok := c.pressure[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	gen := c.generation
	c.mu.Unlock()

	return share(ctx, &c.group, flightKey("pressure", key, gen), func(ctx context.Context) (*PressureRaster, error) {
		cycle, err := c.activeCycle(ctx)
		if err != nil || cycle == nil {
			return nil, err
		}
		rows, err := c.store.PressureRows(ctx, cycle.InitTime, fh, level)
		if err != nil {
			c.metrics.RasterLoads.WithLabelValues("pressure", "error").Inc()
			return nil, fmt.Errorf("load pressure rows for f%02d %dhPa: %w", fh, level, err)
		}
		if len(rows) == 0 {
			c.metrics.RasterLoads.WithLabelValues("pressure", "empty").Inc()
			return nil, nil
		}

		r := BuildPressure(c.region, cycle.InitTime, fh, level, rows)
		c.mu.Lock()
		if c.generation == gen {
			c.pressure[key] = r
			c.remember(cycle.InitTime)
		}
		c.mu.Unlock()

		c.metrics.RasterLoads.WithLabelValues("pressure", "loaded").Inc()
		c.logger.Debug("pressure raster loaded",
			"init_time", cycle.InitTime,
			"forecast_hour", fh,
			"pressure_level", level,
			"rows", len(rows),
		)
		return r, nil
	})
}

// CheckCycleChange re-reads the active cycle at most once per check
// interval. If its init time differs from the one the cached rasters were
// built from, both raster maps are cleared and true is returned; callers
// holding derived caches should clear them too.
func (c *Cache) CheckCycleChange(ctx context.Context) (bool, error) {
	now := c.clock.Now()
	c.mu.Lock()
	if !c.lastCheck.IsZero() && now.Sub(c.lastCheck) < c.checkInterval {
		c.mu.Unlock()
		return false, nil
	}
	c.lastCheck = now
	c.mu.Unlock()

	cycle, err := c.store.ActiveCycle(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check active cycle: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastInit.IsZero() {
		c.lastInit = cycle.InitTime
		return false, nil
	}
	if cycle.InitTime.Equal(c.lastInit) {
		return false, nil
	}

	c.logger.Info("active cycle changed, clearing rasters",
		"previous_init_time", c.lastInit,
		"init_time", cycle.InitTime,
		"surface_rasters", len(c.surface),
		"pressure_rasters", len(c.pressure),
	)
	clear(c.surface)
	clear(c.pressure)
	c.generation++
	c.lastInit = cycle.InitTime
	return true, nil
}

// Len returns the number of cached surface and pressure rasters.
func (c *Cache) Len() (surface, pressure int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.surface), len(c.pressure)
}

func (c *Cache) activeCycle(ctx context.Context) (*domain.Cycle, error) {
	cycle, err := c.store.ActiveCycle(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active cycle: %w", err)
	}
	return cycle, nil
}

// remember adopts initTime as the cached cycle unless one is already known;
// a differing cycle is left for CheckCycleChange to detect. Callers hold mu.
func (c *Cache) remember(initTime time.Time) {
	if c.lastInit.IsZero() {
		c.lastInit = initTime
	}
}

// share runs fn once per key across concurrent callers. fn gets a context
// that keeps the first caller's values but not its cancellation, bounded by
// LoadTimeout; each caller stops waiting when its own ctx is done.
func share[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := g.DoChan(key, func() (any, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		v, err := fn(detached)
		return v, err
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
