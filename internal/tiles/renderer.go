package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/observability"
	"github.com/couchcryptid/hrrr-tile-service/internal/raster"
	"golang.org/x/sync/singleflight"
)

// Rasters supplies rasters for the active cycle. Loads return nil, nil when
// there is nothing to draw.
type Rasters interface {
	CheckCycleChange(ctx context.Context) (bool, error)
	Load(ctx context.Context, fh int) (*raster.Raster, error)
	LoadPressure(ctx context.Context, fh, level int) (*raster.PressureRaster, error)
}

// Renderer draws and caches tiles.
type Renderer struct {
	rasters     Rasters
	region      domain.Region
	cache       *Cache
	group       singleflight.Group
	transparent []byte
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewRenderer creates a renderer whose tile cache holds cacheSize entries.
func NewRenderer(rasters Rasters, region domain.Region, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) (*Renderer, error) {
	empty, err := encode(image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize)))
	if err != nil {
		return nil, fmt.Errorf("encode transparent tile: %w", err)
	}
	return &Renderer{
		rasters:     rasters,
		region:      region,
		cache:       NewCache(cacheSize),
		transparent: empty,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Transparent returns the shared fully transparent tile.
func (r *Renderer) Transparent() []byte { return r.transparent }

// Render returns the PNG for req. Tiles outside the region, and tiles with
// no data behind them, come back as the transparent tile. The returned
// slice is shared with the cache and must not be modified.
func (r *Renderer) Render(ctx context.Context, req Request) ([]byte, error) {
	r.Refresh(ctx)

	b := TileBounds(req.Z, req.X, req.Y)
	if !r.region.Overlaps(b.MinLat, b.MaxLat, b.MinLng, b.MaxLng) {
		r.metrics.TileRequests.WithLabelValues("out_of_bounds").Inc()
		return r.transparent, nil
	}

	gen := r.cache.Generation()
	key := req.Key()
	if tile, ok := r.cache.Get(key); ok {
		r.metrics.TileRequests.WithLabelValues("hit").Inc()
		return tile, nil
	}

	flight := key + "@" + strconv.FormatUint(gen, 10)
	ch := r.group.DoChan(flight, func() (any, error) {
		if tile, ok := r.cache.Get(key); ok {
			return tile, nil
		}
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), raster.LoadTimeout)
		defer cancel()
		return r.render(detached, req, key, gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh checks whether a new cycle has been activated and, if so, drops
// cached tiles along with the rasters. A failed check is logged and the
// current caches stay in use.
func (r *Renderer) Refresh(ctx context.Context) {
	changed, err := r.rasters.CheckCycleChange(ctx)
	if err != nil {
		r.logger.Warn("cycle change check failed", "error", err)
		return
	}
	if changed {
		r.cache.Clear()
		r.metrics.TileCacheSize.Set(0)
	}
}

// render draws req. The tile is cached only if the cache has not been
// cleared since gen.
func (r *Renderer) render(ctx context.Context, req Request, key string, gen uint64) ([]byte, error) {
	start := time.Now()

	sample, err := r.sampler(ctx, req)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		r.metrics.TileRequests.WithLabelValues("empty").Inc()
		return r.transparent, nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	total := TotalPixels(req.Z)
	for py := range TileSize {
		lat := LatFromPixel(float64(req.Y*TileSize+py), total)
		for px := range TileSize {
			lng := LngFromPixel(float64(req.X*TileSize+px), total)
			if !r.region.Contains(lat, lng) {
				continue
			}
			if c := sample(lat, lng); c.A != 0 {
				img.SetNRGBA(px, py, c)
			}
		}
	}

	out, err := encode(img)
	if err != nil {
		return nil, fmt.Errorf("encode tile %s: %w", key, err)
	}
	if !r.cache.PutIfCurrent(gen, key, out) {
		r.logger.Debug("tile rendered before cycle change not cached", "tile", key)
	}

	r.metrics.TileRequests.WithLabelValues("miss").Inc()
	r.metrics.TileCacheSize.Set(float64(r.cache.Len()))
	r.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

// sampler loads the raster behind req and returns its color function, or
// nil if there is no raster.
func (r *Renderer) sampler(ctx context.Context, req Request) (func(lat, lng float64) color.NRGBA, error) {
	if req.Product.UsesLevel() {
		pr, err := r.rasters.LoadPressure(ctx, req.ForecastHour, req.Level)
		if err != nil || pr == nil {
			return nil, err
		}
		return func(lat, lng float64) color.NRGBA {
			return HumidityColor(raster.Bilinear(pr.Region, pr.RelativeHumidity, lat, lng))
		}, nil
	}

	sr, err := r.rasters.Load(ctx, req.ForecastHour)
	if err != nil || sr == nil {
		return nil, err
	}

	var ch []float32
	switch req.Product {
	case ProductFlightCategory:
		return func(lat, lng float64) color.NRGBA {
			return FlightCategoryColor(sr.Category(lat, lng))
		}, nil
	case ProductVisibility:
		return func(lat, lng float64) color.NRGBA {
			return VisibilityColor(raster.Bilinear(sr.Region, sr.Visibility, lat, lng))
		}, nil
	case ProductCloudsTotal:
		ch = sr.CloudTotal
	case ProductCloudsLow:
		ch = sr.CloudLow
	case ProductCloudsMid:
		ch = sr.CloudMid
	case ProductCloudsHigh:
		ch = sr.CloudHigh
	default:
		return nil, fmt.Errorf("invalid product %q", req.Product)
	}
	return func(lat, lng float64) color.NRGBA {
		return CloudColor(raster.Bilinear(sr.Region, ch, lat, lng))
	}, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
