package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/raster"
	"github.com/couchcryptid/hrrr-tile-service/internal/tiles"
)

// TileRenderer renders PNG tiles. Refresh drops cached tiles and rasters
// once a new cycle is active.
type TileRenderer interface {
	Render(ctx context.Context, req tiles.Request) ([]byte, error)
	Refresh(ctx context.Context)
}

// CycleReader reads cycle records and what the active cycle holds.
type CycleReader interface {
	ActiveCycle(ctx context.Context) (*domain.Cycle, error)
	ListCycles(ctx context.Context, limit int) ([]domain.Cycle, error)
	ForecastHours(ctx context.Context, initTime time.Time) ([]int, error)
	PressureLevels(ctx context.Context, initTime time.Time) ([]int, error)
}

// RasterLoader loads cached rasters for point lookups.
type RasterLoader interface {
	Load(ctx context.Context, fh int) (*raster.Raster, error)
	LoadPressure(ctx context.Context, fh, level int) (*raster.PressureRaster, error)
}

// API holds the handlers behind the tile and /hrrr routes.
type API struct {
	tiles   TileRenderer
	cycles  CycleReader
	rasters RasterLoader
	opts    Options
	logger  *slog.Logger
}

const (
	defaultCycleLimit   = 10
	maxCycleLimit       = 100
	defaultForecastHour = 1
	tileCacheControl    = "public, max-age=300"
)

var tileYPattern = regexp.MustCompile(`^(\d+)\.png$`)

// NewAPI creates the handlers.
func NewAPI(renderer TileRenderer, cycles CycleReader, rasters RasterLoader, opts Options, logger *slog.Logger) *API {
	return &API{tiles: renderer, cycles: cycles, rasters: rasters, opts: opts, logger: logger}
}

func (a *API) handleTile(w http.ResponseWriter, r *http.Request) {
	req, err := a.parseTileRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	png, err := a.tiles.Render(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		a.logger.Error("render tile failed", "tile", req.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", tileCacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png) //nolint:errcheck // client went away
}

func (a *API) parseTileRequest(r *http.Request) (tiles.Request, error) {
	product, err := tiles.ParseProduct(r.PathValue("product"))
	if err != nil {
		return tiles.Request{}, fmt.Errorf("%w; valid products: %v", err, tiles.Products)
	}

	m := tileYPattern.FindStringSubmatch(r.PathValue("y"))
	if m == nil {
		return tiles.Request{}, errors.New("tile URL must end with {y}.png")
	}
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(m[1])
	if errZ != nil || errX != nil || errY != nil {
		return tiles.Request{}, errors.New("z, x, y must be integers")
	}
	if z < a.opts.ZoomMin || z > a.opts.ZoomMax {
		return tiles.Request{}, fmt.Errorf("zoom must be between %d and %d", a.opts.ZoomMin, a.opts.ZoomMax)
	}
	if n := 1 << z; x < 0 || x >= n || y < 0 || y >= n {
		return tiles.Request{}, fmt.Errorf("x and y must be between 0 and %d at zoom %d", n-1, z)
	}

	q := r.URL.Query()
	fh, err := intParam(q.Get("fh"), defaultForecastHour)
	if err != nil {
		return tiles.Request{}, fmt.Errorf("fh: %w", err)
	}
	if fh < 0 || fh > domain.MaxForecastHour {
		return tiles.Request{}, fmt.Errorf("forecast hour must be between 0 and %d", domain.MaxForecastHour)
	}
	level, err := intParam(q.Get("level"), tiles.DefaultLevel)
	if err != nil {
		return tiles.Request{}, fmt.Errorf("level: %w", err)
	}
	if product.UsesLevel() && !slices.Contains(a.opts.PressureLevels, level) {
		return tiles.Request{}, fmt.Errorf("invalid pressure level %d; valid: %v", level, a.opts.PressureLevels)
	}

	return tiles.Request{Product: product, Z: z, X: x, Y: y, ForecastHour: fh, Level: level}, nil
}

func (a *API) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), defaultCycleLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxCycleLimit)

	cycles, err := a.cycles.ListCycles(r.Context(), limit)
	if err != nil {
		a.logger.Error("list cycles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list cycles failed")
		return
	}
	writeJSON(w, http.StatusOK, newCyclesView(cycles))
}

func (a *API) handleMeta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	active, err := a.cycles.ActiveCycle(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, metaView{Model: "hrrr", Products: map[tiles.Product]productView{}})
		return
	}
	if err != nil {
		a.logger.Error("find active cycle failed", "error", err)
		writeError(w, http.StatusInternalServerError, "metadata unavailable")
		return
	}

	hours, err := a.cycles.ForecastHours(ctx, active.InitTime)
	if err != nil {
		a.logger.Error("list forecast hours failed", "init_time", active.InitTime, "error", err)
		writeError(w, http.StatusInternalServerError, "metadata unavailable")
		return
	}
	levels, err := a.cycles.PressureLevels(ctx, active.InitTime)
	if err != nil {
		a.logger.Error("list pressure levels failed", "init_time", active.InitTime, "error", err)
		writeError(w, http.StatusInternalServerError, "metadata unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newMetaView(active.InitTime, hours, levels))
}

func (a *API) handlePoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	if !a.opts.Region.Contains(lat, lng) {
		writeError(w, http.StatusBadRequest, "point is outside the data region")
		return
	}
	fh, err := intParam(q.Get("fh"), defaultForecastHour)
	if err != nil || fh < 0 || fh > domain.MaxForecastHour {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("forecast hour must be between 0 and %d", domain.MaxForecastHour))
		return
	}

	ctx := r.Context()
	a.tiles.Refresh(ctx)
	out := pointView{Lat: lat, Lng: lng, ForecastHour: fh}

	sr, err := a.rasters.Load(ctx, fh)
	if err != nil {
		a.logger.Error("load raster failed", "forecast_hour", fh, "error", err)
		writeError(w, http.StatusInternalServerError, "point lookup failed")
		return
	}
	if sr != nil {
		p := sr.Sample(lat, lng)
		out.InitTime = &sr.InitTime
		out.Surface = &p
	}

	if raw := q.Get("level"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil || !slices.Contains(a.opts.PressureLevels, level) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid pressure level %q; valid: %v", raw, a.opts.PressureLevels))
			return
		}
		pr, err := a.rasters.LoadPressure(ctx, fh, level)
		if err != nil {
			a.logger.Error("load pressure raster failed", "forecast_hour", fh, "pressure_level", level, "error", err)
			writeError(w, http.StatusInternalServerError, "point lookup failed")
			return
		}
		if pr != nil {
			p := pr.Sample(lat, lng)
			out.InitTime = &pr.InitTime
			out.Pressure = &p
		}
	}

	if out.Surface == nil && out.Pressure == nil {
		writeError(w, http.StatusNotFound, "no data for the active cycle at this forecast hour")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
