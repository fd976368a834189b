package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrNoCycleAvailable is returned when discovery finds no cycle in the
	// lookback window.
	ErrNoCycleAvailable = errors.New("no HRRR cycle available")

	// ErrStageFailed is returned when every forecast hour of a stage failed.
	ErrStageFailed = errors.New("pipeline stage failed")
)

// DefaultSurfaceVars are the wrfsfc messages the decoder reads.
var DefaultSurfaceVars = []string{
	"TCDC:entire atmosphere",
	"LCDC:low cloud layer",
	"MCDC:middle cloud layer",
	"HCDC:high cloud layer",
	"HGT:cloud ceiling",
	"HGT:cloud base",
	"HGT:cloud top",
	"VIS:surface",
	"UGRD:10 m above ground",
	"VGRD:10 m above ground",
	"GUST:surface",
	"TMP:2 m above ground",
}

// DefaultPressureVars are the wrfprs variables read at every pressure level.
var DefaultPressureVars = []string{"HGT", "RH", "UGRD", "VGRD", "TMP"}

// Config controls what the orchestrator fetches and keeps.
type Config struct {
	Archive        domain.Archive
	Region         domain.Region
	GridSpacing    float64
	ForecastHours  []int
	PressureLevels []int
	SurfaceVars    []string
	PressureVars   []string
	LookbackHours  int
	Retention      time.Duration
	DownloadDir    string
}

// Result summarizes one orchestrator run.
type Result struct {
	RecordsUpdated int
	Errors         int
	LastError      string
}

// Orchestrator runs one cycle through the pipeline per call to Run.
type Orchestrator struct {
	cfg      Config
	store    ObjectStore
	decoder  Decoder
	cycles   CycleStore
	ingestor *Ingestor
	notifier Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator wires the pipeline stages.
func NewOrchestrator(cfg Config, store ObjectStore, dec Decoder, cycles CycleStore, grid GridWriter, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if len(cfg.SurfaceVars) == 0 {
		cfg.SurfaceVars = DefaultSurfaceVars
	}
	if len(cfg.PressureVars) == 0 {
		cfg.PressureVars = DefaultPressureVars
	}
	if cfg.GridSpacing == 0 {
		cfg.GridSpacing = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		decoder:  dec,
		cycles:   cycles,
		ingestor: NewIngestor(grid),
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithNotifier sets a notifier for activated cycles.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// hourFiles are the local subsets downloaded for one forecast hour.
type hourFiles struct {
	forecastHour int
	surfacePath  string
	pressurePath string
	bytes        int64
}

func (h hourFiles) paths() []string {
	var out []string
	for _, p := range []string{h.surfacePath, h.pressurePath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type decodedHour struct {
	files  hourFiles
	result domain.DecodeResult
}

// run is the state of one Run call.
type run struct {
	cycle  *domain.Cycle
	result Result
	logger *slog.Logger
	start  time.Time
	files  []string
}

func (r *run) hourFailed(err error) {
	r.cycle.Fail(err)
	r.result.Errors++
	r.result.LastError = err.Error()
}

// Run discovers the newest available cycle and, unless it was already
// processed, downloads, decodes, ingests and activates it.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	logger := o.logger.With("run_id", uuid.NewString())

	initTime, err := o.discover(ctx, logger)
	if err != nil {
		if errors.Is(err, ErrNoCycleAvailable) {
			o.metrics.PipelineRuns.WithLabelValues("no_cycle").Inc()
			return Result{Errors: 1, LastError: err.Error()}, err
		}
		return Result{}, err
	}
	logger = logger.With("init_time", initTime)

	cycle, err := o.cycles.FindCycle(ctx, initTime)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		cycle = domain.NewCycle(initTime)
	case err != nil:
		return Result{}, fmt.Errorf("find cycle: %w", err)
	case cycle.Processed():
		logger.Info("cycle already processed, skipping", "status", cycle.Status)
		o.metrics.PipelineRuns.WithLabelValues("skipped").Inc()
		return Result{}, nil
	default:
		logger.Info("retrying cycle", "previous_status", cycle.Status)
		cycle.Reset()
	}
	if err := o.cycles.SaveCycle(ctx, cycle); err != nil {
		return Result{}, fmt.Errorf("save cycle: %w", err)
	}

	r := &run{cycle: cycle, logger: logger, start: o.clock.Now()}
	defer o.removeFiles(r)

	if err := o.execute(ctx, r); err != nil {
		o.fail(ctx, r, err)
		o.metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return r.result, err
	}

	o.metrics.PipelineRuns.WithLabelValues("activated").Inc()
	o.metrics.PipelineDuration.Observe(o.clock.Since(r.start).Seconds())
	o.metrics.ActiveCycleAge.Set(o.clock.Since(initTime).Seconds())

	o.notify(ctx, r)
	o.cleanup(ctx, logger)

	logger.Info("cycle activated",
		"records", humanize.Comma(int64(r.result.RecordsUpdated)),
		"errors", r.result.Errors,
		"duration_ms", *cycle.TotalDurationMS,
	)
	return r.result, nil
}

// discover probes the first forecast hour's surface index from two hours
// back outward and returns the first init time that exists.
func (o *Orchestrator) discover(ctx context.Context, logger *slog.Logger) (time.Time, error) {
	now := o.clock.Now().UTC().Truncate(time.Hour)
	fh := o.cfg.ForecastHours[0]

	for back := 2; back <= o.cfg.LookbackHours; back++ {
		initTime := now.Add(-time.Duration(back) * time.Hour)
		url := o.cfg.Archive.IndexURL(initTime, domain.ProductSurface, fh)
		err := o.store.Exists(ctx, url)
		if err == nil {
			logger.Info("found cycle", "init_time", initTime, "hours_back", back)
			return initTime, nil
		}
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		logger.Debug("cycle not available", "init_time", initTime, "error", err)
	}
	return time.Time{}, ErrNoCycleAvailable
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	downloads, err := o.download(ctx, r)
	if err != nil {
		return err
	}
	decoded, err := o.process(ctx, r, downloads)
	if err != nil {
		return err
	}
	if err := o.ingest(ctx, r, decoded); err != nil {
		return err
	}
	return o.activate(ctx, r)
}

func (o *Orchestrator) download(ctx context.Context, r *run) ([]hourFiles, error) {
	c := r.cycle
	c.Status = domain.StatusDownloading
	c.DownloadStartedAt = o.now()
	c.DownloadTotal = len(o.cfg.ForecastHours)
	if err := o.save(ctx, c); err != nil {
		return nil, err
	}

	var (
		t         tally
		downloads []hourFiles
	)
	for _, fh := range o.cfg.ForecastHours {
		files, err := o.downloadHour(ctx, c.InitTime, fh)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			t.fail(err)
			c.DownloadFailed++
			r.hourFailed(err)
			o.metrics.StageFailures.WithLabelValues("download").Inc()
			r.logger.Error("download failed", "forecast_hour", fh, "error", err)
		} else {
			t.ok()
			c.DownloadCompleted++
			c.DownloadBytes += files.bytes
			o.metrics.DownloadBytes.Add(float64(files.bytes))
			r.files = append(r.files, files.paths()...)
			downloads = append(downloads, files)
			r.logger.Info("downloaded forecast hour", "forecast_hour", fh, "size", humanize.Bytes(uint64(files.bytes)))
		}
		if err := o.save(ctx, c); err != nil {
			return nil, err
		}
	}

	c.DownloadCompletedAt = o.now()
	if err := o.save(ctx, c); err != nil {
		return nil, err
	}
	if t.allFailed() {
		return nil, fmt.Errorf("%w: all downloads failed: %w", ErrStageFailed, t.lastErr)
	}
	return downloads, nil
}

// downloadHour fetches the surface and pressure subsets for one forecast
// hour. A file family with no matching messages is skipped.
func (o *Orchestrator) downloadHour(ctx context.Context, initTime time.Time, fh int) (files hourFiles, err error) {
	files.forecastHour = fh
	defer func() {
		if err != nil {
			removeAll(files.paths())
		}
	}()

	var n int64
	files.surfacePath, n, err = o.downloadProduct(ctx, initTime, domain.ProductSurface, fh, o.cfg.SurfaceVars)
	if err != nil {
		return files, err
	}
	files.bytes += n

	files.pressurePath, n, err = o.downloadProduct(ctx, initTime, domain.ProductPressure, fh, o.pressurePatterns())
	if err != nil {
		return files, err
	}
	files.bytes += n
	return files, nil
}

func (o *Orchestrator) downloadProduct(ctx context.Context, initTime time.Time, product domain.Product, fh int, patterns []string) (string, int64, error) {
	ranges, err := o.store.IndexRanges(ctx, o.cfg.Archive.IndexURL(initTime, product, fh), patterns)
	if err != nil {
		return "", 0, fmt.Errorf("%s f%02d index: %w", product, fh, err)
	}
	if len(ranges) == 0 {
		return "", 0, nil
	}

	path := filepath.Join(o.cfg.DownloadDir, domain.LocalName(initTime, product, fh))
	n, err := o.store.DownloadRanges(ctx, o.cfg.Archive.FileURL(initTime, product, fh), ranges, path)
	if err != nil {
		return "", 0, fmt.Errorf("%s f%02d download: %w", product, fh, err)
	}
	return path, n, nil
}

// pressurePatterns expands every pressure variable at every level, e.g.
// "RH:850 mb".
func (o *Orchestrator) pressurePatterns() []string {
	out := make([]string, 0, len(o.cfg.PressureVars)*len(o.cfg.PressureLevels))
	for _, v := range o.cfg.PressureVars {
		for _, level := range o.cfg.PressureLevels {
			out = append(out, fmt.Sprintf("%s:%d mb", v, level))
		}
	}
	return out
}

func (o *Orchestrator) process(ctx context.Context, r *run, downloads []hourFiles) ([]decodedHour, error) {
	c := r.cycle
	c.Status = domain.StatusProcessing
	c.ProcessStartedAt = o.now()
	c.ProcessTotal = len(downloads)
	if err := o.save(ctx, c); err != nil {
		return nil, err
	}

	var (
		t       tally
		decoded []decodedHour
	)
	for _, files := range downloads {
		res, err := o.decoder.Decode(ctx, domain.DecodeRequest{
			SurfacePath:    files.surfacePath,
			PressurePath:   files.pressurePath,
			Region:         o.cfg.Region,
			GridSpacing:    o.cfg.GridSpacing,
			PressureLevels: o.cfg.PressureLevels,
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			err = fmt.Errorf("decode f%02d: %w", files.forecastHour, err)
			t.fail(err)
			c.ProcessFailed++
			r.hourFailed(err)
			o.metrics.StageFailures.WithLabelValues("process").Inc()
			r.logger.Error("processing failed", "forecast_hour", files.forecastHour, "error", err)
			if rerr := removeAll(files.paths()); rerr != nil {
				r.logger.Warn("remove downloaded files", "forecast_hour", files.forecastHour, "error", rerr)
			}
		} else {
			t.ok()
			c.ProcessCompleted++
			decoded = append(decoded, decodedHour{files: files, result: res})
		}
		if err := o.save(ctx, c); err != nil {
			return nil, err
		}
	}

	c.ProcessCompletedAt = o.now()
	if err := o.save(ctx, c); err != nil {
		return nil, err
	}
	if t.allFailed() {
		return nil, fmt.Errorf("%w: all processing failed: %w", ErrStageFailed, t.lastErr)
	}
	return decoded, nil
}

func (o *Orchestrator) ingest(ctx context.Context, r *run, decoded []decodedHour) error {
	c := r.cycle
	c.Status = domain.StatusIngesting
	if err := o.save(ctx, c); err != nil {
		return err
	}

	for _, d := range decoded {
		surface, pressure, err := o.ingestor.Ingest(ctx, c.InitTime, d.files.forecastHour, d.result)
		c.IngestSurfaceRows += surface
		c.IngestPressureRows += pressure
		r.result.RecordsUpdated += surface + pressure
		o.metrics.IngestedRows.WithLabelValues("surface").Add(float64(surface))
		o.metrics.IngestedRows.WithLabelValues("pressure").Add(float64(pressure))
		if err != nil {
			o.metrics.StageFailures.WithLabelValues("ingest").Inc()
			return err
		}
		if err := o.save(ctx, c); err != nil {
			return err
		}
		if err := removeAll(d.files.paths()); err != nil {
			r.logger.Warn("remove downloaded files", "forecast_hour", d.files.forecastHour, "error", err)
		}
	}

	c.IngestCompletedAt = o.now()
	return o.save(ctx, c)
}

func (o *Orchestrator) activate(ctx context.Context, r *run) error {
	c := r.cycle
	at := o.clock.Now()
	if err := o.cycles.ActivateCycle(ctx, c.InitTime, at); err != nil {
		return fmt.Errorf("activate cycle: %w", err)
	}
	c.Status = domain.StatusActive
	c.IsActive = true
	c.ActivatedAt = &at
	ms := o.clock.Since(r.start).Milliseconds()
	c.TotalDurationMS = &ms
	return o.save(ctx, c)
}

// fail marks the cycle failed, keeping the record even if ctx is done.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) {
	c := r.cycle
	c.Status = domain.StatusFailed
	if errors.Is(err, ErrStageFailed) {
		// Per-hour failures were already counted.
		msg := err.Error()
		c.LastError = &msg
	} else {
		c.Fail(err)
		r.result.Errors++
	}
	r.result.LastError = err.Error()
	ms := o.clock.Since(r.start).Milliseconds()
	c.TotalDurationMS = &ms

	if serr := o.cycles.SaveCycle(context.WithoutCancel(ctx), c); serr != nil {
		r.logger.Error("save failed cycle", "error", serr)
	}
	r.logger.Error("cycle failed", "error", err, "duration_ms", ms)
}

func (o *Orchestrator) notify(ctx context.Context, r *run) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.CycleActivated(ctx, *r.cycle); err != nil {
		r.logger.Warn("publish cycle activated", "error", err)
	}
}

// cleanup deletes superseded cycles past the retention window. Failures are
// logged and do not fail the run.
func (o *Orchestrator) cleanup(ctx context.Context, logger *slog.Logger) {
	cutoff := o.clock.Now().Add(-o.cfg.Retention)
	stale, err := o.cycles.StaleCycles(ctx, cutoff)
	if err != nil {
		logger.Warn("list stale cycles", "error", err)
		return
	}

	var errs *multierror.Error
	for _, initTime := range stale {
		if err := o.cycles.DeleteCycle(ctx, initTime); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete cycle %s: %w", initTime.Format(time.RFC3339), err))
			continue
		}
		logger.Info("deleted stale cycle", "stale_init_time", initTime)
	}
	if err := errs.ErrorOrNil(); err != nil {
		logger.Warn("stale cycle cleanup incomplete", "error", err)
	}
}

// removeFiles deletes whatever downloads are still on disk when Run returns.
func (o *Orchestrator) removeFiles(r *run) {
	if err := removeAll(r.files); err != nil {
		r.logger.Warn("remove leftover downloads", "error", err)
	}
}

func (o *Orchestrator) save(ctx context.Context, c *domain.Cycle) error {
	if err := o.cycles.SaveCycle(ctx, c); err != nil {
		return fmt.Errorf("save cycle: %w", err)
	}
	return nil
}

func (o *Orchestrator) now() *time.Time {
	t := o.clock.Now()
	return &t
}

// removeAll removes paths, ignoring ones already gone.
func removeAll(paths []string) error {
	var errs *multierror.Error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
