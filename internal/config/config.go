package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabaseURL         string
	DatabaseAutoMigrate bool

	// Object store (NOAA HRRR bucket).
	ObjectStoreBaseURL      string
	ObjectStoreTimeout      time.Duration
	ObjectStoreMaxBodyBytes int64

	ForecastHours      []int
	PressureLevels     []int
	CycleLookbackHours int
	CycleRetention     time.Duration
	PipelineInterval   time.Duration
	PipelineEnabled    bool
	DownloadDir        string

	DecoderDir     string
	DecoderScript  string
	DecoderPython  string
	DecoderTimeout time.Duration

	RasterCycleCheckInterval time.Duration
	TileCacheSize            int
	TileZoomMin              int
	TileZoomMax              int

	// Cycle activation events.
	KafkaBrokers    []string
	KafkaCycleTopic string
	KafkaEnabled    bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ObjectStoreBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("OBJECTSTORE_BASE_URL", "https://noaa-hrrr-bdp-pds.s3.amazonaws.com"), "/"),
		DownloadDir:        sharedcfg.EnvOrDefault("DOWNLOAD_DIR", filepath.Join(os.TempDir(), "hrrr")),

		DecoderDir:    os.Getenv("DECODER_DIR"),
		DecoderScript: os.Getenv("DECODER_SCRIPT"),
		DecoderPython: os.Getenv("DECODER_PYTHON"),

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaCycleTopic: sharedcfg.EnvOrDefault("KAFKA_CYCLE_TOPIC", "hrrr-cycle-activated"),
	}

	if cfg.DatabaseAutoMigrate, err = parseBool("DATABASE_AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.PipelineEnabled, err = parseBool("PIPELINE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.ObjectStoreTimeout, err = parseDuration("OBJECTSTORE_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.CycleRetention, err = parseDuration("CYCLE_RETENTION", "24h"); err != nil {
		return nil, err
	}
	if cfg.PipelineInterval, err = parseDuration("PIPELINE_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	if cfg.DecoderTimeout, err = parseDuration("DECODER_TIMEOUT", "120s"); err != nil {
		return nil, err
	}
	if cfg.RasterCycleCheckInterval, err = parseDuration("RASTER_CYCLE_CHECK_INTERVAL", "60s"); err != nil {
		return nil, err
	}

	maxBody, err := parseInt("OBJECTSTORE_MAX_BODY_BYTES", 100<<20, 1)
	if err != nil {
		return nil, err
	}
	cfg.ObjectStoreMaxBodyBytes = int64(maxBody)

	if cfg.CycleLookbackHours, err = parseInt("CYCLE_LOOKBACK_HOURS", 12, 2); err != nil {
		return nil, err
	}
	if cfg.TileCacheSize, err = parseInt("TILE_CACHE_SIZE", 500, 1); err != nil {
		return nil, err
	}
	if cfg.TileZoomMin, err = parseInt("TILE_ZOOM_MIN", 2, 0); err != nil {
		return nil, err
	}
	if cfg.TileZoomMax, err = parseInt("TILE_ZOOM_MAX", 8, 0); err != nil {
		return nil, err
	}

	if cfg.ForecastHours, err = parseIntList("HRRR_FORECAST_HOURS", "1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18"); err != nil {
		return nil, err
	}
	if cfg.PressureLevels, err = parseIntList("HRRR_PRESSURE_LEVELS", "1000,925,850,700,500,400,300,250,200"); err != nil {
		return nil, err
	}

	for _, fh := range cfg.ForecastHours {
		if fh < 0 || fh > domain.MaxForecastHour {
			return nil, fmt.Errorf("HRRR_FORECAST_HOURS: forecast hour %d out of range 0-%d", fh, domain.MaxForecastHour)
		}
	}
	if cfg.TileZoomMin > cfg.TileZoomMax {
		return nil, errors.New("TILE_ZOOM_MIN must not exceed TILE_ZOOM_MAX")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaCycleTopic == "" {
		return nil, errors.New("KAFKA_CYCLE_TOPIC is required")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseInt reads an integer no smaller than floor.
func parseInt(key string, def, floor int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < floor {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseIntList(key, def string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(sharedcfg.EnvOrDefault(key, def), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", key, part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s is empty", key)
	}
	return out, nil
}
