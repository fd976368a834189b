// Package postgres persists cycles and grid rows with gorm. Production uses
// PostgreSQL; any gorm dialector works.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the cycle and grid repository.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL at dsn.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: NewGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the tables and indexes.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&cycleModel{}, &surfaceModel{}, &pressureModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindCycle returns the cycle for initTime or domain.ErrNotFound.
func (s *Store) FindCycle(ctx context.Context, initTime time.Time) (*domain.Cycle, error) {
	var m cycleModel
	err := s.db.WithContext(ctx).Where("init_time = ?", initTime.UTC()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cycle: %w", err)
	}
	c := m.toDomain()
	return &c, nil
}

// SaveCycle inserts or fully updates c and copies the stored timestamps back.
func (s *Store) SaveCycle(ctx context.Context, c *domain.Cycle) error {
	m := toCycleModel(c)
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("save cycle: %w", err)
	}
	c.CreatedAt = m.CreatedAt
	c.UpdatedAt = m.UpdatedAt
	return nil
}

// ActivateCycle supersedes the active cycle and activates initTime in one
// transaction. It returns domain.ErrNotFound if initTime has no record.
func (s *Store) ActivateCycle(ctx context.Context, initTime, at time.Time) error {
	at = at.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&cycleModel{}).
			Where("is_active = ?", true).
			Updates(map[string]any{
				"is_active":     false,
				"status":        string(domain.StatusSuperseded),
				"superseded_at": at,
			}).Error
		if err != nil {
			return fmt.Errorf("supersede active cycle: %w", err)
		}

		res := tx.Model(&cycleModel{}).
			Where("init_time = ?", initTime.UTC()).
			Updates(map[string]any{
				"is_active":    true,
				"status":       string(domain.StatusActive),
				"activated_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("activate cycle: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("activate cycle %s: %w", initTime.UTC().Format(time.RFC3339), domain.ErrNotFound)
		}
		return nil
	})
}

// ActiveCycle returns the active cycle or domain.ErrNotFound.
func (s *Store) ActiveCycle(ctx context.Context) (*domain.Cycle, error) {
	var m cycleModel
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active cycle: %w", err)
	}
	c := m.toDomain()
	return &c, nil
}

// ListCycles returns the most recent cycles, newest first.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]domain.Cycle, error) {
	var models []cycleModel
	if err := s.db.WithContext(ctx).Order("init_time DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	out := make([]domain.Cycle, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

// StaleCycles lists superseded cycles whose superseded_at is before cutoff.
func (s *Store) StaleCycles(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	var models []cycleModel
	err := s.db.WithContext(ctx).
		Select("init_time").
		Where("status = ? AND superseded_at < ?", string(domain.StatusSuperseded), cutoff.UTC()).
		Order("init_time").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list stale cycles: %w", err)
	}
	out := make([]time.Time, len(models))
	for i, m := range models {
		out[i] = m.InitTime.UTC()
	}
	return out, nil
}

// DeleteCycle removes a cycle and its grid rows in one transaction.
func (s *Store) DeleteCycle(ctx context.Context, initTime time.Time) error {
	initTime = initTime.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("init_time = ?", initTime).Delete(&surfaceModel{}).Error; err != nil {
			return fmt.Errorf("delete surface rows: %w", err)
		}
		if err := tx.Where("init_time = ?", initTime).Delete(&pressureModel{}).Error; err != nil {
			return fmt.Errorf("delete pressure rows: %w", err)
		}
		if err := tx.Where("init_time = ?", initTime).Delete(&cycleModel{}).Error; err != nil {
			return fmt.Errorf("delete cycle: %w", err)
		}
		return nil
	})
}

// InsertSurfaceRows inserts rows in one transaction, skipping duplicates.
func (s *Store) InsertSurfaceRows(ctx context.Context, rows []domain.SurfaceRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := toSurfaceModels(rows)
	return s.insertIgnore(ctx, &models)
}

// InsertPressureRows inserts rows in one transaction, skipping duplicates.
func (s *Store) InsertPressureRows(ctx context.Context, rows []domain.PressureRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := toPressureModels(rows)
	return s.insertIgnore(ctx, &models)
}

func (s *Store) insertIgnore(ctx context.Context, models any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(models).Error; err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return nil
	})
}

// SurfaceRows returns every surface row for a cycle and forecast hour.
func (s *Store) SurfaceRows(ctx context.Context, initTime time.Time, forecastHour int) ([]domain.SurfaceRow, error) {
	var models []surfaceModel
	err := s.db.WithContext(ctx).
		Where("init_time = ? AND forecast_hour = ?", initTime.UTC(), forecastHour).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query surface rows: %w", err)
	}
	out := make([]domain.SurfaceRow, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

// PressureRows returns every pressure row for a cycle, forecast hour and level.
func (s *Store) PressureRows(ctx context.Context, initTime time.Time, forecastHour, level int) ([]domain.PressureRow, error) {
	var models []pressureModel
	err := s.db.WithContext(ctx).
		Where("init_time = ? AND forecast_hour = ? AND pressure_level = ?", initTime.UTC(), forecastHour, level).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query pressure rows: %w", err)
	}
	out := make([]domain.PressureRow, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

// ForecastHours lists the forecast hours stored for a cycle.
func (s *Store) ForecastHours(ctx context.Context, initTime time.Time) ([]int, error) {
	var hours []int
	err := s.db.WithContext(ctx).Model(&surfaceModel{}).
		Where("init_time = ?", initTime.UTC()).
		Distinct().
		Order("forecast_hour").
		Pluck("forecast_hour", &hours).Error
	if err != nil {
		return nil, fmt.Errorf("list forecast hours: %w", err)
	}
	return hours, nil
}

// PressureLevels lists the pressure levels stored for a cycle.
func (s *Store) PressureLevels(ctx context.Context, initTime time.Time) ([]int, error) {
	var levels []int
	err := s.db.WithContext(ctx).Model(&pressureModel{}).
		Where("init_time = ?", initTime.UTC()).
		Distinct().
		Order("pressure_level DESC").
		Pluck("pressure_level", &levels).Error
	if err != nil {
		return nil, fmt.Errorf("list pressure levels: %w", err)
	}
	return levels, nil
}

// NewGormLogger routes gorm's logs to logger: slow queries at warn, errors
// at error, everything else at debug.
func NewGormLogger(logger *slog.Logger) gormlogger.Interface {
	return gormlogger.New(slogWriter{logger: logger}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	switch {
	case strings.Contains(msg, "SLOW SQL"):
		w.logger.Warn(msg, "source", "gorm")
	case strings.Contains(msg, "error"), strings.Contains(msg, "Error"):
		w.logger.Error(msg, "source", "gorm")
	default:
		w.logger.Debug(msg, "source", "gorm")
	}
}
