// Package gormrecorder writes runs and tick samples through gorm. It backs
// both the Postgres and the SQLite recorders.
package gormrecorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/actorsteer/actorsteer/internal/model"
)

// BatchSize is the number of samples inserted per statement.
const BatchSize = 2000

// ErrNoDB is returned when the backend was built without a connection.
var ErrNoDB = errors.New("no database connection")

// Backend persists runs via gorm.
type Backend struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps db.
func New(db *gorm.DB, logger zerolog.Logger) *Backend {
	return &Backend{
		db:     db,
		logger: logger.With().Str("component", "recorder.gorm").Logger(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init(ctx context.Context) error {
	if b.db == nil {
		return ErrNoDB
	}
	if err := b.db.WithContext(ctx).AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.logger.Debug().Int("tables", len(model.DatabaseModels)).Msg("Schema migrated")
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) StartRun(ctx context.Context, run *model.Run) error {
	if b.db == nil {
		return ErrNoDB
	}
	if err := b.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	b.logger.Info().Uint("run", run.ID).Str("actor", run.Actor).Msg("Run started")
	return nil
}

func (b *Backend) WriteSamples(ctx context.Context, samples []model.TickSample) error {
	if b.db == nil {
		return ErrNoDB
	}
	if len(samples) == 0 {
		return nil
	}
	// Omit the association so gorm does not upsert the parent run per batch.
	err := b.db.WithContext(ctx).Omit("Run").CreateInBatches(samples, BatchSize).Error
	if err != nil {
		return fmt.Errorf("insert samples: %w", err)
	}
	return nil
}

func (b *Backend) EndRun(ctx context.Context, run *model.Run) error {
	if b.db == nil {
		return ErrNoDB
	}
	if err := b.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	b.logger.Info().Uint("run", run.ID).Uint64("ticks", run.Ticks).Float64("distance", run.Distance).Msg("Run ended")
	return nil
}
