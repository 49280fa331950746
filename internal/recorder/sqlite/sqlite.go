// Package sqliterecorder records into SQLite, usually in memory, and dumps
// the database to disk periodically via VACUUM INTO and once more on close.
package sqliterecorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/actorsteer/actorsteer/internal/database"
	gormrecorder "github.com/actorsteer/actorsteer/internal/recorder/gorm"
)

// Config holds configuration for the SQLite recorder.
type Config struct {
	// Path of the live database. Empty keeps it in memory.
	Path         string
	DumpPath     string
	DumpInterval time.Duration
}

// Backend wraps the gorm backend with the dump loop.
type Backend struct {
	*gormrecorder.Backend
	db       *gorm.DB
	cfg      Config
	logger   zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New opens the database described by cfg.
func New(cfg Config, logger zerolog.Logger) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	return Wrap(db, cfg, logger), nil
}

// Wrap adds dump behaviour to an already open SQLite connection, such as
// the fallback handed out by database.Manager.
func Wrap(db *gorm.DB, cfg Config, logger zerolog.Logger) *Backend {
	return &Backend{
		Backend:  gormrecorder.New(db, logger),
		db:       db,
		cfg:      cfg,
		logger:   logger.With().Str("component", "recorder.sqlite").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Init migrates the schema and starts the dump goroutine.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.Backend.Init(ctx); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// connection.
func (b *Backend) Close() error {
	var dumpErr error
	b.once.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
		if b.cfg.DumpPath != "" {
			dumpErr = b.Dump()
		}
	})
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return dumpErr
}

// Dump writes a point-in-time snapshot to DumpPath.
func (b *Backend) Dump() error {
	took, err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
	if err != nil {
		return err
	}
	b.logger.Debug().Dur("duration", took).Str("path", b.cfg.DumpPath).Msg("Dumped to disk")
	return nil
}

func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.logger.Error().Err(err).Msg("Error dumping to disk")
			}
		}
	}
}
