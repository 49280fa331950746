// Package database opens the gorm connections used by the recorder: Postgres
// for shared deployments and SQLite, in memory or on disk, for local runs.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/actorsteer/actorsteer/internal/config"
)

var memoryDBSeq atomic.Uint64

// Manager handles database connections, falling back to an in-memory
// SQLite database when Postgres is unreachable.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect establishes a Postgres connection and pings it. On failure it
// falls back to in-memory SQLite and sets ShouldSaveLocal.
func (m *Manager) Connect(cfg config.DBConfig) error {
	db, err := OpenPostgres(cfg)
	if err == nil {
		var sqlDB *sql.DB
		sqlDB, err = db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err == nil {
			m.DB, m.SqlDB = db, sqlDB
			m.SqlDB.SetMaxOpenConns(10)
			m.IsValid = true
			m.Logger.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to database")
			return nil
		}
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}

	m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
	m.ShouldSaveLocal = true

	m.DB, err = OpenSQLite("")
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.IsValid = true
	m.Logger.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
	return nil
}

// Migrate creates or updates the given tables.
func (m *Manager) Migrate(models ...any) error {
	if !m.IsValid {
		return fmt.Errorf("db not valid, not migrating")
	}
	m.Logger.Info().Int("tables", len(models)).Msg("Migrating schema")
	if err := m.DB.AutoMigrate(models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}

// PostgresDSN builds a libpq connection string.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)
}

// OpenPostgres opens a Postgres connection. gorm pings on open, so an
// unreachable server is reported here.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database at path. An empty path opens a fresh
// private in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:actorsteer_mem_%d?mode=memory&cache=shared", memoryDBSeq.Add(1))
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// DumpMemoryDBToDisk vacuums db into a file at path, replacing any previous dump.
func DumpMemoryDBToDisk(db *gorm.DB, path string) (time.Duration, error) {
	if path == "" {
		return 0, fmt.Errorf("sqlite file path not set")
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	start := time.Now()
	if err := db.Exec("VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "';").Error; err != nil {
		return 0, fmt.Errorf("error dumping memory DB to disk: %w", err)
	}
	return time.Since(start), nil
}
