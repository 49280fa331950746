package recorder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/actorsteer/actorsteer/internal/config"
	"github.com/actorsteer/actorsteer/internal/database"
	gormrecorder "github.com/actorsteer/actorsteer/internal/recorder/gorm"
	"github.com/actorsteer/actorsteer/internal/recorder/memory"
	sqliterecorder "github.com/actorsteer/actorsteer/internal/recorder/sqlite"
)

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg config.RecorderConfig, logger zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		m := database.NewManager(logger)
		if err := m.Connect(cfg.DB); err != nil {
			return nil, err
		}
		if m.ShouldSaveLocal {
			// In-memory fallback; keep it on disk the same way the sqlite
			// recorder does.
			return sqliterecorder.Wrap(m.DB, sqliteConfig(cfg.SQLite), logger), nil
		}
		return gormrecorder.New(m.DB, logger), nil
	case "sqlite":
		return sqliterecorder.New(sqliteConfig(cfg.SQLite), logger)
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown recorder type: %s", cfg.Type)
	}
}

func sqliteConfig(c config.SQLiteConfig) sqliterecorder.Config {
	return sqliterecorder.Config{
		Path:         c.Path,
		DumpPath:     c.DumpPath,
		DumpInterval: c.DumpInterval,
	}
}
