package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bookworm-app/bookworm/internal/logger"

	// Pure Go SQLite driver (no CGO required)
	_ "modernc.org/sqlite"
)

// PureSQLiteDriver implements DatabaseDriver for SQLite using modernc.org/sqlite.
type PureSQLiteDriver struct{}

func (d *PureSQLiteDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(d.GetDialector(config), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// one connection: SQLite has a single writer, and every :memory: connection
	// would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pragmas := []string{"PRAGMA foreign_keys=ON"}
	if config.Path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			log.Warn("Failed to apply SQLite pragma", map[string]interface{}{
				"pragma": p,
				"error":  err.Error(),
			})
		}
	}

	return db, nil
}

func (d *PureSQLiteDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}
}

func (d *PureSQLiteDriver) PrepareDatabase(config *DatabaseConfig) error {
	if config.Path == MemoryPath {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
