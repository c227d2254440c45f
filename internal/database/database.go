package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// Database wraps the GORM database connection
type Database struct {
	db     *gorm.DB
	config *DatabaseConfig
	logger *logger.Logger
}

// NewDatabase connects using config and migrates the schema. Connection
// failures on server backends fall back to a SQLite file at fallbackPath.
func NewDatabase(config *DatabaseConfig, fallbackPath string, log *logger.Logger) (*Database, error) {
	if log == nil {
		log = logger.Get()
	}
	log = log.Component("database")

	db, used, err := ConnectWithFallback(config, fallbackPath, log)
	if err != nil {
		return nil, err
	}

	database := &Database{db: db, config: used, logger: log}
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return database, nil
}

// NewMemoryDatabase opens a migrated private in-memory SQLite database.
func NewMemoryDatabase(log *logger.Logger) (*Database, error) {
	return NewDatabase(&DatabaseConfig{Type: DatabaseTypeSQLite, Path: MemoryPath}, MemoryPath, log)
}

func (d *Database) migrate() error {
	if err := d.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	d.logger.Debug("Database schema migrated")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.logger.Info("Database connection closed")
	return nil
}

// GetDB returns the underlying GORM database instance
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Config returns the configuration that was actually used to connect.
func (d *Database) Config() *DatabaseConfig {
	return d.config
}

// Health checks the database connection
func (d *Database) Health() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
