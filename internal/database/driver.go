package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bookworm-app/bookworm/internal/logger"
)

// DatabaseDriver opens a gorm connection for one backend.
type DatabaseDriver interface {
	Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error)
	GetDialector(config *DatabaseConfig) gorm.Dialector
	PrepareDatabase(config *DatabaseConfig) error
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// networkDriver is shared by the client/server backends.
type networkDriver struct {
	name      string
	dialector func(dsn string) gorm.Dialector
}

func (d *networkDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(d.GetDialector(config), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Minute)

	return db, nil
}

func (d *networkDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return d.dialector(config.GetDSN())
}

// PrepareDatabase is a no-op; server databases are created externally.
func (d *networkDriver) PrepareDatabase(*DatabaseConfig) error {
	return nil
}

// PostgreSQLDriver implements DatabaseDriver for PostgreSQL
func PostgreSQLDriver() DatabaseDriver {
	return &networkDriver{name: "PostgreSQL", dialector: postgres.Open}
}

// MySQLDriver implements DatabaseDriver for MySQL and MariaDB
func MySQLDriver() DatabaseDriver {
	return &networkDriver{name: "MySQL", dialector: mysql.Open}
}

// GetDatabaseDriver returns the appropriate driver for the given database type
func GetDatabaseDriver(dbType DatabaseType) (DatabaseDriver, error) {
	switch dbType {
	case DatabaseTypeSQLite:
		return &PureSQLiteDriver{}, nil
	case DatabaseTypePostgreSQL:
		return PostgreSQLDriver(), nil
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return MySQLDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// ConnectWithFallback attempts to connect to the configured database,
// falling back to SQLite at fallbackPath if the connection fails.
func ConnectWithFallback(config *DatabaseConfig, fallbackPath string, log *logger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	fail := func(reason string, err error) (*gorm.DB, *DatabaseConfig, error) {
		log.Warn(reason+", falling back to SQLite", map[string]interface{}{
			"error": err.Error(),
			"type":  config.Type,
			"host":  config.Host,
		})
		return connectSQLiteFallback(fallbackPath, log)
	}

	if err := config.Validate(); err != nil {
		return fail("Invalid database configuration", err)
	}
	driver, err := GetDatabaseDriver(config.Type)
	if err != nil {
		return fail("Unsupported database type", err)
	}
	if err := driver.PrepareDatabase(config); err != nil {
		return fail("Failed to prepare database", err)
	}
	db, err := driver.Connect(config, log)
	if err != nil {
		if config.Type == DatabaseTypeSQLite {
			return nil, nil, err
		}
		return fail("Failed to connect to configured database", err)
	}

	log.Info("Connected to database", map[string]interface{}{
		"type": config.Type,
		"host": config.Host,
		"path": config.Path,
	})
	return db, config, nil
}

func connectSQLiteFallback(path string, log *logger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	fallback := &DatabaseConfig{Type: DatabaseTypeSQLite, Path: path}

	driver := &PureSQLiteDriver{}
	if err := driver.PrepareDatabase(fallback); err != nil {
		return nil, nil, err
	}
	db, err := driver.Connect(fallback, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to fallback SQLite database: %w", err)
	}

	log.Info("Connected to fallback SQLite database", map[string]interface{}{"path": path})
	return db, fallback, nil
}
