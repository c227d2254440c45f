package database

import (
	"fmt"
	"strings"

	"github.com/bookworm-app/bookworm/internal/config"
)

// DatabaseType represents the supported database types
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypeMariaDB    DatabaseType = "mariadb"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// DatabaseConfig holds the configuration for database connections
type DatabaseConfig struct {
	Type     DatabaseType
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	// Path is only used by SQLite
	Path string

	MaxOpenConns int
	MaxIdleConns int
	// ConnMaxLifetime in minutes
	ConnMaxLifetime int
}

// ParseDatabaseType normalizes a user supplied database type.
func ParseDatabaseType(s string) DatabaseType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres":
		return DatabaseTypePostgreSQL
	case "mysql":
		return DatabaseTypeMySQL
	case "mariadb":
		return DatabaseTypeMariaDB
	default:
		return DatabaseTypeSQLite
	}
}

// FromAppConfig converts the application's database section into a DatabaseConfig,
// filling in per-driver defaults.
func FromAppConfig(c config.DatabaseConfig) *DatabaseConfig {
	cfg := &DatabaseConfig{
		Type:     ParseDatabaseType(c.Type),
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Name,
		Username: c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
		Path:     c.Path,
	}

	if cfg.Type == DatabaseTypeSQLite {
		if cfg.Path == "" {
			cfg.Path = "./data/bookworm.db"
		}
		return cfg
	}

	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Database == "" {
		cfg.Database = "bookworm"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}
	if cfg.Port == 0 {
		switch cfg.Type {
		case DatabaseTypePostgreSQL:
			cfg.Port = 5432
		case DatabaseTypeMySQL, DatabaseTypeMariaDB:
			cfg.Port = 3306
		}
	}
	cfg.MaxOpenConns = 25
	cfg.MaxIdleConns = 5
	cfg.ConnMaxLifetime = 60
	return cfg
}

// Validate checks if the database configuration is valid
func (c *DatabaseConfig) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.Path == "" {
			return fmt.Errorf("SQLite database path is required")
		}
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeMariaDB:
		if c.Host == "" {
			return fmt.Errorf("database host is required for %s", c.Type)
		}
		if c.Database == "" {
			return fmt.Errorf("database name is required for %s", c.Type)
		}
		if c.Port <= 0 {
			return fmt.Errorf("valid database port is required for %s", c.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// GetDSN returns the data source name for the database connection
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case DatabaseTypeSQLite:
		return c.Path
	case DatabaseTypePostgreSQL:
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", c.Host, c.Port, c.Database, c.SSLMode)
		if c.Username != "" {
			dsn += " user=" + c.Username
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		return dsn
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.Username, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}
