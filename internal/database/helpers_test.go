package database

import "github.com/bookworm-app/bookworm/internal/config"

func configDatabase(kind string) config.DatabaseConfig {
	return config.DatabaseConfig{Type: kind}
}
