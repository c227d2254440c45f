package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file on top of the defaults,
// without applying environment overrides.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile unmarshals the YAML file at path into cfg. Keys absent from the
// file keep the values already present in cfg.
func decodeFile(path string, cfg *Config) error {
	if !filepath.IsAbs(path) {
		abspath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abspath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	log.Debug().
		Str("config_file", path).
		Int("total_bytes", len(data)).
		Msg("Read config file")

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}
