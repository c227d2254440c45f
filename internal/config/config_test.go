package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 1, cfg.Searchers.GoogleBooks.Queue.Parallel)
	assert.Equal(t, "{First}/{Author}/{Title} ({Year})", cfg.PostProcessor.Template)
	assert.Equal(t, "metadata.opf", cfg.PostProcessor.OPFName)
	assert.Equal(t, 60, cfg.Scheduler.SearchInterval)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
searchers:
  googlebooks:
    page_limit: -1
    queue:
      parallel: 2
      delay: 250ms
  newznab:
    indexers:
      - name: nzb.example
        url: https://nzb.example/api
        api_key: secret
filters:
  languages: [de, en]
  ignored_words: [summary, abridged]
postprocessor:
  keep_original: true
  directory_permissions: "0700"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, -1, cfg.Searchers.GoogleBooks.PageLimit)
	assert.Equal(t, 2, cfg.Searchers.GoogleBooks.Queue.Parallel)
	assert.Equal(t, 250*time.Millisecond, cfg.Searchers.GoogleBooks.Queue.Delay)
	// untouched nested keys keep their defaults
	assert.Equal(t, 24*time.Hour, cfg.Searchers.GoogleBooks.Queue.CacheMaxAge)
	require.Len(t, cfg.Searchers.Newznab.Indexers, 1)
	assert.Equal(t, "nzb.example", cfg.Searchers.Newznab.Indexers[0].Name)
	assert.Equal(t, []string{"de", "en"}, cfg.Filters.Languages)
	assert.Equal(t, []string{"summary", "abridged"}, cfg.Filters.IgnoredWords)
	assert.True(t, cfg.PostProcessor.KeepOriginal)
	assert.Equal(t, "0700", cfg.PostProcessor.DirectoryPermissions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("BOOKWORM_PORT", "7070")
	t.Setenv("BOOKWORM_SEARCH_INTERVAL", "15")
	t.Setenv("BOOKWORM_FILTER_REQUIRE_ISBN", "false")
	t.Setenv("BOOKWORM_IGNORED_WORDS", "sampler, , boxed set")
	t.Setenv("BOOKWORM_FILTER_LANGUAGE", "en, fr")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 15, cfg.Scheduler.SearchInterval)
	assert.False(t, cfg.Filters.RequireISBN)
	assert.Equal(t, []string{"sampler", "boxed set"}, cfg.Filters.IgnoredWords)
	assert.Equal(t, []string{"en", "fr"}, cfg.Filters.Languages)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("BOOKWORM_SEARCH_INTERVAL", "often")

	_, err := Load("")
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "BOOKWORM_SEARCH_INTERVAL", cfgErr.Field)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad permissions", func(c *Config) { c.PostProcessor.DirectoryPermissions = "rwx" }, "postprocessor.directory_permissions"},
		{"zero parallel", func(c *Config) { c.Searchers.Newznab.Queue.Parallel = 0 }, "queue.parallel"},
		{"indexer without url", func(c *Config) {
			c.Searchers.Newznab.Indexers = []IndexerConfig{{Name: "x"}}
		}, "searchers.newznab.indexers[0].url"},
		{"unknown database", func(c *Config) { c.Database.Type = "oracle" }, "database.type"},
		{"negative interval", func(c *Config) { c.Scheduler.PostProcessInterval = -5 }, "scheduler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestParsePermissions(t *testing.T) {
	mode, err := ParsePermissions("0755")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), mode)

	mode, err = ParsePermissions("700")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), mode)

	_, err = ParsePermissions("1777")
	assert.Error(t, err)
	_, err = ParsePermissions("89")
	assert.Error(t, err)
}
