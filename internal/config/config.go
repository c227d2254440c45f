package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is prepended to every environment variable the config layer reads.
const EnvPrefix = "BOOKWORM_"

// Config holds all configuration for the application. A loaded Config is
// treated as an immutable snapshot; runtime changes go through the settings store.
type Config struct {
	// Server configuration
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Database DatabaseConfig `yaml:"database"`

	Searchers struct {
		GoogleBooks GoogleBooksConfig `yaml:"googlebooks"`
		Newznab     NewznabConfig     `yaml:"newznab"`
	} `yaml:"searchers"`

	// Filters applied by the catalog parser
	Filters struct {
		Languages          []string `yaml:"languages"`
		RequireISBN        bool     `yaml:"require_isbn"`
		RequireDescription bool     `yaml:"require_description"`
		IgnoredWords       []string `yaml:"ignored_words"`
	} `yaml:"filters"`

	Downloaders struct {
		SABnzbd SABnzbdConfig `yaml:"sabnzbd"`
	} `yaml:"downloaders"`

	PostProcessor PostProcessorConfig `yaml:"postprocessor"`

	// Scheduler intervals in minutes; 0 disables the job
	Scheduler struct {
		SearchInterval      int `yaml:"search_interval"`
		PostProcessInterval int `yaml:"postprocess_interval"`
		RefreshInterval     int `yaml:"refresh_interval"`
		// Parallel bounds how many books or authors a job handles at once; 0 is unbounded
		Parallel int `yaml:"parallel"`
	} `yaml:"scheduler"`

	Notifiers struct {
		Pushover PushoverConfig `yaml:"pushover"`
		NMA      NMAConfig      `yaml:"nma"`
	} `yaml:"notifiers"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// QueueConfig tunes a provider's work queue and response cache.
type QueueConfig struct {
	// Parallel is the number of requests allowed in flight
	Parallel int `yaml:"parallel"`
	// Delay is waited after every request before the slot is released
	Delay time.Duration `yaml:"delay"`
	// CacheMaxAge of 0 keeps responses until they are invalidated
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
	// Timeout applies to each HTTP request
	Timeout time.Duration `yaml:"timeout"`
}

// GoogleBooksConfig configures the books catalog client.
type GoogleBooksConfig struct {
	URL        string      `yaml:"url"`
	APIKey     string      `yaml:"api_key"`
	MaxResults int         `yaml:"max_results"`
	PageLimit  int         `yaml:"page_limit"`
	Queue      QueueConfig `yaml:"queue"`
}

// IndexerConfig describes one Newznab-compatible indexer.
type IndexerConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	Category string `yaml:"category"`
}

// NewznabConfig configures every release indexer.
type NewznabConfig struct {
	Indexers  []IndexerConfig `yaml:"indexers"`
	PageLimit int             `yaml:"page_limit"`
	Queue     QueueConfig     `yaml:"queue"`
}

// SABnzbdConfig configures the download client.
type SABnzbdConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Category string        `yaml:"category"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PostProcessorConfig configures how completed downloads are moved into the library.
type PostProcessorConfig struct {
	StagingDir           string `yaml:"staging_dir"`
	LibraryDir           string `yaml:"library_dir"`
	Template             string `yaml:"template"`
	KeepOriginal         bool   `yaml:"keep_original"`
	DirectoryPermissions string `yaml:"directory_permissions"`
	WriteOPF             bool   `yaml:"write_opf"`
	OPFName              string `yaml:"opf_name"`
}

// PushoverConfig configures the Pushover notifier.
type PushoverConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	User    string `yaml:"user"`
}

// NMAConfig configures the NotifyMyAndroid notifier.
type NMAConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Database.Type = "sqlite"
	cfg.Database.Path = "./data/bookworm.db"
	cfg.Database.SSLMode = "disable"

	gb := &cfg.Searchers.GoogleBooks
	gb.URL = "https://www.googleapis.com/books/v1/volumes"
	gb.MaxResults = 40
	gb.PageLimit = 10
	gb.Queue = QueueConfig{Parallel: 1, Delay: time.Second, CacheMaxAge: 24 * time.Hour, Timeout: 30 * time.Second}

	nz := &cfg.Searchers.Newznab
	nz.PageLimit = 1
	nz.Queue = QueueConfig{Parallel: 1, Delay: 2 * time.Second, CacheMaxAge: time.Hour, Timeout: 30 * time.Second}

	cfg.Filters.Languages = []string{"en"}
	cfg.Filters.RequireISBN = true
	cfg.Filters.RequireDescription = false

	cfg.Downloaders.SABnzbd.Category = "ebooks"
	cfg.Downloaders.SABnzbd.Timeout = 30 * time.Second

	cfg.PostProcessor.StagingDir = "./downloads"
	cfg.PostProcessor.LibraryDir = "./library"
	cfg.PostProcessor.Template = "{First}/{Author}/{Title} ({Year})"
	cfg.PostProcessor.DirectoryPermissions = "0755"
	cfg.PostProcessor.WriteOPF = true
	cfg.PostProcessor.OPFName = "metadata.opf"

	cfg.Scheduler.SearchInterval = 60
	cfg.Scheduler.PostProcessInterval = 5
	cfg.Scheduler.RefreshInterval = 24 * 60
	cfg.Scheduler.Parallel = 4

	cfg.Notifiers.Pushover.URL = "https://api.pushover.net/1/messages.json"
	cfg.Notifiers.NMA.URL = "https://www.notifymyandroid.com/publicapi/notify"

	return cfg
}

// Load loads configuration from a file (if specified) and environment variables.
// Priority: 1) Environment variables, 2) Config file, 3) Defaults
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := decodeFile(configFile, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.Searchers.GoogleBooks.URL == "" {
		problems = append(problems, "searchers.googlebooks.url")
	}
	if c.Searchers.GoogleBooks.Queue.Parallel < 1 || c.Searchers.Newznab.Queue.Parallel < 1 {
		problems = append(problems, "queue.parallel")
	}
	for i, idx := range c.Searchers.Newznab.Indexers {
		if idx.URL == "" {
			problems = append(problems, fmt.Sprintf("searchers.newznab.indexers[%d].url", i))
		}
	}
	if _, err := ParsePermissions(c.PostProcessor.DirectoryPermissions); err != nil {
		problems = append(problems, "postprocessor.directory_permissions")
	}
	if c.PostProcessor.Template == "" {
		problems = append(problems, "postprocessor.template")
	}
	if c.Scheduler.SearchInterval < 0 || c.Scheduler.PostProcessInterval < 0 || c.Scheduler.RefreshInterval < 0 || c.Scheduler.Parallel < 0 {
		problems = append(problems, "scheduler")
	}
	switch strings.ToLower(c.Database.Type) {
	case "", "sqlite", "postgres", "postgresql", "mysql", "mariadb":
	default:
		problems = append(problems, "database.type")
	}

	if len(problems) > 0 {
		return &ConfigError{
			Field: strings.Join(problems, ", "),
			Msg:   "invalid configuration values",
		}
	}
	return nil
}

// ParsePermissions parses an octal permission string such as "0755".
func ParsePermissions(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permissions %q: %w", s, err)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("invalid permissions %q: out of range", s)
	}
	return os.FileMode(v), nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Msg
}

// envBinding maps a single environment variable onto a config field.
type envBinding struct {
	key string
	set func(cfg *Config, value string) error
}

func stringEnv(key string, field func(*Config) *string) envBinding {
	return envBinding{key: key, set: func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func intEnv(key string, field func(*Config) *int) envBinding {
	return envBinding{key: key, set: func(cfg *Config, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = i
		return nil
	}}
}

func boolEnv(key string, field func(*Config) *bool) envBinding {
	return envBinding{key: key, set: func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

func listEnv(key string, field func(*Config) *[]string) envBinding {
	return envBinding{key: key, set: func(cfg *Config, v string) error {
		*field(cfg) = splitList(v)
		return nil
	}}
}

func durationEnv(key string, field func(*Config) *time.Duration) envBinding {
	return envBinding{key: key, set: func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}}
}

var envBindings = []envBinding{
	stringEnv("PORT", func(c *Config) *string { return &c.Server.Port }),
	durationEnv("SHUTDOWN_TIMEOUT", func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout }),
	stringEnv("LOG_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	stringEnv("LOG_FORMAT", func(c *Config) *string { return &c.Logging.Format }),

	stringEnv("DATABASE_TYPE", func(c *Config) *string { return &c.Database.Type }),
	stringEnv("DATABASE_PATH", func(c *Config) *string { return &c.Database.Path }),
	stringEnv("DATABASE_HOST", func(c *Config) *string { return &c.Database.Host }),
	intEnv("DATABASE_PORT", func(c *Config) *int { return &c.Database.Port }),
	stringEnv("DATABASE_NAME", func(c *Config) *string { return &c.Database.Name }),
	stringEnv("DATABASE_USER", func(c *Config) *string { return &c.Database.User }),
	stringEnv("DATABASE_PASSWORD", func(c *Config) *string { return &c.Database.Password }),

	stringEnv("GOOGLEBOOKS_API_KEY", func(c *Config) *string { return &c.Searchers.GoogleBooks.APIKey }),
	intEnv("GOOGLEBOOKS_PAGE_LIMIT", func(c *Config) *int { return &c.Searchers.GoogleBooks.PageLimit }),

	listEnv("FILTER_LANGUAGE", func(c *Config) *[]string { return &c.Filters.Languages }),
	boolEnv("FILTER_REQUIRE_ISBN", func(c *Config) *bool { return &c.Filters.RequireISBN }),
	boolEnv("FILTER_REQUIRE_DESCRIPTION", func(c *Config) *bool { return &c.Filters.RequireDescription }),

	stringEnv("SABNZBD_URL", func(c *Config) *string { return &c.Downloaders.SABnzbd.URL }),
	stringEnv("SABNZBD_API_KEY", func(c *Config) *string { return &c.Downloaders.SABnzbd.APIKey }),
	stringEnv("SABNZBD_CATEGORY", func(c *Config) *string { return &c.Downloaders.SABnzbd.Category }),

	stringEnv("STAGING_DIR", func(c *Config) *string { return &c.PostProcessor.StagingDir }),
	stringEnv("LIBRARY_DIR", func(c *Config) *string { return &c.PostProcessor.LibraryDir }),
	stringEnv("PATH_TEMPLATE", func(c *Config) *string { return &c.PostProcessor.Template }),
	boolEnv("KEEP_ORIGINAL", func(c *Config) *bool { return &c.PostProcessor.KeepOriginal }),

	intEnv("SEARCH_INTERVAL", func(c *Config) *int { return &c.Scheduler.SearchInterval }),
	intEnv("POSTPROCESS_INTERVAL", func(c *Config) *int { return &c.Scheduler.PostProcessInterval }),
	intEnv("REFRESH_INTERVAL", func(c *Config) *int { return &c.Scheduler.RefreshInterval }),
	intEnv("PARALLEL", func(c *Config) *int { return &c.Scheduler.Parallel }),
}

// loadFromEnv applies BOOKWORM_* environment overrides on top of cfg.
func loadFromEnv(cfg *Config) error {
	for _, b := range envBindings {
		value, ok := os.LookupEnv(EnvPrefix + b.key)
		if !ok || value == "" {
			continue
		}
		if err := b.set(cfg, value); err != nil {
			return &ConfigError{Field: EnvPrefix + b.key, Msg: fmt.Sprintf("has invalid value %q: %v", value, err)}
		}
	}

	if words, ok := os.LookupEnv(EnvPrefix + "IGNORED_WORDS"); ok {
		cfg.Filters.IgnoredWords = splitList(words)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
