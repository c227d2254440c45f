package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bookworm-app/bookworm/internal/api/googlebooks"
	"github.com/bookworm-app/bookworm/internal/api/newznab"
	"github.com/bookworm-app/bookworm/internal/api/sabnzbd"
	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/database"
	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/library"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/notify"
	"github.com/bookworm-app/bookworm/internal/parser"
	"github.com/bookworm-app/bookworm/internal/postprocess"
	"github.com/bookworm-app/bookworm/internal/scheduler"
	"github.com/bookworm-app/bookworm/internal/settings"
	"github.com/bookworm-app/bookworm/internal/sync"
)

// app holds every long-lived component of one process.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db       *database.Database
	bus      *events.Bus
	authors  *library.AuthorService
	books    *library.BookService
	releases *library.ReleaseService

	catalog   *googlebooks.Client
	indexers  *newznab.Aggregator
	sabnzbd   *sabnzbd.Client
	engine    *sync.Engine
	processor *postprocess.Processor

	settings  *settings.Store
	scheduler *scheduler.Scheduler
}

// policyFromConfig builds the catalog filter policy.
func policyFromConfig(cfg *config.Config) parser.Policy {
	return parser.Policy{
		Languages:          cfg.Filters.Languages,
		RequireISBN:        cfg.Filters.RequireISBN,
		RequireDescription: cfg.Filters.RequireDescription,
		IgnoredWords:       cfg.Filters.IgnoredWords,
	}
}

// engineOptions derives the sync engine options from cfg.
func engineOptions(cfg *config.Config) sync.Options {
	return sync.Options{
		Category: cfg.Downloaders.SABnzbd.Category,
		Parallel: cfg.Scheduler.Parallel,
	}
}

// newApp wires the application from cfg. The caller must call close.
func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	fallback := cfg.Database.Path
	if fallback == "" {
		fallback = config.Default().Database.Path
	}
	if dir := filepath.Dir(fallback); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := database.NewDatabase(database.FromAppConfig(cfg.Database), fallback, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	a.bus = events.NewBus(log)
	a.authors = library.NewAuthorService(db.GetDB(), a.bus, log)
	a.books = library.NewBookService(db.GetDB(), a.bus, log)
	a.releases = library.NewReleaseService(db.GetDB(), a.bus, log)

	a.catalog = googlebooks.NewClient(cfg.Searchers.GoogleBooks, policyFromConfig(cfg), log)
	a.indexers = newznab.NewAggregator(cfg.Searchers.Newznab, log)
	a.sabnzbd = sabnzbd.NewClient(cfg.Downloaders.SABnzbd, log)
	notifier := notify.FromConfig(cfg, log)

	a.engine = sync.NewEngine(sync.Deps{
		Authors:    a.authors,
		Books:      a.books,
		Releases:   a.releases,
		Bus:        a.bus,
		Catalog:    a.catalog,
		Indexer:    a.indexers,
		Downloader: a.sabnzbd,
		Notifier:   notifier,
	}, engineOptions(cfg), log)
	a.engine.Start()

	ppOpts, err := postprocess.OptionsFromConfig(cfg.PostProcessor)
	if err != nil {
		a.close()
		return nil, err
	}
	a.processor = postprocess.New(afero.NewOsFs(), a.books, a.releases, notifier, ppOpts, log)

	store, err := settings.New(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.settings = store
	a.settings.Subscribe(func(ev settings.Event) { a.apply(ev.Config) })

	a.scheduler = scheduler.New(scheduler.Options{ShutdownTimeout: cfg.Server.ShutdownTimeout}, log)
	a.scheduler.Register(scheduler.JobSearch, minutes(cfg.Scheduler.SearchInterval), func(ctx context.Context) error {
		_, err := a.engine.SearchWantedBooks(ctx)
		return err
	})
	a.scheduler.Register(scheduler.JobPostProcess, minutes(cfg.Scheduler.PostProcessInterval), func(ctx context.Context) error {
		_, err := a.processor.Process(ctx)
		return err
	})
	a.scheduler.Register(scheduler.JobRefresh, minutes(cfg.Scheduler.RefreshInterval), a.engine.RefreshAuthors)

	return a, nil
}

// apply pushes a new configuration snapshot into the running components.
// Database, server and notifier settings take effect on restart.
func (a *app) apply(cfg *config.Config) {
	a.catalog.SetPolicy(policyFromConfig(cfg))
	a.catalog.SetPageLimit(cfg.Searchers.GoogleBooks.PageLimit)
	a.catalog.Reconfigure(cfg.Searchers.GoogleBooks.Queue)
	a.indexers.Reconfigure(cfg.Searchers.Newznab)
	a.engine.SetOptions(engineOptions(cfg))

	if opts, err := postprocess.OptionsFromConfig(cfg.PostProcessor); err != nil {
		a.log.Warn("Keeping previous post-processor settings", map[string]interface{}{"error": err.Error()})
	} else {
		a.processor.SetOptions(opts)
	}

	a.scheduler.ApplyConfig(cfg)
	a.cfg = cfg
}

// close stops event reactions, waits for in-flight handlers and closes the
// database.
func (a *app) close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.bus != nil {
		a.bus.Wait()
	}
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			a.log.Warn("Failed to stop settings watcher", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Failed to close database", map[string]interface{}{"error": err.Error()})
		}
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
