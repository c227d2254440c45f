// Package sync keeps the local library in step with the remote catalog and
// release indexers: it merges discovered books, reacts to status changes and
// hands chosen releases to the download client.
package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/bookworm-app/bookworm/internal/api/googlebooks"
	"github.com/bookworm-app/bookworm/internal/events"
	"github.com/bookworm-app/bookworm/internal/library"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
	"github.com/bookworm-app/bookworm/internal/notify"
	"github.com/bookworm-app/bookworm/internal/parser"
)

// ErrNotList is returned by MergeBooks when either input is not a list.
var ErrNotList = errors.New("not an array")

// Catalog pages through the books catalog.
type Catalog interface {
	PagingQuery(ctx context.Context, query string) (*parser.Result, error)
}

// ReleaseSearcher finds downloadable releases for a free text query.
type ReleaseSearcher interface {
	Search(ctx context.Context, query string) ([]models.Release, error)
}

// Downloader queues a download by URL.
type Downloader interface {
	Add(ctx context.Context, link, category, name string) (string, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Authors    *library.AuthorService
	Books      *library.BookService
	Releases   *library.ReleaseService
	Bus        *events.Bus
	Catalog    Catalog
	Indexer    ReleaseSearcher
	Downloader Downloader
	Notifier   notify.Notifier
}

// Options tune an Engine.
type Options struct {
	// Category is passed to the download client with every job
	Category string
	// Parallel bounds the fan-out over books and authors; 0 is unbounded
	Parallel int
}

// Engine is the library synchronization engine.
type Engine struct {
	authors    *library.AuthorService
	books      *library.BookService
	releases   *library.ReleaseService
	bus        *events.Bus
	catalog    Catalog
	indexer    ReleaseSearcher
	downloader Downloader
	notifier   notify.Notifier
	log        *logger.Logger

	locks *keyedMutex
	// wantedMu serializes the read-then-write that keeps one wanted release
	wantedMu sync.Mutex

	optMu sync.RWMutex
	opts  Options

	unsubscribe []func()
}

// NewEngine creates an engine. Call Start to begin reacting to events.
func NewEngine(deps Deps, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Get()
	}
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Engine{
		authors:    deps.Authors,
		books:      deps.Books,
		releases:   deps.Releases,
		bus:        deps.Bus,
		catalog:    deps.Catalog,
		indexer:    deps.Indexer,
		downloader: deps.Downloader,
		notifier:   n,
		log:        log.Component("sync"),
		locks:      newKeyedMutex(),
		opts:       opts,
	}
}

// SetOptions replaces the engine options.
func (e *Engine) SetOptions(opts Options) {
	e.optMu.Lock()
	e.opts = opts
	e.optMu.Unlock()
}

func (e *Engine) options() Options {
	e.optMu.RLock()
	defer e.optMu.RUnlock()
	return e.opts
}

// Start subscribes the status reactions to the event bus.
func (e *Engine) Start() {
	e.unsubscribe = append(e.unsubscribe,
		e.bus.Books.Subscribe(e.onBookEvent),
		e.bus.Releases.Subscribe(e.onReleaseEvent),
	)
}

// Stop removes the reactions. In-flight reactions are not waited for; use
// the bus to drain them.
func (e *Engine) Stop() {
	for _, u := range e.unsubscribe {
		u()
	}
	e.unsubscribe = nil
}

// authorQuery is the catalog search listing an author's books.
func authorQuery(name string) string {
	return googlebooks.AuthorQuery(name)
}
