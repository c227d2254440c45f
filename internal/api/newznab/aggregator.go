package newznab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// ErrNoIndexers is returned when a search is attempted with nothing configured.
var ErrNoIndexers = errors.New("no indexers configured")

// Searcher finds releases for a free text query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Release, error)
}

// Aggregator searches every configured indexer in order and concatenates
// the results. A failing indexer is skipped unless every indexer fails.
type Aggregator struct {
	mu       sync.RWMutex
	indexers []Searcher
	log      *logger.Logger
}

// NewAggregator creates one client per configured indexer.
func NewAggregator(cfg config.NewznabConfig, log *logger.Logger) *Aggregator {
	a := &Aggregator{log: log.Component("newznab")}
	a.Reconfigure(cfg)
	return a
}

// NewAggregatorFrom wraps existing searchers.
func NewAggregatorFrom(log *logger.Logger, indexers ...Searcher) *Aggregator {
	return &Aggregator{indexers: indexers, log: log.Component("newznab")}
}

// Reconfigure rebuilds the indexer clients. Their response caches start empty.
func (a *Aggregator) Reconfigure(cfg config.NewznabConfig) {
	indexers := make([]Searcher, 0, len(cfg.Indexers))
	for _, idx := range cfg.Indexers {
		indexers = append(indexers, NewClient(idx, cfg.PageLimit, cfg.Queue, a.log))
	}
	a.mu.Lock()
	a.indexers = indexers
	a.mu.Unlock()
}

// Search implements Searcher. Releases with a guid already returned by an
// earlier indexer are dropped.
func (a *Aggregator) Search(ctx context.Context, query string) ([]models.Release, error) {
	a.mu.RLock()
	indexers := a.indexers
	a.mu.RUnlock()

	if len(indexers) == 0 {
		return nil, ErrNoIndexers
	}

	var (
		all  []models.Release
		errs []error
		seen = make(map[string]bool)
	)
	for i, idx := range indexers {
		releases, err := idx.Search(ctx, query)
		if err != nil {
			a.log.Warn("Indexer search failed", map[string]interface{}{
				"indexer": indexerName(idx, i),
				"query":   query,
				"error":   err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		for _, r := range releases {
			if seen[r.GUID] {
				continue
			}
			seen[r.GUID] = true
			all = append(all, r)
		}
	}

	if len(errs) == len(indexers) {
		return nil, fmt.Errorf("all indexers failed: %w", errors.Join(errs...))
	}
	return all, nil
}

func indexerName(s Searcher, i int) string {
	if n, ok := s.(interface{ Name() string }); ok && strings.TrimSpace(n.Name()) != "" {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}
