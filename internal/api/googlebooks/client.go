// Package googlebooks searches the Google Books volumes API for book
// metadata.
package googlebooks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bookworm-app/bookworm/internal/api/provider"
	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
	"github.com/bookworm-app/bookworm/internal/parser"
)

const defaultMaxResults = 40

// ErrNotFound is returned by FindByID when the volume does not exist.
var ErrNotFound = errors.New("volume not found")

// Client searches the catalog. It is safe for concurrent use.
type Client struct {
	base   *provider.Client
	apiURL string
	apiKey string
	log    *logger.Logger

	mu         sync.RWMutex
	maxResults int
	pageLimit  int
	policy     parser.Policy
}

// NewClient creates a catalog client.
func NewClient(cfg config.GoogleBooksConfig, policy parser.Policy, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Get()
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > defaultMaxResults {
		cfg.MaxResults = defaultMaxResults
	}
	base := provider.New(provider.Config{
		Name:        ProviderName,
		Parallel:    cfg.Queue.Parallel,
		Delay:       cfg.Queue.Delay,
		CacheMaxAge: cfg.Queue.CacheMaxAge,
		Timeout:     cfg.Queue.Timeout,
	}, log)

	return &Client{
		base:       base,
		apiURL:     strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		log:        log.Component("googlebooks"),
		maxResults: cfg.MaxResults,
		pageLimit:  cfg.PageLimit,
		policy:     policy,
	}
}

// SetPolicy replaces the filters applied to later searches.
func (c *Client) SetPolicy(p parser.Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// SetPageLimit changes how many pages PagingQuery reads. Zero or less is unbounded.
func (c *Client) SetPageLimit(limit int) {
	c.mu.Lock()
	c.pageLimit = limit
	c.mu.Unlock()
}

// Reconfigure applies new queue settings.
func (c *Client) Reconfigure(q config.QueueConfig) {
	c.base.Reconfigure(q.Parallel, q.Delay, q.CacheMaxAge)
}

func (c *Client) settings() (parser.Policy, int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy, c.maxResults, c.pageLimit
}

// QueryURL builds the volumes search URL for one page. langRestrict only
// takes one language, so a larger set is left to the parser.
func (c *Client) QueryURL(query string, startIndex, maxResults int, languages []string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("startIndex", strconv.Itoa(startIndex))
	v.Set("maxResults", strconv.Itoa(maxResults))
	if len(languages) == 1 {
		v.Set("langRestrict", languages[0])
	}
	if c.apiKey != "" {
		v.Set("key", c.apiKey)
	}
	return c.apiURL + "?" + v.Encode()
}

// Query fetches and parses the page starting at startIndex.
func (c *Client) Query(ctx context.Context, query string, startIndex int) (*Page, error) {
	policy, maxResults, _ := c.settings()
	return c.query(ctx, query, startIndex, maxResults, policy, nil)
}

func (c *Client) query(ctx context.Context, query string, startIndex, maxResults int, policy parser.Policy, d *parser.Deduper) (*Page, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	raw, err := c.base.Get(ctx, c.QueryURL(query, startIndex, maxResults, policy.Languages))
	if err != nil {
		return nil, err
	}
	page, err := ParseResponse(raw, query, policy, d)
	if err != nil {
		// a body that will never parse must not be served from cache again
		c.base.Invalidate(c.QueryURL(query, startIndex, maxResults, policy.Languages))
		return nil, err
	}
	return page, nil
}

// PagingQuery walks the result pages of query up to the configured page
// limit and returns the accepted books in catalog order. Duplicates are
// removed across pages.
func (c *Client) PagingQuery(ctx context.Context, query string) (*parser.Result, error) {
	policy, maxResults, limit := c.settings()
	d := parser.NewDeduper()
	var rejected []*parser.Rejection

	books, err := provider.Paginate(ctx, limit, func(ctx context.Context, n int) ([]models.Book, bool, error) {
		start := n * maxResults
		page, err := c.query(ctx, query, start, maxResults, policy, d)
		if err != nil {
			return nil, false, err
		}
		rejected = append(rejected, page.Result.Rejected...)
		more := page.Count > 0 && start+page.Count < page.TotalItems
		return page.Result.Books, more, nil
	})
	if err != nil {
		return nil, err
	}

	if len(rejected) > 0 {
		c.log.Debug("Dropped catalog results", map[string]interface{}{
			"query":    query,
			"rejected": len(rejected),
			"accepted": len(books),
		})
	}
	return &parser.Result{Books: books, Rejected: rejected}, nil
}

// FindByID looks up a single volume.
func (c *Client) FindByID(ctx context.Context, id string) (*models.Book, error) {
	if id == "" {
		return nil, fmt.Errorf("empty volume id")
	}
	u := c.apiURL + "/" + url.PathEscape(id)
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}
	raw, err := c.base.Get(ctx, u)
	if err != nil {
		if provider.StatusCode(err) == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ParseVolume(raw)
}

// AuthorQuery returns the search used to list an author's books.
func AuthorQuery(name string) string {
	return `inauthor:"` + strings.ReplaceAll(name, `"`, "") + `"`
}
