// Package newznab searches Newznab-compatible Usenet indexers for releases.
package newznab

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bookworm-app/bookworm/internal/api/provider"
	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

const (
	pageSize        = 100
	defaultCategory = "7020"
)

// Client searches one indexer.
type Client struct {
	base      *provider.Client
	name      string
	apiURL    string
	apiKey    string
	category  string
	pageLimit int
	log       *logger.Logger
}

// NewClient creates a client for one configured indexer.
func NewClient(idx config.IndexerConfig, pageLimit int, q config.QueueConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Get()
	}
	name := idx.Name
	if name == "" {
		if u, err := url.Parse(idx.URL); err == nil {
			name = u.Host
		}
	}
	category := idx.Category
	if category == "" {
		category = defaultCategory
	}
	return &Client{
		base: provider.New(provider.Config{
			Name:        name,
			Parallel:    q.Parallel,
			Delay:       q.Delay,
			CacheMaxAge: q.CacheMaxAge,
			Timeout:     q.Timeout,
		}, log),
		name:      name,
		apiURL:    strings.TrimRight(idx.URL, "/"),
		apiKey:    idx.APIKey,
		category:  category,
		pageLimit: pageLimit,
		log:       log.With(map[string]interface{}{"component": "newznab", "indexer": name}),
	}
}

// Name returns the indexer name.
func (c *Client) Name() string { return c.name }

// SearchURL builds the search URL for the page starting at offset.
func (c *Client) SearchURL(query string, offset int) string {
	v := url.Values{}
	v.Set("t", "search")
	v.Set("q", query)
	v.Set("cat", c.category)
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(pageSize))
	v.Set("extended", "1")
	if c.apiKey != "" {
		v.Set("apikey", c.apiKey)
	}
	return c.apiURL + "?" + v.Encode()
}

// Query fetches and parses the page starting at offset.
func (c *Client) Query(ctx context.Context, query string, offset int) (*Feed, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	u := c.SearchURL(query, offset)
	raw, err := c.base.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	feed, err := ParseFeed(raw)
	if err != nil {
		c.base.Invalidate(u)
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return feed, nil
}

// Search pages through the results for query up to the configured page
// limit, in indexer order.
func (c *Client) Search(ctx context.Context, query string) ([]models.Release, error) {
	return provider.Paginate(ctx, c.pageLimit, func(ctx context.Context, n int) ([]models.Release, bool, error) {
		offset := n * pageSize
		feed, err := c.Query(ctx, query, offset)
		if err != nil {
			return nil, false, err
		}
		more := feed.Count > 0 && offset+feed.Count < feed.Total
		return feed.Releases, more, nil
	})
}

// Reconfigure applies new queue settings.
func (c *Client) Reconfigure(q config.QueueConfig) {
	c.base.Reconfigure(q.Parallel, q.Delay, q.CacheMaxAge)
}
