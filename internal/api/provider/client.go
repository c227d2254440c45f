package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/bookworm-app/bookworm/internal/cache"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/metrics"
	"github.com/bookworm-app/bookworm/internal/util"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerOpenFor   = time.Minute
	maxErrorBodyInLogs      = 512
	defaultUserAgent        = "bookworm/1.0"
	defaultMaxResponseBytes = 32 << 20
)

// Config configures a provider client.
type Config struct {
	// Name labels logs and metrics
	Name string
	// Parallel is the number of requests allowed in flight
	Parallel int
	// Delay is held after every request before the next one is admitted
	Delay time.Duration
	// CacheMaxAge of 0 keeps responses until they are invalidated
	CacheMaxAge time.Duration
	Timeout     time.Duration
	// BreakerFailures consecutive failures open the circuit for BreakerOpenFor
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	HTTPClient      *http.Client
	UserAgent       string
}

// Client performs cached, queued GET requests against one remote provider.
// Identical URLs share one in-flight request and one cache entry.
type Client struct {
	name      string
	userAgent string
	http      *http.Client
	cache     cache.Cache[string, []byte]
	queue     *util.WorkQueue
	flight    singleflight.Group
	breaker   *gobreaker.CircuitBreaker[[]byte]
	log       *logger.Logger
}

// New creates a provider client.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Get()
	}
	log = log.With(map[string]interface{}{"component": "provider", "provider": cfg.Name})

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = defaultBreakerOpenFor
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		name:      cfg.Name,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		cache:     cache.WithTTL(cache.NewMemoryCache[string, []byte](log), cfg.CacheMaxAge),
		queue:     util.NewWorkQueue(cfg.Parallel, cfg.Delay),
		log:       log,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// client errors and cancellations are not the provider's fault
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			code := StatusCode(err)
			return code >= 400 && code < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.ProviderBreakerOpen.WithLabelValues(name).Set(open)
			c.log.Warn("Provider circuit breaker changed state", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Get returns the body of a GET to rawURL, from cache when possible. Any
// provider error removes rawURL from the cache so the next call goes to the
// network. Callers sharing a request each stop waiting when their own ctx
// ends; the request itself runs until the client timeout.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if body, ok := c.cache.Get(rawURL); ok {
		metrics.ProviderCacheHits.WithLabelValues(c.name).Inc()
		return body, nil
	}
	metrics.ProviderCacheMisses.WithLabelValues(c.name).Inc()

	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(rawURL, func() (interface{}, error) {
		// a request that finished while we waited for the flight may have
		// filled the cache
		if body, ok := c.cache.Get(rawURL); ok {
			return body, nil
		}
		body, err := util.Run(shared, c.queue, func(ctx context.Context) ([]byte, error) {
			return c.breaker.Execute(func() ([]byte, error) {
				return c.fetch(ctx, rawURL)
			})
		})
		if err != nil {
			c.cache.Delete(rawURL)
			return nil, err
		}
		c.cache.Set(rawURL, body, 0)
		return body, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &RequestError{Provider: c.name, URL: Redact(rawURL), Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
		}
		c.log.Warn("Provider request failed", map[string]interface{}{
			"url":   Redact(rawURL),
			"error": err.Error(),
		})
		return nil, err
	}
	return res.Val.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderRequest(c.name, start, err) }()

	redacted := Redact(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RequestError{Provider: c.name, URL: redacted, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.log.Debug("Provider request", map[string]interface{}{"url": redacted})

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: c.name, URL: redacted, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBytes))
	if err != nil {
		return nil, &RequestError{Provider: c.name, URL: redacted, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > maxErrorBodyInLogs {
			snippet = snippet[:maxErrorBodyInLogs]
		}
		return nil, &RequestError{
			Provider:   c.name,
			URL:        redacted,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %s", string(snippet)),
		}
	}
	return body, nil
}

// Invalidate removes rawURL from the response cache.
func (c *Client) Invalidate(rawURL string) {
	c.cache.Delete(rawURL)
}

// Purge empties the response cache.
func (c *Client) Purge() {
	c.cache.Clear()
}

// Reconfigure applies new queue and cache settings to later requests.
func (c *Client) Reconfigure(parallel int, delay, cacheMaxAge time.Duration) {
	c.queue.SetParallel(parallel)
	c.queue.SetDelay(delay)
	if s, ok := c.cache.(cache.TTLSetter); ok {
		s.SetTTL(cacheMaxAge)
	}
	c.log.Info("Provider reconfigured", map[string]interface{}{
		"parallel":      parallel,
		"delay":         delay.String(),
		"cache_max_age": cacheMaxAge.String(),
	})
}
