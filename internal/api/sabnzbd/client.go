// Package sabnzbd submits NZB URLs to a SABnzbd download queue.
package sabnzbd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bookworm-app/bookworm/internal/api/provider"
	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

const (
	apiPath        = "/api"
	defaultTimeout = 30 * time.Second
)

// ErrRejected is returned when SABnzbd answers but does not queue the job.
var ErrRejected = errors.New("download rejected")

// Downloader accepts a download by URL.
type Downloader interface {
	Add(ctx context.Context, link, category, name string) (string, error)
}

// Client talks to the SABnzbd API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

// NewClient creates a SABnzbd client.
func NewClient(cfg config.SABnzbdConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSuffix(strings.TrimRight(cfg.URL, "/"), apiPath), "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log.Component("sabnzbd_client"),
	}
}

type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

// Add queues link under category with job name name and returns the queue id.
func (c *Client) Add(ctx context.Context, link, category, name string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("download link is required")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("sabnzbd url is not configured")
	}

	q := url.Values{}
	q.Set("mode", "addurl")
	q.Set("name", link)
	q.Set("output", "json")
	if category != "" {
		q.Set("cat", category)
	}
	if name != "" {
		q.Set("nzbname", name)
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	endpoint := c.baseURL + apiPath + "?" + q.Encode()
	log := c.logger.With(map[string]interface{}{"nzbname": name, "category": category})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Request failed", map[string]interface{}{"error": err.Error()})
		return "", &provider.RequestError{Provider: "sabnzbd", URL: provider.Redact(endpoint), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Unexpected status code", map[string]interface{}{
			"status":   resp.StatusCode,
			"response": string(body),
		})
		return "", &provider.RequestError{
			Provider:   "sabnzbd",
			URL:        provider.Redact(endpoint),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code"),
		}
	}

	var result addResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Status {
		return "", fmt.Errorf("%w: %s", ErrRejected, result.Error)
	}

	var id string
	if len(result.NzoIDs) > 0 {
		id = result.NzoIDs[0]
	}
	log.Info("Queued download", map[string]interface{}{"nzo_id": id})
	return id, nil
}
