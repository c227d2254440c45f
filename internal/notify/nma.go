package notify

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

const nmaApplication = "Bookworm"

// NMA sends notifications through the NotifyMyAndroid public API.
type NMA struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *logger.Logger
}

// NewNMA creates a NotifyMyAndroid notifier.
func NewNMA(cfg config.NMAConfig, log *logger.Logger) *NMA {
	return &NMA{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: defaultTimeout},
		log:      log.Component("nma"),
	}
}

// Notify implements Notifier.
func (n *NMA) Notify(ctx context.Context, trigger Trigger, payload Payload) {
	title, body := Message(trigger, payload)
	form := url.Values{
		"apikey":      {n.apiKey},
		"application": {nmaApplication},
		"event":       {title},
		"description": {body},
	}
	if err := postForm(ctx, n.client, n.endpoint, form); err != nil {
		n.log.Warn("Failed to send notification", map[string]interface{}{
			"trigger": string(trigger),
			"error":   err.Error(),
		})
	}
}
