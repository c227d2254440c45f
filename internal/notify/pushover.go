package notify

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

// Pushover sends notifications through the Pushover messages API.
type Pushover struct {
	endpoint string
	token    string
	user     string
	client   *http.Client
	log      *logger.Logger
}

// NewPushover creates a Pushover notifier.
func NewPushover(cfg config.PushoverConfig, log *logger.Logger) *Pushover {
	return &Pushover{
		endpoint: cfg.URL,
		token:    cfg.Token,
		user:     cfg.User,
		client:   &http.Client{Timeout: defaultTimeout},
		log:      log.Component("pushover"),
	}
}

// Notify implements Notifier.
func (p *Pushover) Notify(ctx context.Context, trigger Trigger, payload Payload) {
	title, body := Message(trigger, payload)
	form := url.Values{
		"token":   {p.token},
		"user":    {p.user},
		"title":   {title},
		"message": {body},
	}
	if err := postForm(ctx, p.client, p.endpoint, form); err != nil {
		p.log.Warn("Failed to send notification", map[string]interface{}{
			"trigger": string(trigger),
			"error":   err.Error(),
		})
	}
}
