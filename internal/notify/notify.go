// Package notify delivers fire-and-forget messages about acquisition events.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// Trigger names the event being announced.
type Trigger string

const (
	TriggerSnatched   Trigger = "snatched"
	TriggerDownloaded Trigger = "downloaded"
)

// Payload is what a notification is about. Either field may be nil.
type Payload struct {
	Book    *models.Book
	Release *models.Release
}

// Notifier delivers a notification. Implementations log their own failures
// and never block the caller on a broken sink beyond their HTTP timeout.
type Notifier interface {
	Notify(ctx context.Context, trigger Trigger, p Payload)
}

// Message renders the title and body for a trigger.
func Message(trigger Trigger, p Payload) (title, body string) {
	what := "unknown book"
	if p.Book != nil {
		what = p.Book.Title
		if p.Book.AuthorName != "" {
			what += " by " + p.Book.AuthorName
		}
	} else if p.Release != nil {
		what = p.Release.Title
	}

	switch trigger {
	case TriggerSnatched:
		title = "Book snatched"
		body = "Sent " + what + " to the download client"
	case TriggerDownloaded:
		title = "Book downloaded"
		body = what + " was added to the library"
	default:
		title = "Bookworm"
		body = fmt.Sprintf("%s: %s", trigger, what)
	}
	if p.Release != nil && p.Release.ProviderName != "" {
		body += " (" + p.Release.ProviderName + ")"
	}
	return title, body
}

// Nop discards every notification.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Trigger, Payload) {}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, trigger Trigger, p Payload) {
	for _, n := range m {
		n.Notify(ctx, trigger, p)
	}
}

// FromConfig returns the enabled notifiers, or Nop when none is.
func FromConfig(cfg *config.Config, log *logger.Logger) Notifier {
	var m Multi
	if cfg.Notifiers.Pushover.Enabled {
		m = append(m, NewPushover(cfg.Notifiers.Pushover, log))
	}
	if cfg.Notifiers.NMA.Enabled {
		m = append(m, NewNMA(cfg.Notifiers.NMA, log))
	}
	if len(m) == 0 {
		return Nop{}
	}
	return m
}

const defaultTimeout = 10 * time.Second

// postForm sends form to endpoint and fails on any non-2xx status.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
