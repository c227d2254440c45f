package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, trigger Trigger, p Payload) {
	m.Called(trigger, p)
}

func capture(t *testing.T, status int) (*httptest.Server, *url.Values) {
	t.Helper()
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

var payload = Payload{
	Book:    &models.Book{Title: "Piranesi", AuthorName: "Susanna Clarke"},
	Release: &models.Release{Title: "Piranesi.epub", ProviderName: "nzb.example"},
}

func TestMessage(t *testing.T) {
	title, body := Message(TriggerSnatched, payload)
	assert.Equal(t, "Book snatched", title)
	assert.Equal(t, "Sent Piranesi by Susanna Clarke to the download client (nzb.example)", body)

	title, body = Message(TriggerDownloaded, Payload{Release: &models.Release{Title: "x.epub"}})
	assert.Equal(t, "Book downloaded", title)
	assert.Equal(t, "x.epub was added to the library", body)
}

func TestPushover(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	p := NewPushover(config.PushoverConfig{URL: srv.URL, Token: "tok", User: "usr"}, logger.Nop())

	p.Notify(context.Background(), TriggerDownloaded, payload)

	assert.Equal(t, "tok", got.Get("token"))
	assert.Equal(t, "usr", got.Get("user"))
	assert.Equal(t, "Book downloaded", got.Get("title"))
	assert.Contains(t, got.Get("message"), "Piranesi")
}

func TestNMA(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	n := NewNMA(config.NMAConfig{URL: srv.URL, APIKey: "key"}, logger.Nop())

	n.Notify(context.Background(), TriggerSnatched, payload)

	assert.Equal(t, "key", got.Get("apikey"))
	assert.Equal(t, nmaApplication, got.Get("application"))
	assert.Equal(t, "Book snatched", got.Get("event"))
}

func TestFailuresAreSwallowed(t *testing.T) {
	srv, _ := capture(t, http.StatusUnauthorized)
	assert.NotPanics(t, func() {
		NewPushover(config.PushoverConfig{URL: srv.URL}, logger.Nop()).Notify(context.Background(), TriggerSnatched, payload)
		NewNMA(config.NMAConfig{URL: "http://127.0.0.1:1"}, logger.Nop()).Notify(context.Background(), TriggerSnatched, payload)
	})
}

func TestMulti(t *testing.T) {
	a, b := &mockNotifier{}, &mockNotifier{}
	a.On("Notify", TriggerSnatched, payload).Once()
	b.On("Notify", TriggerSnatched, payload).Once()

	Multi{a, b}.Notify(context.Background(), TriggerSnatched, payload)

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, Nop{}, FromConfig(cfg, logger.Nop()))

	cfg.Notifiers.Pushover.Enabled = true
	cfg.Notifiers.NMA.Enabled = true
	m, ok := FromConfig(cfg, logger.Nop()).(Multi)
	require.True(t, ok)
	assert.Len(t, m, 2)
}
