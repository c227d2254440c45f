package sabnzbd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

func TestAdd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "addurl", q.Get("mode"))
		assert.Equal(t, "http://nzb/get?id=1", q.Get("name"))
		assert.Equal(t, "ebooks", q.Get("cat"))
		assert.Equal(t, "Dune.bw(r1)", q.Get("nzbname"))
		assert.Equal(t, "secret", q.Get("apikey"))
		assert.Equal(t, "json", q.Get("output"))
		_, _ = w.Write([]byte(`{"status": true, "nzo_ids": ["SABnzbd_nzo_abc"]}`))
	}))
	defer srv.Close()

	c := NewClient(config.SABnzbdConfig{URL: srv.URL + "/api/", APIKey: "secret"}, logger.Nop())
	id, err := c.Add(context.Background(), "http://nzb/get?id=1", "ebooks", "Dune.bw(r1)")
	require.NoError(t, err)
	assert.Equal(t, "SABnzbd_nzo_abc", id)
}

func TestAdd_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": false, "error": "API Key Incorrect"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SABnzbdConfig{URL: srv.URL}, logger.Nop())
	_, err := c.Add(context.Background(), "http://nzb/x", "", "x")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "API Key Incorrect")
}

func TestAdd_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(config.SABnzbdConfig{URL: srv.URL, APIKey: "secret"}, logger.Nop())
	_, err := c.Add(context.Background(), "http://nzb/x", "", "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestAdd_Validation(t *testing.T) {
	c := NewClient(config.SABnzbdConfig{}, logger.Nop())
	_, err := c.Add(context.Background(), "", "", "")
	assert.Error(t, err)
	_, err = c.Add(context.Background(), "http://nzb/x", "", "")
	assert.Error(t, err)
}
