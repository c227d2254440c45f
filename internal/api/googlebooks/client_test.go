package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/parser"
)

// catalog serves total volumes titled "Book N" in pages of maxResults.
func catalog(t *testing.T, total int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		start, _ := strconv.Atoi(r.URL.Query().Get("startIndex"))
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))

		resp := VolumesResponse{TotalItems: total}
		for i := start; i < start+size && i < total; i++ {
			resp.Items = append(resp.Items, Volume{
				ID: fmt.Sprintf("vol-%d", i),
				VolumeInfo: VolumeInfo{
					Title:    fmt.Sprintf("Book %d", i),
					Authors:  []string{"Ann Leckie"},
					Language: "en",
				},
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string, pageLimit int) *Client {
	return NewClient(config.GoogleBooksConfig{
		URL:        url,
		APIKey:     "k",
		MaxResults: 2,
		PageLimit:  pageLimit,
		Queue:      config.QueueConfig{Parallel: 1},
	}, parser.Policy{}, logger.Nop())
}

func TestPagingQuery_WalksUntilTotal(t *testing.T) {
	var calls int32
	srv := catalog(t, 5, &calls)
	c := newClient(srv.URL, 0)

	res, err := c.PagingQuery(context.Background(), AuthorQuery("Ann Leckie"))
	require.NoError(t, err)

	require.Len(t, res.Books, 5)
	assert.Equal(t, "vol-0", res.Books[0].GUID)
	assert.Equal(t, "vol-4", res.Books[4].GUID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPagingQuery_RespectsPageLimit(t *testing.T) {
	var calls int32
	srv := catalog(t, 10, &calls)
	c := newClient(srv.URL, 2)

	res, err := c.PagingQuery(context.Background(), "ancillary")
	require.NoError(t, err)
	assert.Len(t, res.Books, 4)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	c.SetPageLimit(1)
	res, err = c.PagingQuery(context.Background(), "ancillary")
	require.NoError(t, err)
	// first page is served from cache
	assert.Len(t, res.Books, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueryURL(t *testing.T) {
	c := newClient("https://books.example/volumes/", 0)
	u := c.QueryURL("inauthor:x", 40, 20, []string{"en"})
	assert.Equal(t, "https://books.example/volumes?key=k&langRestrict=en&maxResults=20&q=inauthor%3Ax&startIndex=40", u)

	u = c.QueryURL("inauthor:x", 0, 20, []string{"en", "fr"})
	assert.Equal(t, "https://books.example/volumes?key=k&maxResults=20&q=inauthor%3Ax&startIndex=0", u)
}

func TestQuery_EmptyQuery(t *testing.T) {
	c := newClient("http://unused", 0)
	_, err := c.Query(context.Background(), "  ", 0)
	assert.Error(t, err)
}

func TestFindByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vol-9" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"vol-9","volumeInfo":{"title":"Provenance","authors":["Ann Leckie"]}}`))
	}))
	defer srv.Close()
	c := newClient(srv.URL, 0)

	b, err := c.FindByID(context.Background(), "vol-9")
	require.NoError(t, err)
	assert.Equal(t, "Provenance", b.Title)

	_, err = c.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorQuery(t *testing.T) {
	assert.Equal(t, `inauthor:"Ann Leckie"`, AuthorQuery(`Ann "Leckie"`))
}
