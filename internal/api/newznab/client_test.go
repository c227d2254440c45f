package newznab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// indexer serves total items in pages of pageSize.
func indexer(t *testing.T, title string, total int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "search", r.URL.Query().Get("t"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var b strings.Builder
		fmt.Fprintf(&b, `<?xml version="1.0"?><rss version="2.0" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/"><channel><title>%s</title>`, title)
		fmt.Fprintf(&b, `<newznab:response offset="%d" total="%d"/>`, offset, total)
		for i := offset; i < offset+pageSize && i < total; i++ {
			fmt.Fprintf(&b, `<item><title>release %d</title><link>http://dl/%d</link><newznab:attr name="guid" value="%s-%d"/></item>`, i, i, title, i)
		}
		b.WriteString(`</channel></rss>`)
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSearch_Pages(t *testing.T) {
	var calls int32
	srv := indexer(t, "alpha", 150, &calls)
	c := NewClient(config.IndexerConfig{Name: "alpha", URL: srv.URL, APIKey: "k"}, 0, config.QueueConfig{Parallel: 1}, logger.Nop())

	releases, err := c.Search(context.Background(), "leckie")
	require.NoError(t, err)
	assert.Len(t, releases, 150)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "alpha-0", releases[0].GUID)
}

func TestClientSearch_PageLimit(t *testing.T) {
	var calls int32
	srv := indexer(t, "alpha", 500, &calls)
	c := NewClient(config.IndexerConfig{URL: srv.URL}, 1, config.QueueConfig{Parallel: 1}, logger.Nop())

	releases, err := c.Search(context.Background(), "leckie")
	require.NoError(t, err)
	assert.Len(t, releases, pageSize)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchURL(t *testing.T) {
	c := NewClient(config.IndexerConfig{URL: "https://nzb.example/api/"}, 1, config.QueueConfig{Parallel: 1}, logger.Nop())
	assert.Equal(t, "nzb.example", c.Name())
	assert.Equal(t,
		"https://nzb.example/api?cat=7020&extended=1&limit=100&offset=0&q=dune&t=search",
		c.SearchURL("dune", 0))
}

type stubSearcher struct {
	name     string
	releases []models.Release
	err      error
}

func (s stubSearcher) Name() string { return s.name }

func (s stubSearcher) Search(context.Context, string) ([]models.Release, error) {
	return s.releases, s.err
}

func TestAggregator(t *testing.T) {
	down := stubSearcher{name: "down", err: errors.New("connection refused")}
	a := stubSearcher{name: "a", releases: []models.Release{{GUID: "1"}, {GUID: "2"}}}
	b := stubSearcher{name: "b", releases: []models.Release{{GUID: "2"}, {GUID: "3"}}}

	agg := NewAggregatorFrom(logger.Nop(), down, a, b)
	releases, err := agg.Search(context.Background(), "q")
	require.NoError(t, err)

	var guids []string
	for _, r := range releases {
		guids = append(guids, r.GUID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, guids)

	_, err = NewAggregatorFrom(logger.Nop(), down, down).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "all indexers failed")

	_, err = NewAggregatorFrom(logger.Nop()).Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoIndexers)
}

func TestAggregatorReconfigure(t *testing.T) {
	var calls int32
	srv := indexer(t, "beta", 1, &calls)
	agg := NewAggregator(config.NewznabConfig{}, logger.Nop())

	_, err := agg.Search(context.Background(), "q")
	require.ErrorIs(t, err, ErrNoIndexers)

	agg.Reconfigure(config.NewznabConfig{
		Indexers:  []config.IndexerConfig{{Name: "beta", URL: srv.URL}},
		PageLimit: 1,
		Queue:     config.QueueConfig{Parallel: 1},
	})
	releases, err := agg.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "beta", releases[0].ProviderName)
}
