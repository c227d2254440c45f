package newznab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/">
<channel>
  <title>nzb.example</title>
  <link>https://nzb.example/</link>
  <description>nzb.example feed</description>
  <newznab:response offset="0" total="3"/>
  <item>
    <title>Ann.Leckie-Ancillary.Justice.epub</title>
    <guid isPermaLink="true">https://nzb.example/details/aaa</guid>
    <link>https://nzb.example/getnzb/aaa.nzb</link>
    <pubDate>Sat, 13 Jan 2024 10:00:00 +0000</pubDate>
    <enclosure url="https://nzb.example/getnzb/aaa.nzb&amp;i=1" length="2048" type="application/x-nzb"/>
    <newznab:attr name="category" value="7020"/>
    <newznab:attr name="size" value="1048576"/>
    <newznab:attr name="guid" value="aaa"/>
    <newznab:attr name="grabs" value="12"/>
    <newznab:attr name="review" value="clean copy"/>
    <newznab:attr name="usenetdate" value="Fri, 12 Jan 2024 08:30:00 +0100"/>
  </item>
  <item>
    <title>Ann.Leckie-Ancillary.Sword.epub</title>
    <guid>bbb</guid>
    <link>https://nzb.example/getnzb/bbb.nzb</link>
    <enclosure url="https://nzb.example/getnzb/bbb.nzb" length="4096" type="application/x-nzb"/>
  </item>
  <item>
    <title></title>
    <guid>ccc</guid>
  </item>
</channel>
</rss>`

func TestParseFeed(t *testing.T) {
	feed, err := ParseFeed([]byte(sampleFeed))
	require.NoError(t, err)

	assert.Equal(t, "nzb.example", feed.Channel)
	assert.Equal(t, 3, feed.Total)
	assert.Equal(t, 0, feed.Offset)
	assert.Equal(t, 3, feed.Count)
	require.Len(t, feed.Releases, 2)

	r := feed.Releases[0]
	assert.Equal(t, "aaa", r.GUID)
	assert.Equal(t, "Ann.Leckie-Ancillary.Justice.epub", r.Title)
	assert.Equal(t, "nzb.example", r.ProviderName)
	assert.Equal(t, ProviderType, r.ProviderType)
	assert.Equal(t, "https://nzb.example/getnzb/aaa.nzb&i=1", r.Link)
	assert.Equal(t, int64(1048576), r.Size)
	assert.Equal(t, 12, r.Grabs)
	assert.Equal(t, "clean copy", r.Review)
	require.NotNil(t, r.UsenetDate)
	assert.Equal(t, time.Date(2024, 1, 12, 7, 30, 0, 0, time.UTC), *r.UsenetDate)

	r = feed.Releases[1]
	assert.Equal(t, "bbb", r.GUID)
	assert.Equal(t, int64(4096), r.Size)
	assert.Nil(t, r.UsenetDate)
	assert.Equal(t, "nzb.example", r.ProviderName)
}

func TestParseFeed_IndexerError(t *testing.T) {
	_, err := ParseFeed([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<error code="100" description="Incorrect user credentials"/>`))
	require.Error(t, err)

	var ierr *IndexerError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "100", ierr.Code)
	assert.Equal(t, "Incorrect user credentials", ierr.Description)
}

func TestParseFeed_Garbage(t *testing.T) {
	_, err := ParseFeed([]byte("not xml at all"))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	_, ok := parseDate("")
	assert.False(t, ok)
	_, ok = parseDate("yesterday")
	assert.False(t, ok)
	d, ok := parseDate("2024-01-12T08:30:00Z")
	require.True(t, ok)
	assert.Equal(t, 2024, d.Year())
}
