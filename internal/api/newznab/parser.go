package newznab

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"

	"github.com/bookworm-app/bookworm/internal/models"
)

// ProviderType is stored on every release this package produces.
const ProviderType = "newznab"

const nsPrefix = "newznab"

// IndexerError is the <error> document an indexer returns instead of a feed.
type IndexerError struct {
	Code        string `xml:"code,attr"`
	Description string `xml:"description,attr"`
}

func (e *IndexerError) Error() string {
	return fmt.Sprintf("indexer error %s: %s", e.Code, e.Description)
}

// Feed is one parsed search response.
type Feed struct {
	// Channel is the feed title; every release is tagged with it
	Channel  string
	Releases []models.Release
	// Offset and Total come from the newznab:response element, when present
	Offset int
	Total  int
	// Count is the number of raw items, including ones skipped as malformed
	Count int
}

// ParseFeed decodes an indexer search response.
func ParseFeed(raw []byte) (*Feed, error) {
	if ierr := sniffError(raw); ierr != nil {
		return nil, ierr
	}

	fp := &rss.Parser{}
	feed, err := fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse indexer feed: %w", err)
	}

	out := &Feed{Channel: strings.TrimSpace(feed.Title), Count: len(feed.Items)}
	if resp := first(feed.Extensions, "response"); resp != nil {
		out.Offset, _ = strconv.Atoi(resp.Attrs["offset"])
		out.Total, _ = strconv.Atoi(resp.Attrs["total"])
	}

	for _, item := range feed.Items {
		if r, ok := parseItem(item, out.Channel); ok {
			out.Releases = append(out.Releases, r)
		}
	}
	return out, nil
}

func sniffError(raw []byte) *IndexerError {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "error" {
			return nil
		}
		ierr := &IndexerError{}
		if err := dec.DecodeElement(ierr, &start); err != nil && !errors.Is(err, io.EOF) {
			ierr.Description = "unreadable error response"
		}
		return ierr
	}
}

func parseItem(item *rss.Item, channel string) (models.Release, bool) {
	attrs := Attributes(item.Extensions)

	r := models.Release{
		Title:        strings.TrimSpace(item.Title),
		ProviderName: channel,
		ProviderType: ProviderType,
		Link:         item.Link,
		Review:       attrs["review"],
	}
	if item.Enclosure != nil && item.Enclosure.URL != "" {
		r.Link = item.Enclosure.URL
	}

	r.GUID = attrs["guid"]
	if r.GUID == "" && item.GUID != nil {
		r.GUID = item.GUID.Value
	}
	if r.GUID == "" {
		r.GUID = r.Link
	}
	if r.GUID == "" || r.Title == "" {
		return r, false
	}

	if size, err := strconv.ParseInt(attrs["size"], 10, 64); err == nil {
		r.Size = size
	} else if item.Enclosure != nil {
		r.Size, _ = strconv.ParseInt(item.Enclosure.Length, 10, 64)
	}
	r.Grabs, _ = strconv.Atoi(attrs["grabs"])
	if t, ok := parseDate(attrs["usenetdate"]); ok {
		r.UsenetDate = &t
	}
	return r, true
}

// Attributes flattens the newznab:attr name/value bag of an item. The first
// occurrence of a name wins.
func Attributes(e ext.Extensions) map[string]string {
	out := make(map[string]string)
	for _, attr := range e[nsPrefix]["attr"] {
		name := attr.Attrs["name"]
		if _, seen := out[name]; name != "" && !seen {
			out[name] = attr.Attrs["value"]
		}
	}
	return out
}

func first(e ext.Extensions, name string) *ext.Extension {
	if list := e[nsPrefix][name]; len(list) > 0 {
		return &list[0]
	}
	return nil
}

var dateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
