package googlebooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bookworm-app/bookworm/internal/models"
	"github.com/bookworm-app/bookworm/internal/parser"
)

// ProviderName is stored on every book this package produces.
const ProviderName = "googlebooks"

// Page is one parsed response.
type Page struct {
	// TotalItems as reported by the catalog
	TotalItems int
	// Count of raw items in the response, before filtering
	Count  int
	Result parser.Result
}

// ParseResponse decodes a volumes response and filters its items.
// Candidates already seen by d are dropped; d may be nil.
func ParseResponse(raw []byte, query string, policy parser.Policy, d *parser.Deduper) (*Page, error) {
	var resp VolumesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode volumes response: %w", err)
	}
	if d == nil {
		d = parser.NewDeduper()
	}

	page := &Page{TotalItems: resp.TotalItems, Count: len(resp.Items)}
	for _, v := range resp.Items {
		page.Result.Accept(ToBook(v, ParseAuthor(v, query)), policy, d)
	}
	return page, nil
}

// ParseVolume decodes a single volume lookup.
func ParseVolume(raw []byte) (*models.Book, error) {
	var v Volume
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode volume: %w", err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("decode volume: missing id")
	}
	b := ToBook(v, ParseAuthor(v, ""))
	return &b, nil
}

// ParseAuthor picks the author v is filed under for query.
func ParseAuthor(v Volume, query string) string {
	return parser.PickAuthor(v.VolumeInfo.Authors, query)
}

// ParseISBN prefers ISBN-13 over ISBN-10; other identifier types are ignored.
func ParseISBN(v Volume) string {
	var isbn10 string
	for _, id := range v.VolumeInfo.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			if isbn10 == "" {
				isbn10 = id.Identifier
			}
		}
	}
	return isbn10
}

// ToBook maps a volume onto an unsaved book.
func ToBook(v Volume, author string) models.Book {
	info := v.VolumeInfo
	link := info.InfoLink
	if link == "" {
		link = info.CanonicalVolumeLink
	}
	return models.Book{
		GUID:        v.ID,
		Title:       strings.TrimSpace(info.Title),
		AuthorName:  strings.TrimSpace(author),
		Publisher:   info.Publisher,
		ISBN:        ParseISBN(v),
		Language:    info.Language,
		PageCount:   info.PageCount,
		Rating:      info.AverageRating,
		ImageSmall:  info.ImageLinks.SmallThumbnail,
		ImageLarge:  info.ImageLinks.Thumbnail,
		Published:   info.PublishedDate,
		Description: info.Description,
		Link:        link,
		APILink:     v.SelfLink,
		Provider:    ProviderName,
	}
}
