package googlebooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/parser"
)

const sampleResponse = `{
  "kind": "books#volumes",
  "totalItems": 4,
  "items": [
    {
      "id": "vol-1",
      "selfLink": "https://www.googleapis.com/books/v1/volumes/vol-1",
      "volumeInfo": {
        "title": "Good Omens",
        "authors": ["Neil Gaiman", "Terry Pratchett"],
        "publisher": "Workman",
        "publishedDate": "1990-05-01",
        "description": "The world ends on Saturday.",
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "0060853980"},
          {"type": "ISBN_13", "identifier": "9780060853983"}
        ],
        "pageCount": 432,
        "averageRating": 4.5,
        "imageLinks": {"smallThumbnail": "http://img/s", "thumbnail": "http://img/l"},
        "language": "en",
        "infoLink": "http://books.google.com/books?id=vol-1"
      }
    },
    {
      "id": "vol-2",
      "volumeInfo": {
        "title": "Good Omens",
        "authors": ["Terry Pratchett"],
        "language": "en",
        "industryIdentifiers": [{"type": "ISBN_13", "identifier": "9780000000001"}]
      }
    },
    {
      "id": "vol-3",
      "volumeInfo": {
        "title": "Mort",
        "authors": ["Terry Pratchett"],
        "language": "de",
        "industryIdentifiers": [{"type": "ISBN_10", "identifier": "0552131067"}]
      }
    },
    {
      "id": "vol-4",
      "volumeInfo": {"title": "Anonymous Pamphlet", "language": "en"}
    }
  ]
}`

func TestParseResponse(t *testing.T) {
	page, err := ParseResponse([]byte(sampleResponse), "inauthor:pratchett", parser.Policy{Languages: []string{"en"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, page.TotalItems)
	assert.Equal(t, 4, page.Count)
	require.Len(t, page.Result.Books, 1)

	b := page.Result.Books[0]
	assert.Equal(t, "vol-1", b.GUID)
	assert.Equal(t, "Good Omens", b.Title)
	assert.Equal(t, "Terry Pratchett", b.AuthorName)
	assert.Equal(t, "9780060853983", b.ISBN)
	assert.Equal(t, "Workman", b.Publisher)
	assert.Equal(t, 432, b.PageCount)
	assert.Equal(t, 4.5, b.Rating)
	assert.Equal(t, "http://img/s", b.ImageSmall)
	assert.Equal(t, "http://img/l", b.ImageLarge)
	assert.Equal(t, "1990", b.Year())
	assert.Equal(t, ProviderName, b.Provider)
	assert.Equal(t, "http://books.google.com/books?id=vol-1", b.Link)

	reasons := map[string]parser.Reason{}
	for _, r := range page.Result.Rejected {
		reasons[r.ID] = r.Reason
	}
	assert.Equal(t, map[string]parser.Reason{
		"vol-2": parser.ReasonDuplicate,
		"vol-3": parser.ReasonLanguage,
		"vol-4": parser.ReasonNoAuthor,
	}, reasons)
}

func TestParseResponse_Malformed(t *testing.T) {
	_, err := ParseResponse([]byte(`{"items": [`), "q", parser.Policy{}, nil)
	assert.Error(t, err)
}

func TestParseResponse_NoItems(t *testing.T) {
	page, err := ParseResponse([]byte(`{"kind":"books#volumes","totalItems":0}`), "q", parser.Policy{}, nil)
	require.NoError(t, err)
	assert.Zero(t, page.Count)
	assert.Empty(t, page.Result.Books)
}

func TestParseISBN(t *testing.T) {
	v := Volume{VolumeInfo: VolumeInfo{IndustryIdentifiers: []IndustryIdentifier{
		{Type: "OTHER", Identifier: "OCLC:1"},
		{Type: "ISBN_10", Identifier: "0552131067"},
	}}}
	assert.Equal(t, "0552131067", ParseISBN(v))

	v.VolumeInfo.IndustryIdentifiers = append(v.VolumeInfo.IndustryIdentifiers, IndustryIdentifier{Type: "ISBN_13", Identifier: "9780552131063"})
	assert.Equal(t, "9780552131063", ParseISBN(v))

	assert.Empty(t, ParseISBN(Volume{}))
}

func TestParseVolume(t *testing.T) {
	b, err := ParseVolume([]byte(`{"id":"x1","volumeInfo":{"title":"Dune","authors":["Frank Herbert"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "x1", b.GUID)
	assert.Equal(t, "Frank Herbert", b.AuthorName)

	_, err = ParseVolume([]byte(`{}`))
	assert.Error(t, err)
}
