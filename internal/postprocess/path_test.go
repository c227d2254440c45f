package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookworm-app/bookworm/internal/models"
)

func TestMatchGUID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"SomeBook.bw(abc-123)", "abc-123"},
		{"SomeBook(abc-123)", ""},
		{"SomeBook.bw(abc-123).partial", ""},
		{"Dune.Messiah.bw(f00d)", "f00d"},
		{".bw()", ""},
		{"plain", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchGUID(tt.name))
		})
	}
}

func TestExpand(t *testing.T) {
	book := &models.Book{Title: "Dune: Messiah", AuthorName: "frank herbert", Published: "1969-10-15"}
	tokens := TokensFor(book, "")

	assert.Equal(t, "F", tokens.First)
	assert.Equal(t, "F/frankherbert/DuneMessiah(1969)", Expand("{First}/{Author}/{Title} ({Year})", tokens))
	assert.Equal(t, "f/frankherbert/dunemessiah-1969", Expand("{first}/{author}/{title}-{year}", tokens))
	assert.Equal(t, "[F]/frank_herbert", Expand("[{First}]/{Author}", Tokens{First: "F", Author: "frank_herbert"}))

	// traversal and absolute paths collapse into the library
	assert.Equal(t, "etc/passwd", Expand("/../{Title}", Tokens{Title: "../etc/passwd"}))
	assert.Equal(t, "", Expand("{Year}", Tokens{}))
}

func TestTokensForPrefersAuthorRecord(t *testing.T) {
	book := &models.Book{Title: "Emma", AuthorName: "austen", Published: "1815"}
	tokens := TokensFor(book, "Jane Austen")
	assert.Equal(t, "J", tokens.First)
	assert.Equal(t, "Jane Austen", tokens.Author)
	assert.Equal(t, "1815", tokens.Year)
}
