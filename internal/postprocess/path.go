package postprocess

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bookworm-app/bookworm/internal/models"
)

var guidPattern = regexp.MustCompile(`\.bw\((.+)\)$`)

// MatchGUID extracts the release guid from a staged directory name carrying
// the .bw(<guid>) suffix. It returns "" for any other name.
func MatchGUID(name string) string {
	m := guidPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9\-_/\[\]()]`)

// Tokens are the values a path template can reference.
type Tokens struct {
	First  string
	Author string
	Title  string
	Year   string
}

// TokensFor derives template values from book. authorName overrides the
// book's denormalized author when set.
func TokensFor(book *models.Book, authorName string) Tokens {
	if authorName == "" {
		authorName = book.AuthorName
	}
	authorName = strings.TrimSpace(authorName)
	var first string
	if r, _ := utf8.DecodeRuneInString(authorName); r != utf8.RuneError {
		first = string(unicode.ToUpper(r))
	}
	return Tokens{First: first, Author: authorName, Title: strings.TrimSpace(book.Title), Year: book.Year()}
}

// Expand fills template with t. {First}, {Author}, {Title} and {Year} insert
// the values as they are; the lower-case token names insert lower-cased
// values. Characters outside letters, digits, hyphen, underscore, slash,
// brackets and parentheses are dropped, and the result is a clean relative
// path.
func Expand(template string, t Tokens) string {
	r := strings.NewReplacer(
		"{First}", t.First,
		"{Author}", t.Author,
		"{Title}", t.Title,
		"{Year}", t.Year,
		"{first}", strings.ToLower(t.First),
		"{author}", strings.ToLower(t.Author),
		"{title}", strings.ToLower(t.Title),
		"{year}", t.Year,
	)
	out := unsafePathChars.ReplaceAllString(r.Replace(template), "")
	out = strings.TrimLeft(path.Clean("/"+out), "/")
	return out
}
