// Package parser holds the provider independent filtering policy applied to
// catalog results: rejections, in-response de-duplication and author
// selection.
package parser

import (
	"fmt"
	"strings"

	"github.com/bookworm-app/bookworm/internal/models"
)

// Reason explains why a candidate was dropped.
type Reason string

const (
	ReasonMissingTitle   Reason = "missing_title"
	ReasonNoAuthor       Reason = "no_author"
	ReasonLanguage       Reason = "language"
	ReasonNoDescription  Reason = "no_description"
	ReasonNoISBN         Reason = "no_isbn"
	ReasonIgnoredWord    Reason = "ignored_word"
	ReasonDuplicate      Reason = "duplicate"
	ReasonMalformedEntry Reason = "malformed"
)

// Rejection is a tombstone for a dropped candidate. It is reported
// alongside the accepted results, never returned as the call's error.
type Rejection struct {
	ID     string
	Title  string
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return fmt.Sprintf("rejected %q (%s): %s: %s", r.Title, r.ID, r.Reason, r.Detail)
	}
	return fmt.Sprintf("rejected %q (%s): %s", r.Title, r.ID, r.Reason)
}

// Policy is the set of filters a catalog result must pass.
type Policy struct {
	// Languages, when set, is the allowed set of book languages
	// (case-insensitive)
	Languages          []string
	RequireISBN        bool
	RequireDescription bool
	// IgnoredWords reject any title containing one of them (case-insensitive)
	IgnoredWords []string
}

// Check returns the first rule b breaks, or nil.
func (p Policy) Check(b *models.Book) *Rejection {
	reject := func(reason Reason, detail string) *Rejection {
		return &Rejection{ID: b.GUID, Title: b.Title, Reason: reason, Detail: detail}
	}

	if strings.TrimSpace(b.Title) == "" {
		return reject(ReasonMissingTitle, "")
	}
	if strings.TrimSpace(b.AuthorName) == "" {
		return reject(ReasonNoAuthor, "")
	}
	if len(p.Languages) > 0 && !p.allowsLanguage(b.Language) {
		return reject(ReasonLanguage, b.Language)
	}
	if p.RequireDescription && strings.TrimSpace(b.Description) == "" {
		return reject(ReasonNoDescription, "")
	}
	if p.RequireISBN && b.ISBN == "" {
		return reject(ReasonNoISBN, "")
	}
	if word := p.ignoredWordIn(b.Title); word != "" {
		return reject(ReasonIgnoredWord, word)
	}
	return nil
}

func (p Policy) allowsLanguage(lang string) bool {
	for _, l := range p.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

func (p Policy) ignoredWordIn(title string) string {
	lower := strings.ToLower(title)
	for _, w := range p.IgnoredWords {
		w = strings.TrimSpace(w)
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return w
		}
	}
	return ""
}

// Result is the outcome of parsing one or more responses.
type Result struct {
	Books    []models.Book
	Rejected []*Rejection
}

// Deduper drops candidates already seen by identifier, then by exact title.
// One Deduper may span several pages of the same query.
type Deduper struct {
	ids    map[string]bool
	titles map[string]bool
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{ids: make(map[string]bool), titles: make(map[string]bool)}
}

// Seen records b and reports whether an earlier candidate matched it.
func (d *Deduper) Seen(b *models.Book) bool {
	if d.ids[b.GUID] || d.titles[b.Title] {
		return true
	}
	d.ids[b.GUID] = true
	d.titles[b.Title] = true
	return false
}

// Accept runs the dedupe and the policy over b and files it into r.
func (r *Result) Accept(b models.Book, p Policy, d *Deduper) {
	if rej := p.Check(&b); rej != nil {
		r.Rejected = append(r.Rejected, rej)
		return
	}
	if d != nil && d.Seen(&b) {
		r.Rejected = append(r.Rejected, &Rejection{ID: b.GUID, Title: b.Title, Reason: ReasonDuplicate})
		return
	}
	r.Books = append(r.Books, b)
}

// Merge appends other's books and rejections to r.
func (r *Result) Merge(other Result) {
	r.Books = append(r.Books, other.Books...)
	r.Rejected = append(r.Rejected, other.Rejected...)
}

const inAuthorPrefix = "inauthor:"

// InAuthor extracts the value of an inauthor: term from query. Quoted values
// may contain spaces; unquoted ones end at the next space.
func InAuthor(query string) string {
	idx := strings.Index(strings.ToLower(query), inAuthorPrefix)
	if idx < 0 {
		return ""
	}
	rest := query[idx+len(inAuthorPrefix):]
	if strings.HasPrefix(rest, `"`) {
		rest = rest[1:]
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end]
	}
	return rest
}

// PickAuthor chooses the author a result is filed under. If query names an
// inauthor: term, the first listed author containing it (case-insensitive)
// wins; otherwise, or when none match, the first author does.
func PickAuthor(authors []string, query string) string {
	if len(authors) == 0 {
		return ""
	}
	if token := strings.ToLower(strings.TrimSpace(InAuthor(query))); token != "" {
		for _, a := range authors {
			if strings.Contains(strings.ToLower(a), token) {
				return a
			}
		}
	}
	return authors[0]
}
