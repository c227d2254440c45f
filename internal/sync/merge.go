package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookworm-app/bookworm/internal/library"
	"github.com/bookworm-app/bookworm/internal/metrics"
	"github.com/bookworm-app/bookworm/internal/models"
)

// MergeBooks merges remote catalog candidates into the books author already
// owns. A remote book is new when no local book has its guid or exactly its
// title; new books are persisted under author with status wanted_new. With
// mergeData, local books whose guid matches a remote one take the remote
// descriptive fields. The result lists the new books, then the existing ones.
//
// A nil local or remote is not a list and fails the whole merge; an empty
// slice is a valid empty list.
func (e *Engine) MergeBooks(ctx context.Context, author *models.Author, local, remote []models.Book, mergeData bool) ([]models.Book, error) {
	if local == nil || remote == nil {
		return nil, fmt.Errorf("merge books: %w", ErrNotList)
	}
	if author == nil || author.ID == "" {
		return nil, fmt.Errorf("merge books: %w: author is required", library.ErrValidation)
	}

	existing := make([]models.Book, len(local))
	copy(existing, local)

	byGUID := make(map[string]int, len(existing))
	byTitle := make(map[string]bool, len(existing))
	for i, b := range existing {
		byGUID[b.GUID] = i
		byTitle[b.Title] = true
	}

	var created []models.Book
	var updated int
	createdGUID := make(map[string]bool)
	for _, r := range remote {
		if createdGUID[r.GUID] {
			continue
		}
		if i, ok := byGUID[r.GUID]; ok {
			if !mergeData {
				continue
			}
			book := &existing[i]
			if !applyRemote(book, r) {
				continue
			}
			if err := e.books.Save(ctx, book); err != nil {
				return nil, fmt.Errorf("merge books: update %s: %w", book.GUID, err)
			}
			updated++
			continue
		}
		if byTitle[r.Title] {
			continue
		}

		book := r
		book.ID = ""
		book.AuthorID = author.ID
		book.AuthorName = author.Name
		book.Author = nil
		book.Releases = nil
		book.Status = models.BookWantedNew
		if err := e.books.Create(ctx, &book); err != nil {
			if errors.Is(err, library.ErrConflict) {
				// owned by another author already
				e.log.Debug("Skipping book known under another author", map[string]interface{}{
					"guid":   r.GUID,
					"title":  r.Title,
					"author": author.Name,
				})
				continue
			}
			return nil, fmt.Errorf("merge books: create %s: %w", r.GUID, err)
		}
		createdGUID[book.GUID] = true
		byTitle[book.Title] = true
		created = append(created, book)
	}

	if len(created) > 0 || updated > 0 {
		metrics.BooksMerged.WithLabelValues("created").Add(float64(len(created)))
		metrics.BooksMerged.WithLabelValues("updated").Add(float64(updated))
		e.log.Info("Merged books", map[string]interface{}{
			"author":  author.Name,
			"created": len(created),
			"updated": updated,
			"local":   len(local),
			"remote":  len(remote),
		})
	}

	return append(created, existing...), nil
}

// applyRemote copies the descriptive fields of r onto b and reports whether
// anything changed. Identity and status are left alone.
func applyRemote(b *models.Book, r models.Book) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&b.Published, r.Published)
	set(&b.ImageSmall, r.ImageSmall)
	set(&b.ImageLarge, r.ImageLarge)
	set(&b.APILink, r.APILink)
	set(&b.ISBN, r.ISBN)
	set(&b.Provider, r.Provider)
	set(&b.Language, r.Language)
	set(&b.Publisher, r.Publisher)
	set(&b.Description, r.Description)
	set(&b.Link, r.Link)
	set(&b.Title, r.Title)
	if b.PageCount != r.PageCount {
		b.PageCount = r.PageCount
		changed = true
	}
	return changed
}
